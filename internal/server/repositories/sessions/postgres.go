package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/dbx"
	"github.com/oasis-water/oasis-backend/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.RefreshSession) error {
	query := `
		INSERT INTO refresh_sessions (jti, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, query,
		session.JTI, session.UserID, session.ExpiresAt, session.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, jti string) (*models.RefreshSession, error) {
	query := `
		SELECT jti, user_id, expires_at, created_at, revoked_at, replaced_by_jti
		FROM refresh_sessions
		WHERE jti = $1
	`
	s := &models.RefreshSession{}
	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	err := r.db.QueryRowContext(ctx, query, jti).
		Scan(&s.JTI, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	s.ReplacedByJTI = replacedBy.String
	return s, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, jti string, replacedByJTI string) error {
	// COALESCE keeps the first revocation time and forward link intact when
	// Revoke is called again for the same jti.
	query := `
		UPDATE refresh_sessions
		SET revoked_at = COALESCE(revoked_at, $1),
		    replaced_by_jti = COALESCE(replaced_by_jti, NULLIF($2, ''))
		WHERE jti = $3
	`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), replacedByJTI, jti); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
