package users

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

const userColumns = `user_id, email, password_hash, full_name, role, is_active, created_at, last_seen_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var passwordHash, fullName sql.NullString
	err := row.Scan(&u.ID, &u.Email, &passwordHash, &fullName, &u.Role, &u.IsActive, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.PasswordHash = passwordHash.String
	u.FullName = fullName.String
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, email, password_hash, full_name, role, is_active, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now()
	user.CreatedAt = now
	user.LastSeenAt = now

	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.Role, user.IsActive, user.CreatedAt, user.LastSeenAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_seen_at = $1 WHERE user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u := &models.User{}
		var passwordHash, fullName sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &passwordHash, &fullName, &u.Role, &u.IsActive, &u.CreatedAt, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		u.PasswordHash = passwordHash.String
		u.FullName = fullName.String
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
