package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_sessions\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)`

	expires := time.Now().Add(14 * 24 * time.Hour)
	mock.ExpectExec(q).
		WithArgs("jti-1", "u1", expires, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.RefreshSession{
		JTI: "jti-1", UserID: "u1", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFind_Active(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+jti,\s*user_id,\s*expires_at,\s*created_at,\s*revoked_at,\s*replaced_by_jti\s+FROM\s+refresh_sessions\s+WHERE\s+jti\s*=\s*\$1`

	now := time.Now()
	rows := sqlmock.NewRows([]string{"jti", "user_id", "expires_at", "created_at", "revoked_at", "replaced_by_jti"}).
		AddRow("jti-1", "u1", now.Add(time.Hour), now, nil, nil)

	mock.ExpectQuery(q).WithArgs("jti-1").WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Revoked() || got.ReplacedByJTI != "" {
		t.Fatalf("expected an active session, got %+v", got)
	}
}

func TestFind_Revoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	revoked := now.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"jti", "user_id", "expires_at", "created_at", "revoked_at", "replaced_by_jti"}).
		AddRow("jti-1", "u1", now.Add(time.Hour), now, revoked, "jti-2")

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+refresh_sessions`).
		WithArgs("jti-1").
		WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Revoked() || got.ReplacedByJTI != "jti-2" {
		t.Fatalf("expected a revoked session linked to jti-2, got %+v", got)
	}
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+refresh_sessions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke_KeepsFirstRevocation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// COALESCE in the statement makes repeated revocations no-ops
	q := `(?s)^\s*UPDATE\s+refresh_sessions\s+SET\s+revoked_at\s*=\s*COALESCE\(revoked_at,\s*\$1\),\s*replaced_by_jti\s*=\s*COALESCE\(replaced_by_jti,\s*NULLIF\(\$2,\s*''\)\)\s+WHERE\s+jti\s*=\s*\$3`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "jti-2", "jti-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "", "jti-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "jti-1", "jti-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// second call with no replacement is still not an error
	if err := repo.Revoke(context.Background(), "jti-1", ""); err != nil {
		t.Fatalf("unexpected error on repeat revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevoke_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+refresh_sessions\b`).
		WillReturnError(errors.New("db down"))

	if err := repo.Revoke(context.Background(), "jti-1", ""); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
