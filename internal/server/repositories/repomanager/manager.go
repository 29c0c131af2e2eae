package repomanager

import (
	"context"
	"database/sql"

	"github.com/oasis-water/oasis-backend/internal/dbx"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/jobs"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/sessions"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX so services can run
// single statements on the shared *sql.DB or group statements in a *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Jobs(db dbx.DBTX) jobs.Repository
}
