// Package sessions declares the repository contract for refresh sessions,
// one row per issued refresh token, keyed by jti.
package sessions

import (
	"context"

	"github.com/oasis-water/oasis-backend/internal/server/models"
)

// Repository stores the rotation chain. Sessions are append-only: rotation
// and logout revoke rows, nothing deletes them.
type Repository interface {
	// Create inserts a new refresh session.
	Create(ctx context.Context, session *models.RefreshSession) error

	// Find returns the session for the given jti, or common.ErrNotFound.
	Find(ctx context.Context, jti string) (*models.RefreshSession, error)

	// Revoke marks the session revoked and records the replacement jti when
	// non-empty. Already-revoked sessions keep their original revoked_at, so
	// the call is idempotent.
	Revoke(ctx context.Context, jti string, replacedByJTI string) error
}
