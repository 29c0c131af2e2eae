// Package users declares the repository contract for account rows.
package users

import (
	"context"

	"github.com/oasis-water/oasis-backend/internal/server/models"
)

type Repository interface {
	// Create inserts a new user row.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail looks a user up by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID looks a user up by its opaque id.
	GetByID(ctx context.Context, userID string) (*models.User, error)

	// UpdateLastSeen stamps last_seen_at with the current time.
	UpdateLastSeen(ctx context.Context, userID string) error

	// List returns up to limit users, newest first.
	List(ctx context.Context, limit int) ([]*models.User, error)
}
