// Package jobs declares the repository contract for analysis job rows.
// Every operation is keyed by (user_id, job_id): a job belonging to another
// user is indistinguishable from one that does not exist.
package jobs

import (
	"context"

	"github.com/oasis-water/oasis-backend/internal/server/models"
)

type Repository interface {
	// Create inserts a new job row.
	Create(ctx context.Context, job *models.Job) (*models.Job, error)

	// GetForUser returns the job owned by userID, or common.ErrNotFound.
	GetForUser(ctx context.Context, userID, jobID string) (*models.Job, error)

	// Update overwrites the mutable columns of an existing row in a single
	// statement. Returns common.ErrNotFound when no row matches.
	Update(ctx context.Context, job *models.Job) error

	// UpdateProgress writes only progress_percent.
	// Returns common.ErrNotFound when no row matches.
	UpdateProgress(ctx context.Context, userID, jobID string, percent float64) error

	// ListForUser returns up to limit jobs owned by userID, newest first,
	// optionally filtered by status.
	ListForUser(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.Job, error)
}
