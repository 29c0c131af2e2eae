package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/dbx"
	"github.com/oasis-water/oasis-backend/internal/filex"
	"github.com/oasis-water/oasis-backend/internal/server/analysis"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/repomanager"
)

// DefaultListLimit caps job listings when the caller does not ask for a limit.
const DefaultListLimit = 100

// JobUpdate carries the optional fields of a status transition. Nil pointers
// mean "retain the prior value". CompletedAt is an override only; whether it
// is set at all is governed by the terminal/non-terminal rule.
type JobUpdate struct {
	Progress     *float64
	ErrorMessage *string
	ClearError   bool
	InputFile    *string
	ResultsCSV   *string
	OutputDir    *string
	Parameters   map[string]any
	CompletedAt  *time.Time
}

// JobService implements the job state machine over the jobs repository.
// Every operation is scoped to (user_id, job_id): a job owned by a different
// user behaves exactly as if it did not exist.
type JobService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	uploadsDir  string
	loader      *analysis.Loader
}

// NewJobService constructs a JobService storing uploads under dataDir/uploads.
func NewJobService(db *sql.DB, m repomanager.RepositoryManager, dataDir string) *JobService {
	return &JobService{
		db:          db,
		repomanager: m,
		uploadsDir:  filepath.Join(dataDir, "uploads"),
		loader:      &analysis.Loader{},
	}
}

// Create inserts a new job in status queued with progress 0.
func (s *JobService) Create(ctx context.Context, userID string, parameters map[string]any) (*models.Job, error) {
	job := &models.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     models.JobQueued,
		Parameters: parameters,
	}
	if job.Parameters == nil {
		job.Parameters = map[string]any{}
	}
	return s.repomanager.Jobs(s.db).Create(ctx, job)
}

// Get returns the job owned by userID, or common.ErrUnknownJob.
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := s.repomanager.Jobs(s.db).GetForUser(ctx, userID, jobID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// Transition moves the job to newStatus, applying upd on top of the current
// row. Omitted fields retain their prior values, except completed_at, which
// is set iff the new status is terminal (defaulting to now), and progress,
// which defaults to 100 on completed. The read and the write share one
// transaction so concurrent transitions on the same row serialize.
func (s *JobService) Transition(ctx context.Context, userID, jobID string, newStatus models.JobStatus, upd JobUpdate) (*models.Job, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidStatus, newStatus)
	}

	var job *models.Job
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Jobs(tx)

		existing, err := repo.GetForUser(ctx, userID, jobID)
		if err != nil {
			return err
		}

		existing.Status = newStatus

		if upd.Progress != nil {
			existing.ProgressPercent = *upd.Progress
		} else if newStatus == models.JobCompleted {
			existing.ProgressPercent = 100
		}

		switch {
		case upd.ClearError:
			existing.ErrorMessage = ""
		case upd.ErrorMessage != nil:
			existing.ErrorMessage = *upd.ErrorMessage
		}

		if upd.InputFile != nil {
			existing.InputFile = *upd.InputFile
		}
		if upd.ResultsCSV != nil {
			existing.ResultsCSV = *upd.ResultsCSV
		}
		if upd.OutputDir != nil {
			existing.OutputDir = *upd.OutputDir
		}
		if upd.Parameters != nil {
			existing.Parameters = upd.Parameters
		}

		// completed_at is governed solely by the terminal rule.
		if newStatus.Terminal() {
			if upd.CompletedAt != nil {
				existing.CompletedAt = upd.CompletedAt
			} else if existing.CompletedAt == nil {
				now := time.Now()
				existing.CompletedAt = &now
			}
		} else {
			existing.CompletedAt = nil
		}

		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		job = existing
		return nil
	})
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// UpdateProgress writes only progress_percent and returns the updated job.
func (s *JobService) UpdateProgress(ctx context.Context, userID, jobID string, percent float64) (*models.Job, error) {
	repo := s.repomanager.Jobs(s.db)
	if err := repo.UpdateProgress(ctx, userID, jobID, percent); err != nil {
		return nil, mapJobErr(err)
	}
	job, err := repo.GetForUser(ctx, userID, jobID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// List returns up to limit jobs owned by userID, newest first. statusFilter
// may be empty; an unknown value fails with common.ErrInvalidStatus.
func (s *JobService) List(ctx context.Context, userID string, statusFilter string, limit int) ([]*models.Job, error) {
	var status *models.JobStatus
	if statusFilter != "" {
		st := models.JobStatus(statusFilter)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidStatus, statusFilter)
		}
		status = &st
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repomanager.Jobs(s.db).ListForUser(ctx, userID, status, limit)
}

// UploadPath returns the canonical input path for a job's upload. The
// extension is derived from the original filename, defaulting to .csv.
func (s *JobService) UploadPath(userID, jobID, originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	if ext == "" {
		ext = ".csv"
	}
	return filepath.Join(s.uploadsDir, userID, jobID, "input"+ext)
}

// SaveUpload persists the uploaded bytes under a path namespaced by
// (user_id, job_id) and validates them eagerly: a parseable dataset leaves
// the job queued with input_file set and sample_count/model_type merged into
// its parameters, while an invalid one marks the job failed and returns the
// validation error so the caller can reject the upload.
func (s *JobService) SaveUpload(ctx context.Context, userID, jobID, originalFilename string, content []byte) (string, error) {
	path := s.UploadPath(userID, jobID, originalFilename)
	if err := filex.WriteFile(path, content); err != nil {
		return "", err
	}

	table, err := s.loader.Load(path)
	if err != nil {
		msg := uploadFailureMessage(err)
		progress := 100.0
		if _, terr := s.Transition(ctx, userID, jobID, models.JobFailed, JobUpdate{
			Progress:     &progress,
			ErrorMessage: &msg,
			InputFile:    &path,
		}); terr != nil {
			return "", terr
		}
		return "", err
	}

	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return "", err
	}
	parameters := map[string]any{}
	for k, v := range job.Parameters {
		parameters[k] = v
	}
	parameters["sample_count"] = len(table.Rows)
	parameters["model_type"] = analysis.DetectModelType(table)

	if _, err := s.Transition(ctx, userID, jobID, models.JobQueued, JobUpdate{
		InputFile:  &path,
		Parameters: parameters,
	}); err != nil {
		return "", err
	}
	return path, nil
}

// uploadFailureMessage strips the error-class prefix so the stored message
// reads as a user-facing diagnostic.
func uploadFailureMessage(err error) string {
	msg, _ := strings.CutPrefix(err.Error(), common.ErrValidation.Error()+": ")
	return msg
}

func mapJobErr(err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrUnknownJob
	}
	return err
}
