package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
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

const jobColumns = `job_id, user_id, status, progress_percent, error_message,
       input_file, results_csv, parameters, created_at, completed_at, output_dir`

func encodeParameters(params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding parameters: %w", err)
	}
	return raw, nil
}

func scanJob(scan func(dest ...any) error) (*models.Job, error) {
	j := &models.Job{}
	var errorMessage, inputFile, resultsCSV, outputDir sql.NullString
	var completedAt sql.NullTime
	var rawParams []byte

	err := scan(&j.ID, &j.UserID, &j.Status, &j.ProgressPercent, &errorMessage,
		&inputFile, &resultsCSV, &rawParams, &j.CreatedAt, &completedAt, &outputDir)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	j.ErrorMessage = errorMessage.String
	j.InputFile = inputFile.String
	j.ResultsCSV = resultsCSV.String
	j.OutputDir = outputDir.String
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	j.Parameters = map[string]any{}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &j.Parameters); err != nil {
			return nil, fmt.Errorf("decoding parameters: %w", err)
		}
	}
	return j, nil
}

func (r *PostgresRepository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	raw, err := encodeParameters(job.Parameters)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO jobs (job_id, user_id, status, progress_percent, error_message,
		                  input_file, results_csv, parameters, created_at, completed_at, output_dir)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.Status, job.ProgressPercent, nullString(job.ErrorMessage),
		nullString(job.InputFile), nullString(job.ResultsCSV), raw,
		job.CreatedAt, job.CompletedAt, nullString(job.OutputDir)); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) GetForUser(ctx context.Context, userID, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1 AND user_id = $2`
	row := r.db.QueryRowContext(ctx, query, jobID, userID)
	return scanJob(row.Scan)
}

func (r *PostgresRepository) Update(ctx context.Context, job *models.Job) error {
	raw, err := encodeParameters(job.Parameters)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $1, progress_percent = $2, error_message = $3, input_file = $4,
		    results_csv = $5, parameters = $6, completed_at = $7, output_dir = $8
		WHERE job_id = $9 AND user_id = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		job.Status, job.ProgressPercent, nullString(job.ErrorMessage), nullString(job.InputFile),
		nullString(job.ResultsCSV), raw, job.CompletedAt, nullString(job.OutputDir),
		job.ID, job.UserID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, userID, jobID string, percent float64) error {
	query := `UPDATE jobs SET progress_percent = $1 WHERE job_id = $2 AND user_id = $3`
	res, err := r.db.ExecContext(ctx, query, percent, jobID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []any{userID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
