// Package orchestrator runs queued analysis jobs in the background: it loads
// the uploaded input, executes the tracer models, writes the contributions
// artifact, and drives the job row through its status transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/logging"
	"github.com/oasis-water/oasis-backend/internal/server/analysis"
	"github.com/oasis-water/oasis-backend/internal/server/artifacts"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/services"
)

// JobManager is the slice of the job service the orchestrator needs.
type JobManager interface {
	Get(ctx context.Context, userID, jobID string) (*models.Job, error)
	Transition(ctx context.Context, userID, jobID string, newStatus models.JobStatus, upd services.JobUpdate) (*models.Job, error)
	UpdateProgress(ctx context.Context, userID, jobID string, percent float64) (*models.Job, error)
}

// ArtifactStore mirrors finished result files to object storage.
type ArtifactStore interface {
	Enabled() bool
	Put(ctx context.Context, key, localPath string) error
}

// progress reported by the models is kept inside this band so the UI never
// shows a running job at 0% or jumping to done before the row is terminal.
const (
	minRunProgress = 10
	maxRunProgress = 95
)

const queueCapacity = 128

type task struct {
	userID string
	jobID  string
}

// Orchestrator owns a fixed worker pool fed by a bounded queue. When the
// queue is full a job is started on a dedicated goroutine instead, so the
// request path never blocks on Begin.
type Orchestrator struct {
	jobs      JobManager
	loader    *analysis.Loader
	runner    *analysis.Runner
	artifacts ArtifactStore
	logger    logging.Logger

	outputRoot string

	tasks chan task
	wg    sync.WaitGroup
	once  sync.Once
}

// New constructs an Orchestrator writing outputs under dataDir/outputs.
// store may be nil when object storage is not configured.
func New(jobs JobManager, store ArtifactStore, dataDir string, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		loader:     &analysis.Loader{},
		runner:     &analysis.Runner{},
		artifacts:  store,
		logger:     logger.With("component", "orchestrator"),
		outputRoot: filepath.Join(dataDir, "outputs"),
		tasks:      make(chan task, queueCapacity),
	}
}

// Start launches workers goroutines consuming the task queue.
func (o *Orchestrator) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for t := range o.tasks {
				o.process(t)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	o.once.Do(func() { close(o.tasks) })
	o.wg.Wait()
}

// Begin moves a queued job to processing and schedules its execution. Only
// queued jobs may start; anything else fails with common.ErrInvalidTransition
// and leaves the row untouched.
func (o *Orchestrator) Begin(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := o.jobs.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobQueued {
		return nil, fmt.Errorf("%w: job is %s, only queued jobs can be started", common.ErrInvalidTransition, job.Status)
	}

	started := 1.0
	job, err = o.jobs.Transition(ctx, userID, jobID, models.JobProcessing, services.JobUpdate{
		Progress:   &started,
		ClearError: true,
	})
	if err != nil {
		return nil, err
	}

	t := task{userID: userID, jobID: jobID}
	select {
	case o.tasks <- t:
	default:
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.process(t)
		}()
	}
	return job, nil
}

// process executes one job to a terminal status. It runs on a background
// context so a finished HTTP request cannot cancel the work.
func (o *Orchestrator) process(t task) {
	ctx := context.Background()
	log := o.logger.With("user_id", t.userID, "job_id", t.jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "job panicked", "panic", r)
			o.fail(ctx, t, fmt.Sprintf("internal error: %v", r))
		}
	}()

	job, err := o.jobs.Get(ctx, t.userID, t.jobID)
	if err != nil {
		log.Error(ctx, "failed to load job", "error", err)
		return
	}

	if job.InputFile == "" {
		o.fail(ctx, t, "no input file uploaded for this job")
		return
	}

	start := time.Now()
	log.Info(ctx, "job started", "input_file", job.InputFile)

	report := func(pct float64, msg string) {
		pct = min(max(pct, minRunProgress), maxRunProgress)
		if _, err := o.jobs.UpdateProgress(ctx, t.userID, t.jobID, pct); err != nil {
			log.Warn(ctx, "progress update failed", "percent", pct, "error", err)
		}
		log.Debug(ctx, "progress", "percent", pct, "message", msg)
	}

	report(10, "Loading input file...")
	table, err := o.loader.Load(job.InputFile)
	if err != nil {
		o.fail(ctx, t, jobFailureMessage(err))
		return
	}

	result, err := o.runner.Run(table, job.Parameters, report)
	if err != nil {
		o.fail(ctx, t, jobFailureMessage(err))
		return
	}

	outputDir := filepath.Join(o.outputRoot, t.userID, t.jobID)
	resultsCSV := filepath.Join(outputDir, "contributions.csv")

	modelType, sampleCount, err := analysis.BuildContributions(table, resultsCSV)
	if err != nil {
		o.fail(ctx, t, jobFailureMessage(err))
		return
	}

	parameters := make(map[string]any, len(job.Parameters)+4)
	for k, v := range job.Parameters {
		parameters[k] = v
	}
	parameters["sample_count"] = sampleCount
	parameters["model_type"] = modelType
	parameters["models_run"] = result.ModelsRun
	parameters["processing_time_seconds"] = time.Since(start).Seconds()

	if _, err := o.jobs.Transition(ctx, t.userID, t.jobID, models.JobCompleted, services.JobUpdate{
		ResultsCSV: &resultsCSV,
		OutputDir:  &outputDir,
		Parameters: parameters,
		ClearError: true,
	}); err != nil {
		log.Error(ctx, "failed to mark job completed", "error", err)
		return
	}

	o.mirrorArtifact(ctx, t, resultsCSV)
	log.Info(ctx, "job completed", "model_type", modelType, "samples", sampleCount, "elapsed", time.Since(start))
}

// fail marks the job failed, keeping its parameters and recording message.
// Progress is forced to 100 so clients stop polling for movement.
func (o *Orchestrator) fail(ctx context.Context, t task, message string) {
	done := 100.0
	if _, err := o.jobs.Transition(ctx, t.userID, t.jobID, models.JobFailed, services.JobUpdate{
		Progress:     &done,
		ErrorMessage: &message,
	}); err != nil {
		o.logger.Error(ctx, "failed to mark job failed", "user_id", t.userID, "job_id", t.jobID, "error", err)
	}
}

// mirrorArtifact uploads the results CSV when object storage is enabled.
// Upload failures are logged only: the local artifact is authoritative.
func (o *Orchestrator) mirrorArtifact(ctx context.Context, t task, resultsCSV string) {
	if o.artifacts == nil || !o.artifacts.Enabled() {
		return
	}
	key := artifacts.StorageKey(t.userID, t.jobID)
	if err := o.artifacts.Put(ctx, key, resultsCSV); err != nil {
		o.logger.Warn(ctx, "artifact upload failed", "key", key, "error", err)
	}
}

// jobFailureMessage strips the sentinel prefix from validation errors so the
// stored message reads like a user-facing diagnosis.
func jobFailureMessage(err error) string {
	if errors.Is(err, common.ErrValidation) {
		msg, _ := strings.CutPrefix(err.Error(), common.ErrValidation.Error()+": ")
		return msg
	}
	return err.Error()
}
