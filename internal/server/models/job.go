package models

import "time"

// JobStatus is the one-way job state machine:
// queued -> processing -> {completed, failed}.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Valid reports whether s is a member of the status enum.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition occurs after s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a user-owned analysis job. Parameters is an open, schema-less map
// whose shape is defined by the loader and the analysis models; it is
// persisted as an encoded blob. CompletedAt is non-nil iff the status is
// terminal.
type Job struct {
	ID              string
	UserID          string
	Status          JobStatus
	ProgressPercent float64
	ErrorMessage    string
	InputFile       string
	ResultsCSV      string
	Parameters      map[string]any
	CreatedAt       time.Time
	CompletedAt     *time.Time
	OutputDir       string
}
