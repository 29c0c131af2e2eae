package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/dbx"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/jobs"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/sessions"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/users"
)

// in-memory repositories mimicking the postgres implementations closely
// enough for service-level behavior.

type fakeUserRepo struct {
	mu          sync.Mutex
	byID        map[string]*models.User
	calls       struct{ lastSeen int }
	lastSeenErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	user.CreatedAt = now
	user.LastSeenAt = now
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) UpdateLastSeen(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSeenErr != nil {
		return f.lastSeenErr
	}
	u, ok := f.byID[userID]
	if !ok {
		return common.ErrNotFound
	}
	u.LastSeenAt = time.Now()
	f.calls.lastSeen++
	return nil
}

func (f *fakeUserRepo) List(ctx context.Context, limit int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.User
	for _, u := range f.byID {
		clone := *u
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type fakeSessionRepo struct {
	mu   sync.Mutex
	byID map[string]*models.RefreshSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: map[string]*models.RefreshSession{}}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.RefreshSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	f.byID[session.JTI] = session
	return nil
}

func (f *fakeSessionRepo) Find(ctx context.Context, jti string) (*models.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[jti]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (f *fakeSessionRepo) Revoke(ctx context.Context, jti string, replacedByJTI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[jti]
	if !ok {
		return nil
	}
	if s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	if s.ReplacedByJTI == "" && replacedByJTI != "" {
		s.ReplacedByJTI = replacedByJTI
	}
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{byID: map[string]*models.Job{}}
}

func (f *fakeJobRepo) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	clone := *job
	f.byID[job.ID] = &clone
	return job, nil
}

func (f *fakeJobRepo) GetForUser(ctx context.Context, userID, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[jobID]
	if !ok || j.UserID != userID {
		return nil, common.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (f *fakeJobRepo) Update(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[job.ID]
	if !ok || existing.UserID != job.UserID {
		return common.ErrNotFound
	}
	clone := *job
	f.byID[job.ID] = &clone
	return nil
}

func (f *fakeJobRepo) UpdateProgress(ctx context.Context, userID, jobID string, percent float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[jobID]
	if !ok || j.UserID != userID {
		return common.ErrNotFound
	}
	j.ProgressPercent = percent
	return nil
}

func (f *fakeJobRepo) ListForUser(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Job
	for _, j := range f.byID {
		if j.UserID != userID {
			continue
		}
		if status != nil && j.Status != *status {
			continue
		}
		clone := *j
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// fakeManager vends the in-memory repositories regardless of the DBTX.
type fakeManager struct {
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	jobs     *fakeJobRepo
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		jobs:     newFakeJobRepo(),
	}
}

func (f *fakeManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (f *fakeManager) Users(db dbx.DBTX) users.Repository { return f.users }

func (f *fakeManager) Sessions(db dbx.DBTX) sessions.Repository { return f.sessions }

func (f *fakeManager) Jobs(db dbx.DBTX) jobs.Repository { return f.jobs }
