package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/scrimp/telemetry"
)

// JobState is the lifecycle of a refresh job.
type JobState string

const (
	JobRunning  JobState = "running"
	JobDone     JobState = "done"
	JobCanceled JobState = "canceled"
)

// JobStatus is a point-in-time snapshot callers poll.
type JobStatus struct {
	ID         string    `json:"id"`
	State      JobState  `json:"state"`
	Total      int       `json:"total"`
	Refreshed  int       `json:"refreshed"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Refresher forces tier-2/3 re-evaluation for every cached key,
// asynchronously. Callers get a job handle and either poll Status or block
// on Wait.
type Refresher struct {
	resolver *Resolver
	store    *Store
	logger   *telemetry.Logger

	mu   sync.Mutex
	jobs map[string]*refreshJob
}

type refreshJob struct {
	status JobStatus
	done   chan struct{}
}

// NewRefresher creates a refresher over a resolver and its store.
func NewRefresher(resolver *Resolver, store *Store) *Refresher {
	return &Refresher{
		resolver: resolver,
		store:    store,
		logger:   telemetry.NewLogger("pricing-refresh"),
		jobs:     make(map[string]*refreshJob),
	}
}

// Start snapshots the cached keys and refreshes them in the background.
// Returns the job handle immediately.
func (f *Refresher) Start(ctx context.Context) string {
	keys := f.store.Keys()
	id := uuid.NewString()

	f.mu.Lock()
	f.jobs[id] = &refreshJob{
		status: JobStatus{
			ID:        id,
			State:     JobRunning,
			Total:     len(keys),
			StartedAt: time.Now(),
		},
		done: make(chan struct{}),
	}
	f.mu.Unlock()

	go f.run(ctx, id, keys)
	return id
}

// Status returns a snapshot of one job.
func (f *Refresher) Status(id string) (JobStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return job.status, true
}

// Wait blocks until the job leaves the running state and returns its final
// status. Returns early with the current snapshot if ctx is canceled.
func (f *Refresher) Wait(ctx context.Context, id string) (JobStatus, error) {
	f.mu.Lock()
	job, ok := f.jobs[id]
	f.mu.Unlock()
	if !ok {
		return JobStatus{}, fmt.Errorf("unknown refresh job: %s", id)
	}

	select {
	case <-ctx.Done():
		status, _ := f.Status(id)
		return status, ctx.Err()
	case <-job.done:
	}
	status, _ := f.Status(id)
	return status, nil
}

func (f *Refresher) run(ctx context.Context, id string, keys []Key) {
	state := JobDone
	for _, key := range keys {
		if ctx.Err() != nil {
			state = JobCanceled
			break
		}

		_, err := f.resolver.GetPrice(ctx, key, true)
		f.mu.Lock()
		if err != nil {
			f.jobs[id].status.Failed++
		} else {
			f.jobs[id].status.Refreshed++
		}
		f.mu.Unlock()
	}

	f.mu.Lock()
	job := f.jobs[id]
	job.status.State = state
	job.status.FinishedAt = time.Now()
	refreshed, failed, total := job.status.Refreshed, job.status.Failed, job.status.Total
	close(job.done)
	f.mu.Unlock()

	f.logger.LogRefreshJob(ctx, id, refreshed, failed, total)
}
