// Package worker runs long video renders asynchronously. Callers enqueue a
// task and poll the job by ID; a fixed pool of goroutines drains the queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnmchuo/inference-gateway/internal/service"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task produces the job's media payload. The context carries the per-job
// deadline.
type Task func(ctx context.Context) (*service.MediaResult, error)

type Job struct {
	ID         string
	TenantID   string
	Kind       string // "video.generate" or "video.animate"
	Status     Status
	Result     *service.MediaResult
	Err        error
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, tenantID, kind string, task Task) (*Job, error)
	Get(ctx context.Context, tenantID, jobID string) (*Job, error)
	Start(ctx context.Context)
}

type queued struct {
	id   string
	task Task
}

// DefaultRetention bounds how long a finished job (and its media payload)
// stays pollable before eviction.
const DefaultRetention = 15 * time.Minute

// MemoryQueue is an in-process Queue. Jobs do not survive a restart, and
// finished jobs are evicted after the retention window so completed media
// payloads do not accumulate for the process lifetime.
type MemoryQueue struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	pending   chan queued
	workers   int
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time // test seam
}

func NewMemoryQueue(workers, buffer int, jobTimeout, retention time.Duration) *MemoryQueue {
	if workers < 1 {
		workers = 1
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryQueue{
		jobs:      make(map[string]*Job),
		pending:   make(chan queued, buffer),
		workers:   workers,
		timeout:   jobTimeout,
		retention: retention,
		now:       time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, tenantID, kind string, task Task) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: q.now(),
	}

	q.mu.Lock()
	q.evictExpiredLocked()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- queued{id: job.ID, task: task}:
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	return q.snapshot(job.ID), nil
}

// Get returns a copy of the job. Jobs are tenant-scoped: asking for another
// tenant's job behaves as not found, and so does a job past its retention
// window.
func (q *MemoryQueue) Get(_ context.Context, tenantID, jobID string) (*Job, error) {
	q.mu.Lock()
	q.evictExpiredLocked()
	job, ok := q.jobs[jobID]
	if !ok || job.TenantID != tenantID {
		q.mu.Unlock()
		return nil, ErrJobNotFound
	}
	out := *job
	q.mu.Unlock()
	return &out, nil
}

// Start launches the worker pool and returns. Workers exit when ctx is
// cancelled.
func (q *MemoryQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		go q.run(ctx)
	}
}

func (q *MemoryQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.pending:
			q.execute(ctx, item)
		}
	}
}

func (q *MemoryQueue) execute(ctx context.Context, item queued) {
	q.transition(item.id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = q.now()
	})

	jobCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	result, err := item.task(jobCtx)

	q.transition(item.id, func(j *Job) {
		j.FinishedAt = q.now()
		if err != nil {
			j.Status = StatusFailed
			j.Err = err
			slog.Warn("async job failed", "job_id", j.ID, "kind", j.Kind, "error", err)
			return
		}
		j.Status = StatusDone
		j.Result = result
		slog.Info("async job finished", "job_id", j.ID, "kind", j.Kind, "elapsed", j.FinishedAt.Sub(j.StartedAt))
	})
}

func (q *MemoryQueue) transition(jobID string, fn func(*Job)) {
	q.mu.Lock()
	if job, ok := q.jobs[jobID]; ok {
		fn(job)
	}
	q.mu.Unlock()
}

// evictExpiredLocked drops finished jobs older than the retention window.
// Callers must hold q.mu.
func (q *MemoryQueue) evictExpiredLocked() {
	cutoff := q.now().Add(-q.retention)
	for id, job := range q.jobs {
		if job.Status != StatusDone && job.Status != StatusFailed {
			continue
		}
		if job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

func (q *MemoryQueue) snapshot(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		out := *job
		return &out
	}
	return nil
}
