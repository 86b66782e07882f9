package sched

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/indielab/kaish/core/interp"
)

// Status is a job's lifecycle state.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Job is one backgrounded pipeline.
type Job struct {
	ID      int
	Text    string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	result *interp.ExecResult
}

// Status returns the job's current state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result returns the final result, nil while running.
func (j *Job) Result() *interp.ExecResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) finish(res *interp.ExecResult, cancelled bool) {
	j.mu.Lock()
	switch {
	case cancelled:
		j.status = StatusCancelled
	case res.Ok:
		j.status = StatusCompleted
	default:
		j.status = StatusFailed
	}
	j.result = res
	j.mu.Unlock()
	close(j.done)
}

// JobManager tracks background jobs. Terminal jobs are kept until reaped
// by a wait, so their results can always be observed once.
type JobManager struct {
	mu   sync.Mutex
	next int
	jobs map[int]*Job
}

// NewJobManager returns an empty manager.
func NewJobManager() *JobManager {
	return &JobManager{next: 1, jobs: map[int]*Job{}}
}

// Submit launches run on its own goroutine and returns the job handle
// immediately.
func (m *JobManager) Submit(ctx context.Context, text string, run func(ctx context.Context) *interp.ExecResult) *Job {
	jctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	job := &Job{
		ID:      m.next,
		Text:    text,
		Started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusRunning,
	}
	m.next++
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go func() {
		defer cancel()
		res := run(jctx)
		if res == nil {
			res = interp.FromCode(0)
		}
		job.finish(res, jctx.Err() != nil && !res.Ok)
	}()
	return job
}

// Get looks a job up by id.
func (m *JobManager) Get(id int) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// List returns all tracked jobs ordered by id.
func (m *JobManager) List() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel requests cancellation of a running job.
func (m *JobManager) Cancel(id int) error {
	j, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no such job: %%%d", id)
	}
	j.cancel()
	return nil
}

// Wait blocks until the job with id finishes, returns its result and
// reaps it. Interruptible through ctx.
func (m *JobManager) Wait(ctx context.Context, id int) (*interp.ExecResult, error) {
	j, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("no such job: %%%d", id)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.Done():
	}
	m.reap(id)
	return j.Result(), nil
}

// WaitAll waits for every currently tracked job, reaping each, and
// returns results keyed by job id.
func (m *JobManager) WaitAll(ctx context.Context) (map[int]*interp.ExecResult, error) {
	out := map[int]*interp.ExecResult{}
	for _, j := range m.List() {
		res, err := m.Wait(ctx, j.ID)
		if err != nil {
			return out, err
		}
		out[j.ID] = res
	}
	return out, nil
}

// CancelAll cancels every running job; shutdown path.
func (m *JobManager) CancelAll() {
	for _, j := range m.List() {
		j.cancel()
	}
}

func (m *JobManager) reap(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}
