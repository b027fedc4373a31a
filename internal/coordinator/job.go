package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/focusflow/splitd/internal/models"
)

// JobStatus is the externally visible state of an expansion job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Result carries the updated subtree after a successful expansion.
type Result struct {
	Node     *models.TaskNode   `json:"node"`
	Children []*models.TaskNode `json:"children"`
}

// Job is the handle for one asynchronous expansion. Exactly one job may own
// a node at a time; the handle resolves to an updated subtree or a typed
// error.
type Job struct {
	ID        string
	NodeID    string
	TaskID    string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *Result
	err    error
}

func newJob(id, nodeID, taskID string, cancel context.CancelFunc) *Job {
	return &Job{
		ID:        id,
		NodeID:    nodeID,
		TaskID:    taskID,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel aborts the outstanding reasoning call. Cancellation is not a third
// outcome: the job resolves as failed and the node reverts to stub.
func (j *Job) Cancel() { j.cancel() }

// Status reports the job's current state.
func (j *Job) Status() JobStatus {
	select {
	case <-j.done:
	default:
		return JobRunning
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return JobFailed
	}
	return JobSucceeded
}

// Result returns the outcome once the job is done; calling it earlier
// returns a nil result with a nil error.
func (j *Job) Result() (*Result, error) {
	select {
	case <-j.done:
	default:
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Wait blocks until the job resolves or ctx expires.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) finish(res *Result, err error) {
	j.mu.Lock()
	j.result = res
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
