package queue

import (
	"context"
	"errors"

	"github.com/mlcraft/sandboxd/internal/executor"
	"github.com/mlcraft/sandboxd/internal/metrics"
)

var ErrQueueFull = errors.New("execution queue is full")

// Job is one queued execution. Result carries exactly one value; the
// executor never errors, so there is no separate error channel.
type Job struct {
	ID      string
	Request executor.Request
	Result  chan *executor.Result
	Ctx     context.Context
}

type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// Submit enqueues without blocking; a full queue is the caller's problem.
func (m *Manager) Submit(job *Job) error {
	select {
	case m.jobQueue <- job:
		metrics.QueueDepth.Set(float64(len(m.jobQueue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

// Dequeued refreshes the depth gauge; workers call it after taking a job.
func (m *Manager) Dequeued() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
