package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mlcraft/sandboxd/internal/executor"
	"github.com/mlcraft/sandboxd/internal/metrics"
	"github.com/mlcraft/sandboxd/internal/queue"
	"github.com/mlcraft/sandboxd/internal/store"
)

// Worker drains the queue and runs each job through the executor. Each job
// gets its own disposable isolation unit; workers share nothing but the
// queue itself.
type Worker struct {
	id       int
	executor *executor.Executor
	manager  *queue.Manager
	history  *store.Store // nil when no database is configured
	logger   *zerolog.Logger
}

func New(id int, exec *executor.Executor, manager *queue.Manager, history *store.Store, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: exec,
		manager:  manager,
		history:  history,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.Dequeued()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	w.logger.Info().Int("worker_id", w.id).Str("job_id", job.ID).Msg("processing job")

	result := w.executor.Execute(job.Ctx, job.Request)

	metrics.ExecutionsTotal.WithLabelValues(resultStatus(result)).Inc()
	metrics.ExecutionDuration.Observe(result.ExecutionTime)

	if w.history != nil {
		rec := store.Record{
			ID:            job.ID,
			Passed:        result.Success,
			Error:         result.Error,
			ExecutionTime: result.ExecutionTime,
			TestCount:     len(result.Results),
		}
		if err := w.history.Save(job.Ctx, rec); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("recording execution failed")
		}
	}

	job.Result <- result
}

func resultStatus(r *executor.Result) string {
	switch {
	case r.Error != nil:
		return "error"
	case r.Success:
		return "passed"
	default:
		return "failed"
	}
}
