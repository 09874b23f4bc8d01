// Package natsbridge exposes execution over NATS request/reply for internal
// callers that do not speak HTTP.
package natsbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mlcraft/sandboxd/internal/executor"
	"github.com/mlcraft/sandboxd/internal/queue"
)

const ExecuteSubject = "sandbox.execute.request"

type Bridge struct {
	nc      *nats.Conn
	manager *queue.Manager
	timeout time.Duration
	logger  *zerolog.Logger
	sub     *nats.Subscription
}

func New(nc *nats.Conn, manager *queue.Manager, timeout time.Duration, logger *zerolog.Logger) *Bridge {
	return &Bridge{nc: nc, manager: manager, timeout: timeout, logger: logger}
}

func (b *Bridge) Subscribe() error {
	sub, err := b.nc.Subscribe(ExecuteSubject, b.handle)
	if err != nil {
		return err
	}
	b.sub = sub
	b.logger.Info().Str("subject", ExecuteSubject).Msg("listening for execution requests")
	return nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	var req executor.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.logger.Warn().Err(err).Msg("malformed execution request")
		b.reply(msg, errorResult("Invalid request payload"))
		return
	}

	timeout := b.timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	job := &queue.Job{
		ID:      uuid.NewString(),
		Request: req,
		Result:  make(chan *executor.Result, 1),
		Ctx:     ctx,
	}
	if err := b.manager.Submit(job); err != nil {
		b.reply(msg, errorResult(err.Error()))
		return
	}

	select {
	case res := <-job.Result:
		b.reply(msg, res)
	case <-ctx.Done():
		b.reply(msg, errorResult("Execution timed out"))
	}
}

func (b *Bridge) reply(msg *nats.Msg, res *executor.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		b.logger.Error().Err(err).Msg("encoding reply failed")
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn().Err(err).Msg("replying failed")
	}
}

func (b *Bridge) Drain() {
	if b.sub != nil {
		_ = b.sub.Drain()
	}
}

func errorResult(msg string) *executor.Result {
	return &executor.Result{
		Success: false,
		Results: []executor.TestResult{},
		Error:   &msg,
	}
}
