package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mlcraft/sandboxd/internal/executor"
	"github.com/mlcraft/sandboxd/internal/queue"
)

// submitGrace is added on top of the sandbox timeout so the worker gets to
// report the timeout itself instead of the HTTP layer racing it.
const submitGrace = 5 * time.Second

type Handler struct {
	queueManager   *queue.Manager
	defaultTimeout time.Duration
}

func NewHandler(manager *queue.Manager, defaultTimeout time.Duration) *Handler {
	return &Handler{
		queueManager:   manager,
		defaultTimeout: defaultTimeout,
	}
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}
	if len(req.TestCases) == 0 {
		http.Error(w, "Missing test cases", http.StatusBadRequest)
		return
	}

	timeout := h.defaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout+submitGrace)
	defer cancel()

	job := &queue.Job{
		ID:      uuid.NewString(),
		Request: req,
		Result:  make(chan *executor.Result, 1),
		Ctx:     ctx,
	}

	if err := h.queueManager.Submit(job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	select {
	case res := <-job.Result:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	case <-ctx.Done():
		http.Error(w, "Execution timed out", http.StatusGatewayTimeout)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
