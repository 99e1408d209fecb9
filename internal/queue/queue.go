// Package queue provides the asynchronous job pipeline between ingestion
// and processing. Jobs are ephemeral: they carry only identifiers, never
// mutable state, and are lost on process restart. The durable ledger is
// the source of truth for delivery lifecycle.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"fossmate.app/fossmate/common/logger"
)

// Job is one unit of work. Payload values are identifiers and small
// scalars only; workers re-read durable state from the store.
type Job struct {
	ID         string         `json:"id"`
	Handler    string         `json:"handler"`
	Payload    map[string]any `json:"payload"`
	TraceID    string         `json:"trace_id,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Handler processes one job. A returned error is logged and the job is
// dropped; retries are an operator concern via replay, not a queue one.
type Handler func(ctx context.Context, job Job) error

type Stats struct {
	Backend string `json:"backend"`
	Workers int    `json:"workers"`
	Pending int64  `json:"pending"`
}

// Queue is the backend contract. Handlers must be registered before
// Start; Enqueue is safe from any goroutine after Start.
type Queue interface {
	RegisterHandler(name string, fn Handler)
	Enqueue(ctx context.Context, handlerName string, payload map[string]any) (string, error)
	Start(ctx context.Context) error
	// Stop signals all workers and waits for them to exit. In-flight jobs
	// are abandoned, not completed.
	Stop(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// dispatcher owns the handler registry and the panic boundary shared by
// all backends.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string]Handler)}
}

func (d *dispatcher) register(name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

// dispatch runs the job's handler, converting panics into errors so a
// single bad job never takes down a worker.
func (d *dispatcher) dispatch(ctx context.Context, job Job) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:     logger.Ptr(job.ID),
		Component: "queue.worker",
	})

	d.mu.RLock()
	handler, ok := d.handlers[job.Handler]
	d.mu.RUnlock()

	if !ok {
		// A missing handler is a registration bug, not a runtime fault.
		slog.ErrorContext(ctx, "no handler registered for job, dropping", "handler", job.Handler)
		return
	}

	if err := d.run(ctx, handler, job); err != nil {
		slog.ErrorContext(ctx, "job handler failed, dropping job", "handler", job.Handler, "error", err)
	}
}

func (d *dispatcher) run(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, job)
}

func newJob(handlerName string, payload map[string]any, traceID string) Job {
	return Job{
		ID:         uuid.NewString(),
		Handler:    handlerName,
		Payload:    payload,
		TraceID:    traceID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// PayloadInt64 reads an integer payload field regardless of whether it
// arrived natively or via JSON decoding.
func PayloadInt64(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
