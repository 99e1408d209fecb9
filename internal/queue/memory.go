package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"fossmate.app/fossmate/common/logger"
)

const defaultBufferSize = 1024

// MemoryQueue is the default single-process backend: a buffered channel
// drained by a fixed pool of workers, FIFO, no priorities.
type MemoryQueue struct {
	dispatcher *dispatcher
	jobs       chan Job
	workers    int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewMemoryQueue(workers int) *MemoryQueue {
	if workers < 1 {
		workers = 1
	}
	return &MemoryQueue{
		dispatcher: newDispatcher(),
		jobs:       make(chan Job, defaultBufferSize),
		workers:    workers,
	}
}

func (q *MemoryQueue) RegisterHandler(name string, fn Handler) {
	q.dispatcher.register(name, fn)
}

func (q *MemoryQueue) Enqueue(ctx context.Context, handlerName string, payload map[string]any) (string, error) {
	traceID := ""
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}

	job := newJob(handlerName, payload, traceID)

	select {
	case q.jobs <- job:
	default:
		return "", fmt.Errorf("queue capacity exhausted (%d pending)", len(q.jobs))
	}

	slog.InfoContext(ctx, "job enqueued", "job_id", job.ID, "handler", handlerName)
	return job.ID, nil
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(workerCtx)
	}

	slog.InfoContext(ctx, "memory queue started", "workers", q.workers)
	return nil
}

func (q *MemoryQueue) workerLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			jobCtx := ctx
			if job.TraceID != "" {
				span := logger.StartSpanFromTraceID(ctx, job.TraceID, "queue.process")
				jobCtx = span.Context()
				q.dispatcher.dispatch(jobCtx, job)
				span.End()
				continue
			}
			q.dispatcher.dispatch(jobCtx, job)
		}
	}
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return nil
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.started = false
	return nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	return Stats{
		Backend: "memory",
		Workers: q.workers,
		Pending: int64(len(q.jobs)),
	}, nil
}
