package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"fossmate.app/fossmate/common/logger"
)

type RedisQueueConfig struct {
	Stream  string
	Group   string
	Workers int
	// Block bounds how long a worker waits on an empty stream before
	// re-checking for shutdown.
	Block time.Duration
}

// RedisQueue routes jobs through a Redis stream with a consumer group,
// for deployments where ingestion and processing run in separate
// processes. Same at-least-once, drop-on-failure semantics as the
// memory backend.
type RedisQueue struct {
	dispatcher *dispatcher
	client     *redis.Client
	cfg        RedisQueueConfig
	consumer   string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	return &RedisQueue{
		dispatcher: newDispatcher(),
		client:     client,
		cfg:        cfg,
		consumer:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

func (q *RedisQueue) RegisterHandler(name string, fn Handler) {
	q.dispatcher.register(name, fn)
}

func (q *RedisQueue) Enqueue(ctx context.Context, handlerName string, payload map[string]any) (string, error) {
	traceID := ""
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}

	job := newJob(handlerName, payload, traceID)

	encoded, err := json.Marshal(job.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}

	fields := map[string]any{
		"job_id":      job.ID,
		"handler":     job.Handler,
		"payload":     string(encoded),
		"enqueued_at": job.EnqueuedAt.Format(time.RFC3339Nano),
	}
	if traceID != "" {
		fields["trace_id"] = traceID
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: fields,
	}).Err(); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	slog.InfoContext(ctx, "job enqueued", "job_id", job.ID, "handler", handlerName, "stream", q.cfg.Stream)
	return job.ID, nil
}

func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}

	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	q.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(workerCtx)
	}

	slog.InfoContext(ctx, "redis queue started",
		"workers", q.cfg.Workers, "stream", q.cfg.Stream, "group", q.cfg.Group)
	return nil
}

// Starting the group at "0" instead of "$" keeps messages added before a
// restart visible to the new group.
func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (q *RedisQueue) workerLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    1,
			Block:    q.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			slog.ErrorContext(ctx, "reading from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.processMessage(ctx, msg)
			}
		}
	}
}

func (q *RedisQueue) processMessage(ctx context.Context, msg redis.XMessage) {
	// Ack up front: failed jobs are dropped, not redelivered. Replay goes
	// through the ledger, never the stream.
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, msg.ID).Err(); err != nil {
		slog.ErrorContext(ctx, "acking message", "error", err, "message_id", msg.ID)
	}

	job, err := parseJob(msg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse queue message, dropping",
			"error", err, "message_id", msg.ID)
		return
	}

	if job.TraceID != "" {
		span := logger.StartSpanFromTraceID(ctx, job.TraceID, "queue.process")
		q.dispatcher.dispatch(span.Context(), job)
		span.End()
		return
	}
	q.dispatcher.dispatch(ctx, job)
}

func (q *RedisQueue) Stop(ctx context.Context) error {
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
	return q.client.Close()
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.client.XLen(ctx, q.cfg.Stream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("reading stream length: %w", err)
	}
	return Stats{
		Backend: "redis_streams",
		Workers: q.cfg.Workers,
		Pending: pending,
	}, nil
}

func parseJob(msg redis.XMessage) (Job, error) {
	jobID, _ := msg.Values["job_id"].(string)
	handler, _ := msg.Values["handler"].(string)
	if handler == "" {
		return Job{}, fmt.Errorf("missing handler")
	}

	payload := map[string]any{}
	if raw, ok := msg.Values["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Job{}, fmt.Errorf("decoding payload: %w", err)
		}
	}

	traceID, _ := msg.Values["trace_id"].(string)

	enqueuedAt := time.Now().UTC()
	if raw, ok := msg.Values["enqueued_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			enqueuedAt = t
		}
	}

	return Job{
		ID:         jobID,
		Handler:    handler,
		Payload:    payload,
		TraceID:    traceID,
		EnqueuedAt: enqueuedAt,
	}, nil
}
