// Package ingest owns the idempotency ledger: it collapses duplicate
// webhook deliveries to a single ledger entry and enqueues processing
// work only for newly created entries.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/common/logger"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/queue"
	"fossmate.app/fossmate/internal/store"
)

// HandlerProcessDeliveryLog is the queue handler name for delivery
// processing jobs. Payloads carry only the ledger entry id.
const HandlerProcessDeliveryLog = "process_delivery_log"

// ComputeIdempotencyKey derives the globally unique key that collapses
// duplicate deliveries. delivery_id alone is unique only per platform.
func ComputeIdempotencyKey(platform model.Platform, deliveryID, eventType, action string) string {
	return fmt.Sprintf("%s:%s:%s:%s", platform, deliveryID, eventType, action)
}

type Service struct {
	events store.WebhookEventStore
	logs   store.DeliveryLogStore
	queue  queue.Queue
}

func NewService(events store.WebhookEventStore, logs store.DeliveryLogStore, q queue.Queue) *Service {
	return &Service{events: events, logs: logs, queue: q}
}

// Ingest persists the raw payload and a queued ledger entry, then
// enqueues a processing job. A delivery whose idempotency key already
// exists short-circuits to the stored entry: no new ledger row, no new
// enqueue, and the boolean reports duplicate=true.
func (s *Service) Ingest(ctx context.Context, event model.CanonicalEvent, rawPayload []byte) (*model.DeliveryLog, bool, error) {
	if event.Platform == "" || event.DeliveryID == "" || event.EventType == "" {
		return nil, false, fmt.Errorf("event is missing platform, delivery id or event type")
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Platform:  logger.Ptr(string(event.Platform)),
		EventType: logger.Ptr(event.EventType),
		Component: "ingest",
	})

	snapshot, err := json.Marshal(event)
	if err != nil {
		return nil, false, fmt.Errorf("encoding event snapshot: %w", err)
	}

	webhookEvent := &model.WebhookEvent{
		ID:         id.New(),
		Platform:   event.Platform,
		DeliveryID: event.DeliveryID,
		EventType:  event.EventType,
		Payload:    rawPayload,
	}
	if err := s.events.Create(ctx, webhookEvent); err != nil {
		return nil, false, fmt.Errorf("storing raw payload: %w", err)
	}

	candidate := &model.DeliveryLog{
		ID:             id.New(),
		Platform:       event.Platform,
		DeliveryID:     event.DeliveryID,
		IdempotencyKey: ComputeIdempotencyKey(event.Platform, event.DeliveryID, event.EventType, event.Action),
		WebhookEventID: webhookEvent.ID,
		InstallationID: event.InstallationID,
		Status:         model.DeliveryStatusQueued,
		Event:          snapshot,
	}

	entry, created, err := s.logs.CreateOrGet(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("creating ledger entry: %w", err)
	}

	if !created {
		slog.InfoContext(ctx, "duplicate delivery, reusing existing ledger entry",
			"delivery_log_id", entry.ID, "idempotency_key", entry.IdempotencyKey)
		return entry, true, nil
	}

	if err := s.enqueue(ctx, entry); err != nil {
		// The queued row remains; an operator replay can pick it up.
		return entry, false, fmt.Errorf("enqueueing delivery: %w", err)
	}

	slog.InfoContext(ctx, "delivery accepted and enqueued",
		"delivery_log_id", entry.ID, "action", event.Action)
	return entry, false, nil
}

// Replay allocates a fresh ledger entry for an existing delivery and
// re-enqueues it. Failed entries are terminal, so reprocessing always
// goes through a new row with a freshly derived key.
func (s *Service) Replay(ctx context.Context, deliveryLogID int64) (*model.DeliveryLog, error) {
	existing, err := s.logs.GetByID(ctx, deliveryLogID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger entry %d: %w", deliveryLogID, err)
	}

	candidate := &model.DeliveryLog{
		ID:             id.New(),
		Platform:       existing.Platform,
		DeliveryID:     existing.DeliveryID,
		IdempotencyKey: replayKey(existing),
		WebhookEventID: existing.WebhookEventID,
		InstallationID: existing.InstallationID,
		Status:         model.DeliveryStatusQueued,
		Event:          existing.Event,
	}

	entry, created, err := s.logs.CreateOrGet(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("creating replay entry: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("replay key collision for entry %d", deliveryLogID)
	}

	if err := s.enqueue(ctx, entry); err != nil {
		return entry, fmt.Errorf("enqueueing replay: %w", err)
	}

	slog.InfoContext(ctx, "replay entry created",
		"delivery_log_id", entry.ID, "source_delivery_log_id", deliveryLogID)
	return entry, nil
}

func (s *Service) enqueue(ctx context.Context, entry *model.DeliveryLog) error {
	_, err := s.queue.Enqueue(ctx, HandlerProcessDeliveryLog, map[string]any{
		"delivery_log_id": entry.ID,
	})
	return err
}

func replayKey(entry *model.DeliveryLog) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("replay:%d:%d:%d",
		entry.ID, entry.WebhookEventID, time.Now().UnixNano())))
	return "replay:" + hex.EncodeToString(sum[:])[:40]
}
