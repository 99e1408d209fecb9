package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fossmate.app/fossmate/internal/model"
)

type webhookEventStore struct {
	q Querier
}

func newWebhookEventStore(q Querier) WebhookEventStore {
	return &webhookEventStore{q: q}
}

func (s *webhookEventStore) Create(ctx context.Context, event *model.WebhookEvent) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO webhook_events (id, platform, delivery_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		event.ID, event.Platform, event.DeliveryID, event.EventType, []byte(event.Payload),
	).Scan(&event.CreatedAt)
}

func (s *webhookEventStore) GetByID(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := s.q.QueryRow(ctx, `
		SELECT id, platform, delivery_id, event_type, payload, created_at
		FROM webhook_events
		WHERE id = $1`,
		id,
	).Scan(&event.ID, &event.Platform, &event.DeliveryID, &event.EventType, &event.Payload, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}
