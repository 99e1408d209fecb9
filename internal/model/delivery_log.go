package model

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the raw inbound payload as received, kept verbatim so a
// delivery can be replayed after the fact.
type WebhookEvent struct {
	ID         int64           `json:"id"`
	Platform   Platform        `json:"platform"`
	DeliveryID string          `json:"delivery_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DeliveryStatus string

const (
	DeliveryStatusQueued     DeliveryStatus = "queued"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDone       DeliveryStatus = "done"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// DeliveryLog is the durable ledger row for one accepted event. The
// idempotency key collapses duplicate deliveries to a single row; lifecycle
// moves queued -> processing -> done|failed, and failed is terminal (replay
// allocates a new row with a fresh key instead of resetting this one).
type DeliveryLog struct {
	ID             int64           `json:"id"`
	Platform       Platform        `json:"platform"`
	DeliveryID     string          `json:"delivery_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	WebhookEventID int64           `json:"webhook_event_id"`
	InstallationID *int64          `json:"installation_id,omitempty"`
	Status         DeliveryStatus  `json:"status"`
	Event          json.RawMessage `json:"event"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NormalizedEvent decodes the canonical event snapshot stored on the row.
func (d *DeliveryLog) NormalizedEvent() (CanonicalEvent, error) {
	var event CanonicalEvent
	err := json.Unmarshal(d.Event, &event)
	return event, err
}
