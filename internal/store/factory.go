package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fossmate.app/fossmate/core/db"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// stores serve pooled and transactional access.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Stores struct {
	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	return &Stores{db: database}
}

func (s *Stores) WebhookEvents() WebhookEventStore {
	return newWebhookEventStore(s.db.Pool())
}

func (s *Stores) DeliveryLogs() DeliveryLogStore {
	return newDeliveryLogStore(s.db.Pool())
}

func (s *Stores) ReviewRuns() ReviewRunStore {
	return newReviewRunStore(s.db)
}

func (s *Stores) Settings() SettingsStore {
	return newSettingsStore(s.db.Pool())
}

func (s *Stores) Metrics() MetricStore {
	return newMetricStore(s.db.Pool())
}
