package store

import (
	"context"
	"encoding/json"
	"errors"

	"fossmate.app/fossmate/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// WebhookEventStore persists raw inbound payloads for audit and replay.
type WebhookEventStore interface {
	Create(ctx context.Context, event *model.WebhookEvent) error
	GetByID(ctx context.Context, id int64) (*model.WebhookEvent, error)
}

// DeliveryLogStore owns the idempotency ledger and its lifecycle state.
type DeliveryLogStore interface {
	// CreateOrGet inserts the entry or returns the existing row with the
	// same idempotency key. The boolean reports whether a new row was
	// created; callers enqueue only when it is true.
	CreateOrGet(ctx context.Context, entry *model.DeliveryLog) (*model.DeliveryLog, bool, error)
	GetByID(ctx context.Context, id int64) (*model.DeliveryLog, error)
	// ClaimQueued atomically moves a queued entry to processing and clears
	// any prior error. Returns false when the entry was not in queued
	// state, which closes the double-processing race between workers.
	ClaimQueued(ctx context.Context, id int64) (bool, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error)
	ListRecent(ctx context.Context, limit int32) ([]model.DeliveryLog, error)
}

// ReviewRunStore defines the contract for review run data access
type ReviewRunStore interface {
	Create(ctx context.Context, run *model.ReviewRun) error
	// Finish writes the terminal state, result payload and latency, and
	// atomically attaches findings and an optional scorecard.
	Finish(ctx context.Context, run *model.ReviewRun, findings []model.ReviewFinding, scores *model.ScoreCard) error
	GetByID(ctx context.Context, id int64) (*model.ReviewRun, error)
	ListRecent(ctx context.Context, limit int32) ([]model.ReviewRun, error)
}

// SettingsStore defines the contract for installation settings access
type SettingsStore interface {
	// GetOrCreate lazily materializes a settings row with the supplied
	// defaults on first reference, then merges stored overrides over the
	// defaults on subsequent reads.
	GetOrCreate(ctx context.Context, platform model.Platform, installationID int64, defaults map[string]bool) (*model.InstallationSettings, error)
	Update(ctx context.Context, settings *model.InstallationSettings) error
}

// MetricStore defines the contract for developer metric data access
type MetricStore interface {
	Create(ctx context.Context, metric *model.DeveloperMetric) error
	Report(ctx context.Context, filter model.ReportFilter) ([]model.DeveloperReport, error)
}

func marshalFlags(flags map[string]bool) ([]byte, error) {
	if flags == nil {
		flags = map[string]bool{}
	}
	return json.Marshal(flags)
}
