package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fossmate.app/fossmate/internal/model"
)

type deliveryLogStore struct {
	q Querier
}

func newDeliveryLogStore(q Querier) DeliveryLogStore {
	return &deliveryLogStore{q: q}
}

const deliveryLogColumns = `
	id, platform, delivery_id, idempotency_key, webhook_event_id,
	installation_id, status, event, error, created_at, updated_at`

func (s *deliveryLogStore) CreateOrGet(ctx context.Context, entry *model.DeliveryLog) (*model.DeliveryLog, bool, error) {
	// The no-op DO UPDATE makes the conflicting row visible to RETURNING,
	// so duplicates come back as the existing entry instead of an error.
	row := s.q.QueryRow(ctx, `
		INSERT INTO delivery_logs (id, platform, delivery_id, idempotency_key, webhook_event_id, installation_id, status, event)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING `+deliveryLogColumns,
		entry.ID, entry.Platform, entry.DeliveryID, entry.IdempotencyKey,
		entry.WebhookEventID, entry.InstallationID, model.DeliveryStatusQueued, []byte(entry.Event),
	)

	stored, err := scanDeliveryLog(row)
	if err != nil {
		return nil, false, err
	}

	created := stored.ID == entry.ID
	return stored, created, nil
}

func (s *deliveryLogStore) GetByID(ctx context.Context, id int64) (*model.DeliveryLog, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+deliveryLogColumns+`
		FROM delivery_logs
		WHERE id = $1`,
		id,
	)

	entry, err := scanDeliveryLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *deliveryLogStore) ClaimQueued(ctx context.Context, id int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE delivery_logs
		SET status = $2, error = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, model.DeliveryStatusProcessing, model.DeliveryStatusQueued,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *deliveryLogStore) MarkDone(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE delivery_logs
		SET status = $2, updated_at = now()
		WHERE id = $1`,
		id, model.DeliveryStatusDone,
	)
	return err
}

func (s *deliveryLogStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE delivery_logs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, model.DeliveryStatusFailed, errMsg,
	)
	return err
}

func (s *deliveryLogStore) CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int64, error) {
	rows, err := s.q.Query(ctx, `
		SELECT status, count(*)
		FROM delivery_logs
		GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.DeliveryStatus]int64)
	for rows.Next() {
		var status model.DeliveryStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *deliveryLogStore) ListRecent(ctx context.Context, limit int32) ([]model.DeliveryLog, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+deliveryLogColumns+`
		FROM delivery_logs
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.DeliveryLog
	for rows.Next() {
		entry, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanDeliveryLog(row pgx.Row) (*model.DeliveryLog, error) {
	var entry model.DeliveryLog
	err := row.Scan(
		&entry.ID, &entry.Platform, &entry.DeliveryID, &entry.IdempotencyKey,
		&entry.WebhookEventID, &entry.InstallationID, &entry.Status,
		&entry.Event, &entry.Error, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
