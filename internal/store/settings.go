package store

import (
	"context"
	"encoding/json"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/internal/model"
)

type settingsStore struct {
	q Querier
}

func newSettingsStore(q Querier) SettingsStore {
	return &settingsStore{q: q}
}

func (s *settingsStore) GetOrCreate(ctx context.Context, platform model.Platform, installationID int64, defaults map[string]bool) (*model.InstallationSettings, error) {
	defaultFlags, err := marshalFlags(defaults)
	if err != nil {
		return nil, err
	}

	// First reference materializes the row with defaults; later reads keep
	// whatever overrides were stored.
	row := s.q.QueryRow(ctx, `
		INSERT INTO installation_settings (id, platform, installation_id, flags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform, installation_id) DO UPDATE SET installation_id = EXCLUDED.installation_id
		RETURNING id, platform, installation_id, flags, created_at, updated_at`,
		id.New(), platform, installationID, defaultFlags,
	)

	var settings model.InstallationSettings
	var rawFlags []byte
	if err := row.Scan(&settings.ID, &settings.Platform, &settings.InstallationID, &rawFlags, &settings.CreatedAt, &settings.UpdatedAt); err != nil {
		return nil, err
	}

	stored := map[string]bool{}
	if len(rawFlags) > 0 {
		if err := json.Unmarshal(rawFlags, &stored); err != nil {
			return nil, err
		}
	}

	// Stored overrides win; defaults fill any flag added since the row was
	// created.
	merged := make(map[string]bool, len(defaults))
	for name, value := range defaults {
		merged[name] = value
	}
	for name, value := range stored {
		merged[name] = value
	}
	settings.Flags = merged

	return &settings, nil
}

func (s *settingsStore) Update(ctx context.Context, settings *model.InstallationSettings) error {
	flags, err := marshalFlags(settings.Flags)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		UPDATE installation_settings
		SET flags = $2, updated_at = now()
		WHERE id = $1`,
		settings.ID, flags,
	)
	return err
}
