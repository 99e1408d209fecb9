package model

import "time"

// InstallationSettings holds per-installation feature flag overrides,
// lazily created with process defaults on first reference.
type InstallationSettings struct {
	ID             int64           `json:"id"`
	Platform       Platform        `json:"platform"`
	InstallationID int64           `json:"installation_id"`
	Flags          map[string]bool `json:"flags"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
