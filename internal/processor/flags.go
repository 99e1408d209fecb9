package processor

import (
	"context"
	"log/slog"

	"fossmate.app/fossmate/core/config"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/store"
)

// Feature flag names, as stored in installation settings.
const (
	FlagPRSummary         = "pr_summary"
	FlagFileSummary       = "file_summary"
	FlagReviewSuggestions = "review_suggestions"
	FlagScoring           = "scoring"
	FlagCommitTrigger     = "commit_trigger"
	FlagEmailReports      = "email_reports"
	FlagCommentAutoReply  = "comment_auto_reply"
	FlagCommentReplyAll   = "comment_reply_all"
)

// FeatureFlags resolves the effective flag set for an installation:
// process defaults merged with any stored per-installation overrides.
type FeatureFlags struct {
	settings store.SettingsStore
	defaults config.FeatureDefaults
}

func NewFeatureFlags(settings store.SettingsStore, defaults config.FeatureDefaults) *FeatureFlags {
	return &FeatureFlags{settings: settings, defaults: defaults}
}

// For returns the effective flags. Events without an installation id and
// settings-load failures both fall back to the process defaults, so flag
// resolution never blocks processing.
func (f *FeatureFlags) For(ctx context.Context, platform model.Platform, installationID *int64) map[string]bool {
	defaults := f.defaults.Map()
	if installationID == nil {
		return defaults
	}

	settings, err := f.settings.GetOrCreate(ctx, platform, *installationID, defaults)
	if err != nil {
		slog.WarnContext(ctx, "loading installation settings failed, using defaults",
			"installation_id", *installationID, "error", err)
		return defaults
	}
	return settings.Flags
}
