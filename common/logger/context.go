package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields carries structured fields that are automatically attached to
// every log record emitted within the enriched context.
type LogFields struct {
	DeliveryLogID  *int64
	ReviewRunID    *int64
	InstallationID *int64
	Platform       *string
	EventType      *string
	JobID          *string
	Component      string
}

// WithLogFields enriches ctx with structured log fields. Repeated calls
// merge, with newer non-nil/non-empty values winning.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields stored in ctx, or zero fields.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, update LogFields) LogFields {
	result := existing

	if update.DeliveryLogID != nil {
		result.DeliveryLogID = update.DeliveryLogID
	}
	if update.ReviewRunID != nil {
		result.ReviewRunID = update.ReviewRunID
	}
	if update.InstallationID != nil {
		result.InstallationID = update.InstallationID
	}
	if update.Platform != nil {
		result.Platform = update.Platform
	}
	if update.EventType != nil {
		result.EventType = update.EventType
	}
	if update.JobID != nil {
		result.JobID = update.JobID
	}
	if update.Component != "" {
		result.Component = update.Component
	}

	return result
}

// Ptr creates a pointer from a value, for inline LogFields construction.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
