// Package normalizer turns platform-specific webhook payloads into the
// canonical event shape. All functions are pure; missing fields never
// cause a failure, they simply leave optional fields unset.
package normalizer

import (
	"strings"
	"time"

	"fossmate.app/fossmate/internal/model"
)

// NormalizeGitHub maps a GitHub webhook payload to a canonical event.
func NormalizeGitHub(eventType, deliveryID string, payload map[string]any) model.CanonicalEvent {
	repo := subMap(payload, "repository")
	pr := subMap(payload, "pull_request")
	issue := subMap(payload, "issue")
	sender := subMap(payload, "sender")
	installation := subMap(payload, "installation")

	occurredAt := firstTimestamp(
		stringField(payload, "timestamp"),
		stringField(pr, "updated_at"),
		stringField(pr, "created_at"),
		stringField(issue, "updated_at"),
		stringField(issue, "created_at"),
	)

	action := "unknown"
	if a := stringField(payload, "action"); a != "" {
		action = a
	}

	return model.CanonicalEvent{
		Platform:       model.PlatformGitHub,
		DeliveryID:     deliveryID,
		EventType:      eventType,
		Action:         action,
		InstallationID: int64Field(installation, "id"),
		RepoID:         int64Field(repo, "id"),
		RepoOwner:      stringField(subMap(repo, "owner"), "login"),
		RepoName:       stringField(repo, "name"),
		RepoFullName:   stringField(repo, "full_name"),
		PRNumber:       intField(pr, "number"),
		PRTitle:        optString(pr, "title"),
		IssueNumber:    intField(issue, "number"),
		IssueTitle:     optString(issue, "title"),
		SenderLogin:    stringField(sender, "login"),
		HeadSHA:        optString(subMap(pr, "head"), "sha"),
		OccurredAt:     occurredAt,
		Raw:            payload,
	}
}

// NormalizeGitLab maps a GitLab webhook payload to a canonical event.
// GitLab event names ("Merge Request Hook") are canonicalized by
// lower-casing, stripping the " hook" suffix and removing underscores so
// dispatch logic stays platform-agnostic.
func NormalizeGitLab(eventType, deliveryID string, payload map[string]any) model.CanonicalEvent {
	project := subMap(payload, "project")
	attrs := subMap(payload, "object_attributes")
	user := subMap(payload, "user")

	normalizedType := strings.ReplaceAll(
		strings.ReplaceAll(strings.ToLower(eventType), " hook", ""),
		"_", "",
	)

	action := "unknown"
	if a := stringField(attrs, "action"); a != "" {
		action = a
	} else if s := stringField(attrs, "state"); s != "" {
		action = s
	}

	var prNumber, issueNumber *int
	var prTitle, issueTitle *string
	switch normalizedType {
	case "mergerequest", "merge request":
		prNumber = intField(attrs, "iid")
		if prNumber != nil {
			prTitle = optString(attrs, "title")
		}
	case "issue", "note":
		issueNumber = intField(attrs, "iid")
		if issueNumber != nil {
			issueTitle = optString(attrs, "title")
		}
	}

	occurredAt := firstTimestamp(
		stringField(attrs, "updated_at"),
		stringField(attrs, "created_at"),
	)

	sender := stringField(user, "username")
	if sender == "" {
		sender = stringField(user, "name")
	}

	return model.CanonicalEvent{
		Platform:     model.PlatformGitLab,
		DeliveryID:   deliveryID,
		EventType:    normalizedType,
		Action:       action,
		RepoID:       int64Field(project, "id"),
		RepoOwner:    stringField(project, "namespace"),
		RepoName:     stringField(project, "name"),
		RepoFullName: stringField(project, "path_with_namespace"),
		PRNumber:     prNumber,
		PRTitle:      prTitle,
		IssueNumber:  issueNumber,
		IssueTitle:   issueTitle,
		SenderLogin:  sender,
		HeadSHA:      optString(subMap(attrs, "last_commit"), "id"),
		OccurredAt:   occurredAt,
		Raw:          payload,
	}
}

// firstTimestamp returns the first candidate that parses as RFC 3339 or
// RFC 3339 without an offset, falling back to the current time.
func firstTimestamp(candidates ...string) time.Time {
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func subMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return map[string]any{}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func optString(m map[string]any, key string) *string {
	if s, ok := m[key].(string); ok {
		return &s
	}
	return nil
}

// JSON numbers decode as float64; webhook fixtures in tests may also use
// native ints.
func intField(m map[string]any, key string) *int {
	switch v := m[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	case int64:
		n := int(v)
		return &n
	}
	return nil
}

func int64Field(m map[string]any, key string) *int64 {
	switch v := m[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case int:
		n := int64(v)
		return &n
	case int64:
		n := v
		return &n
	}
	return nil
}
