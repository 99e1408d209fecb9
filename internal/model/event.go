package model

import "time"

type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// CanonicalEvent is the platform-neutral shape every inbound webhook is
// normalized into. DeliveryID is unique only within a platform; global
// uniqueness requires Platform+DeliveryID.
type CanonicalEvent struct {
	Platform       Platform       `json:"platform"`
	DeliveryID     string         `json:"delivery_id"`
	EventType      string         `json:"event_type"`
	Action         string         `json:"action,omitempty"`
	InstallationID *int64         `json:"installation_id,omitempty"`
	RepoOwner      string         `json:"repo_owner,omitempty"`
	RepoName       string         `json:"repo_name,omitempty"`
	RepoFullName   string         `json:"repo_full_name,omitempty"`
	RepoID         *int64         `json:"repo_id,omitempty"`
	PRNumber       *int           `json:"pr_number,omitempty"`
	PRTitle        *string        `json:"pr_title,omitempty"`
	IssueNumber    *int           `json:"issue_number,omitempty"`
	IssueTitle     *string        `json:"issue_title,omitempty"`
	SenderLogin    string         `json:"sender_login,omitempty"`
	HeadSHA        *string        `json:"head_sha,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Raw            map[string]any `json:"raw,omitempty"`
}
