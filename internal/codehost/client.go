// Package codehost wraps the platform REST APIs behind one client
// contract so the review pipeline stays platform-agnostic. All write
// operations are idempotent: comments are upserted by marker, check runs
// by name, labels created only when missing.
package codehost

import (
	"context"
	"hash/fnv"

	"fossmate.app/fossmate/internal/model"
)

type Client interface {
	ListPullRequestFiles(ctx context.Context, repoFullName string, prNumber int) ([]model.ChangedFile, error)
	GetDefaultBranch(ctx context.Context, repoFullName string) (string, error)
	GetTree(ctx context.Context, repoFullName, ref string) ([]string, error)
	GetFileContent(ctx context.Context, repoFullName, ref, path string) (string, error)

	// UpsertIssueComment finds an existing comment containing marker and
	// edits it, or posts a new one. The marker is appended to the body so
	// later upserts and the reply-loop guard can find it.
	UpsertIssueComment(ctx context.Context, repoFullName string, issueNumber int, body, marker string) error
	UpsertPullRequestComment(ctx context.Context, repoFullName string, prNumber int, body, marker string) error
	CreateOrUpdateCheckRun(ctx context.Context, repoFullName, headSHA, name, summary, externalID string) error
	// AddIssueLabels applies labels, creating missing ones with a
	// deterministic color. Returns the labels actually applied.
	AddIssueLabels(ctx context.Context, repoFullName string, issueNumber int, labels []string) ([]string, error)
}

var labelPalette = []string{
	"0e8a16", "1d76db", "5319e7", "b60205", "d93f0b",
	"fbca04", "006b75", "c2e0c6", "f9d0c4", "bfdadc",
}

// LabelColor picks a stable palette color for a label name, so the same
// label gets the same color on every repository.
func LabelColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return labelPalette[h.Sum32()%uint32(len(labelPalette))]
}
