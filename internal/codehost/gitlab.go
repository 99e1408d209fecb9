package codehost

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"fossmate.app/fossmate/core/config"
	"fossmate.app/fossmate/internal/model"
)

// GitLabClient adapts the official GitLab client to the Client contract.
// Repository full names map to project paths, PR numbers to merge
// request IIDs and check runs to commit statuses.
type GitLabClient struct {
	client *gitlab.Client
}

func NewGitLabClient(cfg config.GitLabConfig) (*GitLabClient, error) {
	var client *gitlab.Client
	var err error
	if cfg.BaseURL != "" {
		client, err = gitlab.NewClient(cfg.Token, gitlab.WithBaseURL(cfg.BaseURL))
	} else {
		client, err = gitlab.NewClient(cfg.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabClient{client: client}, nil
}

func (c *GitLabClient) ListPullRequestFiles(ctx context.Context, repoFullName string, prNumber int) ([]model.ChangedFile, error) {
	diffs, _, err := c.client.MergeRequests.ListMergeRequestDiffs(
		repoFullName, int64(prNumber), &gitlab.ListMergeRequestDiffsOptions{}, gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("listing merge request diffs: %w", err)
	}

	files := make([]model.ChangedFile, 0, len(diffs))
	for _, diff := range diffs {
		status := "modified"
		switch {
		case diff.NewFile:
			status = "added"
		case diff.DeletedFile:
			status = "removed"
		case diff.RenamedFile:
			status = "renamed"
		}

		additions, deletions := countDiffLines(diff.Diff)
		files = append(files, model.ChangedFile{
			Path:      diff.NewPath,
			Status:    status,
			Additions: additions,
			Deletions: deletions,
			Patch:     diff.Diff,
		})
	}
	return files, nil
}

func (c *GitLabClient) GetDefaultBranch(ctx context.Context, repoFullName string) (string, error) {
	project, _, err := c.client.Projects.GetProject(repoFullName, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching project: %w", err)
	}
	return project.DefaultBranch, nil
}

func (c *GitLabClient) GetTree(ctx context.Context, repoFullName, ref string) ([]string, error) {
	opts := &gitlab.ListTreeOptions{
		Ref:       gitlab.Ptr(ref),
		Recursive: gitlab.Ptr(true),
		ListOptions: gitlab.ListOptions{
			PerPage: 100,
		},
	}

	var paths []string
	for {
		nodes, resp, err := c.client.Repositories.ListTree(repoFullName, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing repository tree: %w", err)
		}
		for _, node := range nodes {
			if node.Type == "blob" {
				paths = append(paths, node.Path)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return paths, nil
}

func (c *GitLabClient) GetFileContent(ctx context.Context, repoFullName, ref, path string) (string, error) {
	raw, _, err := c.client.RepositoryFiles.GetRawFile(
		repoFullName, path, &gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("fetching file content: %w", err)
	}
	return string(raw), nil
}

func (c *GitLabClient) UpsertIssueComment(ctx context.Context, repoFullName string, issueNumber int, body, marker string) error {
	fullBody := body + "\n\n" + marker

	notes, _, err := c.client.Notes.ListIssueNotes(
		repoFullName, int64(issueNumber), &gitlab.ListIssueNotesOptions{}, gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("listing issue notes: %w", err)
	}

	for _, note := range notes {
		if strings.Contains(note.Body, marker) {
			_, _, err := c.client.Notes.UpdateIssueNote(
				repoFullName, int64(issueNumber), note.ID,
				&gitlab.UpdateIssueNoteOptions{Body: gitlab.Ptr(fullBody)},
				gitlab.WithContext(ctx),
			)
			if err != nil {
				return fmt.Errorf("updating issue note: %w", err)
			}
			return nil
		}
	}

	_, _, err = c.client.Notes.CreateIssueNote(
		repoFullName, int64(issueNumber),
		&gitlab.CreateIssueNoteOptions{Body: gitlab.Ptr(fullBody)},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("creating issue note: %w", err)
	}
	return nil
}

func (c *GitLabClient) UpsertPullRequestComment(ctx context.Context, repoFullName string, prNumber int, body, marker string) error {
	fullBody := body + "\n\n" + marker

	notes, _, err := c.client.Notes.ListMergeRequestNotes(
		repoFullName, int64(prNumber), &gitlab.ListMergeRequestNotesOptions{}, gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("listing merge request notes: %w", err)
	}

	for _, note := range notes {
		if strings.Contains(note.Body, marker) {
			_, _, err := c.client.Notes.UpdateMergeRequestNote(
				repoFullName, int64(prNumber), note.ID,
				&gitlab.UpdateMergeRequestNoteOptions{Body: gitlab.Ptr(fullBody)},
				gitlab.WithContext(ctx),
			)
			if err != nil {
				return fmt.Errorf("updating merge request note: %w", err)
			}
			return nil
		}
	}

	_, _, err = c.client.Notes.CreateMergeRequestNote(
		repoFullName, int64(prNumber),
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(fullBody)},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("creating merge request note: %w", err)
	}
	return nil
}

// GitLab has no check runs; a commit status with the run name carries the
// same signal.
func (c *GitLabClient) CreateOrUpdateCheckRun(ctx context.Context, repoFullName, headSHA, name, summary, externalID string) error {
	description := summary
	if len(description) > 255 {
		description = description[:255]
	}

	_, _, err := c.client.Commits.SetCommitStatus(
		repoFullName, headSHA,
		&gitlab.SetCommitStatusOptions{
			State:       gitlab.Success,
			Name:        gitlab.Ptr(name),
			Description: gitlab.Ptr(description),
		},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("setting commit status: %w", err)
	}
	return nil
}

func (c *GitLabClient) AddIssueLabels(ctx context.Context, repoFullName string, issueNumber int, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	for _, label := range labels {
		// CreateLabel fails when the label exists; that is the common case
		// and safe to ignore.
		_, _, _ = c.client.Labels.CreateLabel(repoFullName, &gitlab.CreateLabelOptions{
			Name:  gitlab.Ptr(label),
			Color: gitlab.Ptr("#" + LabelColor(label)),
		}, gitlab.WithContext(ctx))
	}

	addLabels := gitlab.LabelOptions(labels)
	_, _, err := c.client.Issues.UpdateIssue(
		repoFullName, int64(issueNumber),
		&gitlab.UpdateIssueOptions{AddLabels: &addLabels},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("adding issue labels: %w", err)
	}
	return labels, nil
}

func countDiffLines(diff string) (additions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			additions++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			deletions++
		}
	}
	return additions, deletions
}
