package codehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fossmate.app/fossmate/core/config"
	"fossmate.app/fossmate/internal/model"
)

// GitHubClient speaks the GitHub REST v3 API directly. The surface used
// here is small and stable enough that a generated SDK buys nothing.
type GitHubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGitHubClient(cfg config.GitHubConfig) *GitHubClient {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitHubClient) ListPullRequestFiles(ctx context.Context, repoFullName string, prNumber int) ([]model.ChangedFile, error) {
	var raw []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		Patch     string `json:"patch"`
	}
	path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", repoFullName, prNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	files := make([]model.ChangedFile, 0, len(raw))
	for _, f := range raw {
		files = append(files, model.ChangedFile{
			Path:      f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		})
	}
	return files, nil
}

func (c *GitHubClient) GetDefaultBranch(ctx context.Context, repoFullName string) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, http.MethodGet, "/repos/"+repoFullName, nil, &repo); err != nil {
		return "", err
	}
	return repo.DefaultBranch, nil
}

func (c *GitHubClient) GetTree(ctx context.Context, repoFullName, ref string) ([]string, error) {
	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	path := fmt.Sprintf("/repos/%s/git/trees/%s?recursive=1", repoFullName, url.PathEscape(ref))
	if err := c.do(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

func (c *GitHubClient) GetFileContent(ctx context.Context, repoFullName, ref, path string) (string, error) {
	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	reqPath := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repoFullName, path, url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, reqPath, nil, &file); err != nil {
		return "", err
	}

	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decoding file content: %w", err)
		}
		return string(decoded), nil
	}
	return file.Content, nil
}

func (c *GitHubClient) UpsertIssueComment(ctx context.Context, repoFullName string, issueNumber int, body, marker string) error {
	fullBody := body + "\n\n" + marker

	existingID, err := c.findMarkedComment(ctx, repoFullName, issueNumber, marker)
	if err != nil {
		return err
	}

	if existingID != 0 {
		path := fmt.Sprintf("/repos/%s/issues/comments/%d", repoFullName, existingID)
		return c.do(ctx, http.MethodPatch, path, map[string]any{"body": fullBody}, nil)
	}

	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repoFullName, issueNumber)
	return c.do(ctx, http.MethodPost, path, map[string]any{"body": fullBody}, nil)
}

// PR conversation comments are issue comments in the GitHub API.
func (c *GitHubClient) UpsertPullRequestComment(ctx context.Context, repoFullName string, prNumber int, body, marker string) error {
	return c.UpsertIssueComment(ctx, repoFullName, prNumber, body, marker)
}

func (c *GitHubClient) CreateOrUpdateCheckRun(ctx context.Context, repoFullName, headSHA, name, summary, externalID string) error {
	var existing struct {
		CheckRuns []struct {
			ID int64 `json:"id"`
		} `json:"check_runs"`
	}
	listPath := fmt.Sprintf("/repos/%s/commits/%s/check-runs?check_name=%s", repoFullName, headSHA, url.QueryEscape(name))
	if err := c.do(ctx, http.MethodGet, listPath, nil, &existing); err != nil {
		return err
	}

	payload := map[string]any{
		"name":        name,
		"head_sha":    headSHA,
		"status":      "completed",
		"conclusion":  "neutral",
		"external_id": externalID,
		"output": map[string]any{
			"title":   name,
			"summary": summary,
		},
	}

	if len(existing.CheckRuns) > 0 {
		path := fmt.Sprintf("/repos/%s/check-runs/%d", repoFullName, existing.CheckRuns[0].ID)
		return c.do(ctx, http.MethodPatch, path, payload, nil)
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/check-runs", repoFullName), payload, nil)
}

func (c *GitHubClient) AddIssueLabels(ctx context.Context, repoFullName string, issueNumber int, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	for _, label := range labels {
		if err := c.ensureLabel(ctx, repoFullName, label); err != nil {
			return nil, err
		}
	}

	path := fmt.Sprintf("/repos/%s/issues/%d/labels", repoFullName, issueNumber)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"labels": labels}, nil); err != nil {
		return nil, err
	}
	return labels, nil
}

func (c *GitHubClient) ensureLabel(ctx context.Context, repoFullName, name string) error {
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/labels/%s", repoFullName, url.PathEscape(name)), nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if !asAPIError(err, &apiErr) || apiErr.status != http.StatusNotFound {
		return err
	}

	return c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/labels", repoFullName), map[string]any{
		"name":  name,
		"color": LabelColor(name),
	}, nil)
}

func (c *GitHubClient) findMarkedComment(ctx context.Context, repoFullName string, issueNumber int, marker string) (int64, error) {
	var comments []struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	}
	path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=100", repoFullName, issueNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return 0, err
	}

	for _, comment := range comments {
		if strings.Contains(comment.Body, marker) {
			return comment.ID, nil
		}
	}
	return 0, nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github api status %d: %s", e.status, e.body)
}

func asAPIError(err error, target **apiError) bool {
	e, ok := err.(*apiError)
	if ok {
		*target = e
	}
	return ok
}

func (c *GitHubClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("github api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{status: resp.StatusCode, body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
