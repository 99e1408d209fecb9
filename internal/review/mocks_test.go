package review_test

import (
	"context"
	"errors"

	"fossmate.app/fossmate/internal/llm"
	"fossmate.app/fossmate/internal/model"
)

// Mock Provider with per-call behavior
type mockProvider struct {
	generateFn func(ctx context.Context, prompt, systemPrompt string) (string, error)
}

func (m *mockProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, systemPrompt)
	}
	return "", errors.New("generation unavailable")
}

func (m *mockProvider) StreamGenerate(ctx context.Context, prompt, systemPrompt string) (llm.TokenStream, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: false, StructuredOutput: false, Embeddings: false}
}

func (m *mockProvider) ProviderName() string { return "mock" }
func (m *mockProvider) ModelName() string    { return "mock-model" }

// Mock codehost.Client
type mockHost struct {
	listFilesFn   func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error)
	treeFn        func(ctx context.Context, repo, ref string) ([]string, error)
	fileContentFn func(ctx context.Context, repo, ref, path string) (string, error)

	upsertedComments []string
	appliedLabels    []string
}

func (m *mockHost) ListPullRequestFiles(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
	if m.listFilesFn != nil {
		return m.listFilesFn(ctx, repo, pr)
	}
	return nil, nil
}

func (m *mockHost) GetDefaultBranch(ctx context.Context, repo string) (string, error) {
	return "main", nil
}

func (m *mockHost) GetTree(ctx context.Context, repo, ref string) ([]string, error) {
	if m.treeFn != nil {
		return m.treeFn(ctx, repo, ref)
	}
	return nil, nil
}

func (m *mockHost) GetFileContent(ctx context.Context, repo, ref, path string) (string, error) {
	if m.fileContentFn != nil {
		return m.fileContentFn(ctx, repo, ref, path)
	}
	return "", nil
}

func (m *mockHost) UpsertIssueComment(ctx context.Context, repo string, issueNumber int, body, marker string) error {
	m.upsertedComments = append(m.upsertedComments, marker)
	return nil
}

func (m *mockHost) UpsertPullRequestComment(ctx context.Context, repo string, prNumber int, body, marker string) error {
	m.upsertedComments = append(m.upsertedComments, marker)
	return nil
}

func (m *mockHost) CreateOrUpdateCheckRun(ctx context.Context, repo, headSHA, name, summary, externalID string) error {
	return nil
}

func (m *mockHost) AddIssueLabels(ctx context.Context, repo string, issueNumber int, labels []string) ([]string, error) {
	m.appliedLabels = append(m.appliedLabels, labels...)
	return labels, nil
}
