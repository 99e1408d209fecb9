package review_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fossmate.app/fossmate/internal/codehost"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/review"
)

func prEvent(title string) model.CanonicalEvent {
	n := 7
	return model.CanonicalEvent{
		Platform:     model.PlatformGitHub,
		DeliveryID:   "d1",
		EventType:    "pull_request",
		Action:       "opened",
		RepoFullName: "acme/widgets",
		PRNumber:     &n,
		PRTitle:      &title,
	}
}

var _ = Describe("Categorize", func() {
	DescribeTable("ordered keyword rules",
		func(title, want string) {
			Expect(review.Categorize(title, nil)).To(Equal(want))
		},
		Entry("fix keyword", "Fix null pointer on login", "fix"),
		Entry("fix beats feature", "Fix bug and add feature", "fix"),
		Entry("refactor", "Refactor session handling", "refactor"),
		Entry("test", "Add spec coverage for parser", "test"),
		Entry("docs", "Update README examples", "docs"),
		Entry("chore", "Bump deps", "chore"),
		Entry("feature verb", "Implement dark mode", "feature"),
		Entry("no match", "Weekly sync changes", "mixed"),
	)

	It("classifies docs from changed paths when the title is silent", func() {
		files := []model.ChangedFile{{Path: "docs/guide.md"}}
		Expect(review.Categorize("Misc updates", files)).To(Equal("docs"))
	})
})

var _ = Describe("ComputeScores", func() {
	It("matches the small fix-with-tests scenario", func() {
		files := []model.ChangedFile{
			{Path: "auth/login.go", Additions: 10, Deletions: 2},
			{Path: "auth/login_test.go", Additions: 20, Deletions: 0},
		}

		scores := review.ComputeScores(files, nil)

		Expect(scores.Correctness).To(Equal(8.5))
		Expect(scores.Readability).To(Equal(8.0))
		Expect(scores.Maintainability).To(Equal(7.8))
		Expect(scores.Overall).To(Equal(8.1))
	})

	It("drops the base correctness without touched tests", func() {
		files := []model.ChangedFile{{Path: "main.go", Additions: 5}}
		scores := review.ComputeScores(files, nil)
		Expect(scores.Correctness).To(Equal(7.2))
	})

	It("penalizes large diffs", func() {
		files := []model.ChangedFile{{Path: "big.go", Additions: 500}}
		scores := review.ComputeScores(files, nil)
		Expect(scores.Readability).To(Equal(7.2))
		Expect(scores.Maintainability).To(Equal(7.0))
	})

	It("caps the high-severity penalty", func() {
		files := []model.ChangedFile{{Path: "x_test.go", Additions: 1}}
		var suggestions []model.ReviewSuggestion
		for i := 0; i < 10; i++ {
			suggestions = append(suggestions, model.ReviewSuggestion{Severity: model.FindingSeverityHigh})
		}

		scores := review.ComputeScores(files, suggestions)

		Expect(scores.Correctness).To(Equal(7.0))
		Expect(scores.Maintainability).To(Equal(6.8))
	})
})

var _ = Describe("BuildPullRequestReview", func() {
	var (
		ctx      context.Context
		host     *mockHost
		provider *mockProvider
	)

	BeforeEach(func() {
		ctx = context.Background()
		host = &mockHost{}
		provider = &mockProvider{}
	})

	newOrchestrator := func() *review.Orchestrator {
		return review.NewOrchestrator(provider, map[model.Platform]codehost.Client{
			model.PlatformGitHub: host,
		})
	}

	It("rejects events without repository or PR number", func() {
		orch := newOrchestrator()
		_, err := orch.BuildPullRequestReview(ctx, model.CanonicalEvent{Platform: model.PlatformGitHub})
		Expect(err).To(MatchError(review.ErrMissingPullRequest))
	})

	It("caps suggestions at 5 when the provider returns 7 well-formed entries", func() {
		entries := make([]string, 7)
		for i := range entries {
			entries[i] = `{"title":"T","details":"D","severity":"low"}`
		}
		jsonList := "[" + strings.Join(entries, ",") + "]"

		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			if strings.Contains(prompt, "Respond as JSON list") {
				return jsonList, nil
			}
			return "generated text, low risk", nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Fix parser"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(5))
	})

	It("substitutes exactly the two fixed suggestions on non-JSON output", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "I cannot produce JSON right now, sorry.", nil
		}

		host.listFilesFn = func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
			return []model.ChangedFile{{Path: "auth/login.go", Additions: 3}}, nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Fix parser"))
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Suggestions).To(HaveLen(2))
		Expect(result.Suggestions[0].Title).To(Equal("Validate edge cases"))
		Expect(*result.Suggestions[0].FilePath).To(Equal("auth/login.go"))
		Expect(result.Suggestions[1].Title).To(Equal("Add or update tests"))
	})

	It("parses fenced JSON output", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			if strings.Contains(prompt, "Respond as JSON list") {
				return "```json\n[{\"title\":\"Tighten validation\",\"details\":\"Check inputs\",\"severity\":\"high\",\"file_path\":\"api.go\"}]\n```", nil
			}
			return "fine, low risk", nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Fix parser"))
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Suggestions).To(HaveLen(1))
		Expect(result.Suggestions[0].Title).To(Equal("Tighten validation"))
		Expect(result.Suggestions[0].Severity).To(Equal(model.FindingSeverityHigh))
		Expect(*result.Suggestions[0].FilePath).To(Equal("api.go"))
	})

	It("never aborts the review when all generation fails", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "", errors.New("provider down")
		}
		host.listFilesFn = func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
			return []model.ChangedFile{
				{Path: "auth/login.go", Additions: 10, Deletions: 2},
				{Path: "auth/login_test.go", Additions: 20},
			}, nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Fix null pointer on login"))
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Category).To(Equal("fix"))
		Expect(*result.Summary).To(ContainSubstring("Category: fix"))
		Expect(result.FileSummaries).To(HaveLen(2))
		for _, fs := range result.FileSummaries {
			Expect(fs.Risk).To(Equal(model.RiskLow))
		}
		Expect(result.Scores.Correctness).To(Equal(8.5))
		Expect(result.Scores.Overall).To(Equal(8.1))
	})

	It("derives risk tiers from line deltas when file generation fails", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "", errors.New("provider down")
		}
		host.listFilesFn = func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
			return []model.ChangedFile{
				{Path: "small.go", Additions: 10},
				{Path: "medium.go", Additions: 60, Deletions: 30},
				{Path: "large.go", Additions: 200, Deletions: 100},
			}, nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Refactor internals"))
		Expect(err).NotTo(HaveOccurred())

		Expect(result.FileSummaries[0].Risk).To(Equal(model.RiskLow))
		Expect(result.FileSummaries[1].Risk).To(Equal(model.RiskMedium))
		Expect(result.FileSummaries[2].Risk).To(Equal(model.RiskHigh))
	})

	It("summarizes at most 25 files", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "ok, low risk", nil
		}
		host.listFilesFn = func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
			files := make([]model.ChangedFile, 30)
			for i := range files {
				files[i] = model.ChangedFile{Path: "file.go", Additions: 1}
			}
			return files, nil
		}

		orch := newOrchestrator()
		result, err := orch.BuildPullRequestReview(ctx, prEvent("Fix everything"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FileSummaries).To(HaveLen(25))
		Expect(result.FilesChanged).To(Equal(30))
	})
})

var _ = Describe("comment heuristics", func() {
	It("detects onboarding requests", func() {
		Expect(review.IsOnboardingRequest("Hi! How do I contribute to this project?")).To(BeTrue())
		Expect(review.IsOnboardingRequest("Can I work on this issue?")).To(BeTrue())
		Expect(review.IsOnboardingRequest("The build fails on macOS")).To(BeFalse())
	})

	It("detects assistant mentions case-insensitively", func() {
		Expect(review.IsAssistantMention("hey @FossMate what do you think", "fossmate")).To(BeTrue())
		Expect(review.IsAssistantMention("no mention here", "fossmate")).To(BeFalse())
		Expect(review.IsAssistantMention("@fossmate", "")).To(BeFalse())
	})
})

var _ = Describe("fail-soft helpers", func() {
	var (
		ctx      context.Context
		provider *mockProvider
		orch     *review.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &mockProvider{}
		orch = review.NewOrchestrator(provider, nil)
	})

	It("falls back to a heuristic issue summary", func() {
		title := "Crash on startup"
		event := model.CanonicalEvent{IssueTitle: &title}

		summary := orch.SummarizeIssue(ctx, event)
		Expect(summary).To(ContainSubstring("Crash on startup"))
		Expect(summary).To(ContainSubstring("Suggest labels"))
	})

	It("falls back to heuristic labels", func() {
		title := "Bug: crash when opening settings"
		event := model.CanonicalEvent{IssueTitle: &title}

		Expect(orch.SuggestIssueLabels(ctx, event)).To(Equal([]string{"bug"}))
	})

	It("caps generated labels at 3", func() {
		provider.generateFn = func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return `["bug", "crash", "ui", "urgent", "triage"]`, nil
		}
		title := "Crash"
		event := model.CanonicalEvent{IssueTitle: &title}

		Expect(orch.SuggestIssueLabels(ctx, event)).To(Equal([]string{"bug", "crash", "ui"}))
	})

	It("renders a deterministic onboarding reply", func() {
		event := model.CanonicalEvent{RepoFullName: "acme/widgets"}
		reply := orch.OnboardingReply(event)
		Expect(reply).To(ContainSubstring("acme/widgets"))
		Expect(reply).To(ContainSubstring("CONTRIBUTING"))
	})

	It("falls back to a fixed acknowledgement when reply generation fails", func() {
		event := model.CanonicalEvent{RepoFullName: "acme/widgets"}
		reply := orch.AnswerIssueComment(ctx, event, "what is the release cadence?", "fossmate")
		Expect(reply).To(ContainSubstring("A maintainer will take a look"))
	})
})

var _ = Describe("AnswerIssueComment repo context", func() {
	It("grounds the reply prompt in contributor docs when available", func() {
		host := &mockHost{
			treeFn: func(ctx context.Context, repo, ref string) ([]string, error) {
				return []string{"main.go", "CONTRIBUTING.md", "README.md"}, nil
			},
			fileContentFn: func(ctx context.Context, repo, ref, path string) (string, error) {
				Expect(path).To(Equal("CONTRIBUTING.md"))
				Expect(ref).To(Equal("main"))
				return "Run make test before sending patches.", nil
			},
		}

		var seenPrompt string
		provider := &mockProvider{
			generateFn: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				seenPrompt = prompt
				return "Please run make test first.", nil
			},
		}

		orch := review.NewOrchestrator(provider, map[model.Platform]codehost.Client{
			model.PlatformGitHub: host,
		})
		event := model.CanonicalEvent{Platform: model.PlatformGitHub, RepoFullName: "acme/widgets"}

		reply := orch.AnswerIssueComment(context.Background(), event, "@fossmate how do I test?", "fossmate")
		Expect(reply).To(Equal("Please run make test first."))
		Expect(seenPrompt).To(ContainSubstring("Project documentation (CONTRIBUTING.md)"))
		Expect(seenPrompt).To(ContainSubstring("Run make test before sending patches."))
	})

	It("replies without context when the tree has no project docs", func() {
		host := &mockHost{}
		var seenPrompt string
		provider := &mockProvider{
			generateFn: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				seenPrompt = prompt
				return "ok", nil
			},
		}

		orch := review.NewOrchestrator(provider, map[model.Platform]codehost.Client{
			model.PlatformGitHub: host,
		})
		event := model.CanonicalEvent{Platform: model.PlatformGitHub, RepoFullName: "acme/widgets"}

		Expect(orch.AnswerIssueComment(context.Background(), event, "hello", "fossmate")).To(Equal("ok"))
		Expect(seenPrompt).NotTo(ContainSubstring("Project documentation"))
	})
})

var _ = Describe("FormatPullRequestComment", func() {
	It("includes category, score, summary, files and suggestions", func() {
		summary := "- Looks fine"
		path := "api.go"
		result := &model.ReviewResult{
			Category: "fix",
			Summary:  &summary,
			FileSummaries: []model.FileChangeSummary{
				{Path: "api.go", Summary: "changed handler", Risk: model.RiskLow},
			},
			Suggestions: []model.ReviewSuggestion{
				{Title: "Tighten validation", Details: "Check inputs", Severity: model.FindingSeverityHigh, FilePath: &path},
			},
			Scores: &model.Scores{Overall: 8.1},
		}

		comment := review.FormatPullRequestComment(result)
		Expect(comment).To(ContainSubstring("### FOSSMate Automated Review"))
		Expect(comment).To(ContainSubstring("`fix`"))
		Expect(comment).To(ContainSubstring("8.1/10"))
		Expect(comment).To(ContainSubstring("- `api.go`"))
		Expect(comment).To(ContainSubstring("**Tighten validation** (api.go)"))
	})
})
