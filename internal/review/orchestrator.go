// Package review produces the generation-backed review artifacts. Every
// generation call site degrades to a deterministic heuristic on failure;
// only missing input identity is a hard error.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"fossmate.app/fossmate/internal/codehost"
	"fossmate.app/fossmate/internal/llm"
	"fossmate.app/fossmate/internal/model"
)

const maxFileSummaries = 25

// ErrMissingPullRequest is returned when an event lacks the repository
// or PR number a review needs.
var ErrMissingPullRequest = fmt.Errorf("pull request review requires repository and PR number")

type Orchestrator struct {
	provider llm.Provider
	hosts    map[model.Platform]codehost.Client
}

func NewOrchestrator(provider llm.Provider, hosts map[model.Platform]codehost.Client) *Orchestrator {
	return &Orchestrator{provider: provider, hosts: hosts}
}

func (o *Orchestrator) Provider() llm.Provider {
	return o.provider
}

// BuildPullRequestReview assembles the full artifact set for one pull
// request: category, narrative summary, per-file summaries with risk
// tiers, up to five suggestions and the advisory scorecard.
func (o *Orchestrator) BuildPullRequestReview(ctx context.Context, event model.CanonicalEvent) (*model.ReviewResult, error) {
	if event.RepoFullName == "" || event.PRNumber == nil {
		return nil, ErrMissingPullRequest
	}

	files := o.loadFiles(ctx, event)
	title := ""
	if event.PRTitle != nil {
		title = *event.PRTitle
	}

	category := Categorize(title, files)
	summary := o.generateSummary(ctx, title, category, files)
	fileSummaries := o.summarizeFiles(ctx, files)
	suggestions := o.generateSuggestions(ctx, title, files)
	scores := ComputeScores(files, suggestions)

	linesChanged := 0
	for _, f := range files {
		linesChanged += f.Additions + f.Deletions
	}

	return &model.ReviewResult{
		Category:      category,
		Summary:       &summary,
		FileSummaries: fileSummaries,
		Suggestions:   suggestions,
		Scores:        &scores,
		FilesChanged:  len(files),
		LinesChanged:  linesChanged,
		Provider:      o.provider.ProviderName(),
		Model:         o.provider.ModelName(),
	}, nil
}

// SummarizeIssue produces a short maintainer-facing summary for a newly
// opened issue.
func (o *Orchestrator) SummarizeIssue(ctx context.Context, event model.CanonicalEvent) string {
	title := "Untitled issue"
	if event.IssueTitle != nil && *event.IssueTitle != "" {
		title = *event.IssueTitle
	}
	body := rawString(event.Raw, "issue", "body")

	prompt := fmt.Sprintf(
		"Summarize this issue in 3 concise bullets for maintainers.\nTitle: %s\nBody:\n%s",
		title, body,
	)

	text, err := o.provider.Generate(ctx, prompt, "")
	if err != nil {
		slog.WarnContext(ctx, "issue summarization failed, using heuristic summary", "error", err)
		return fmt.Sprintf("- %s\n- Review details and assign ownership\n- Suggest labels", title)
	}
	return strings.TrimSpace(text)
}

// OnboardingReply is fully deterministic contributor guidance.
func (o *Orchestrator) OnboardingReply(event model.CanonicalEvent) string {
	repo := event.RepoFullName
	if repo == "" {
		repo = "this repository"
	}
	return fmt.Sprintf(
		"Thanks for offering to contribute to **%s**. "+
			"Please read `README` and `CONTRIBUTING` first, share your proposed approach, "+
			"and wait for maintainer confirmation before starting implementation.",
		repo,
	)
}

var onboardingPhrases = []string{
	"how do i contribute",
	"how can i contribute",
	"can i work on",
	"can i take this",
	"assign me",
	"first time contributor",
	"first-time contributor",
	"where do i start",
	"getting started",
	"i'd like to contribute",
	"i would like to contribute",
}

// IsOnboardingRequest detects contributor onboarding questions by phrase
// matching.
func IsOnboardingRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range onboardingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsAssistantMention reports whether the comment explicitly addresses
// the assistant handle.
func IsAssistantMention(text, handle string) bool {
	if handle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(handle))
}

// AnswerIssueComment generates an assistant reply to a comment, falling
// back to a fixed acknowledgement.
func (o *Orchestrator) AnswerIssueComment(ctx context.Context, event model.CanonicalEvent, commentText, handle string) string {
	title := ""
	if event.IssueTitle != nil {
		title = *event.IssueTitle
	} else if event.PRTitle != nil {
		title = *event.PRTitle
	}

	prompt := fmt.Sprintf(
		"You are %s, a maintainer assistant for %s. Answer this comment helpfully and briefly.\n"+
			"Thread title: %s\nComment:\n%s",
		handle, event.RepoFullName, title, commentText,
	)
	if docContext := o.repoContext(ctx, event); docContext != "" {
		prompt += "\n\n" + docContext
	}

	text, err := o.provider.Generate(ctx, prompt, "")
	if err != nil {
		slog.WarnContext(ctx, "comment reply generation failed, using heuristic reply", "error", err)
		return "Thanks for the comment. A maintainer will take a look; in the meantime please " +
			"include reproduction steps or context that could help."
	}
	return strings.TrimSpace(text)
}

const maxDocContextBytes = 4000

// repoContext pulls a short project-doc excerpt from the repository's
// default branch to ground assistant replies. Any lookup failure yields
// an empty string and the reply proceeds without it.
func (o *Orchestrator) repoContext(ctx context.Context, event model.CanonicalEvent) string {
	host, ok := o.hosts[event.Platform]
	if !ok || event.RepoFullName == "" {
		return ""
	}

	branch, err := host.GetDefaultBranch(ctx, event.RepoFullName)
	if err != nil {
		slog.WarnContext(ctx, "default branch lookup failed, replying without repo context", "error", err)
		return ""
	}
	paths, err := host.GetTree(ctx, event.RepoFullName, branch)
	if err != nil {
		slog.WarnContext(ctx, "tree listing failed, replying without repo context", "error", err)
		return ""
	}

	doc := pickDocFile(paths)
	if doc == "" {
		return ""
	}
	content, err := host.GetFileContent(ctx, event.RepoFullName, branch, doc)
	if err != nil {
		slog.WarnContext(ctx, "doc fetch failed, replying without repo context",
			"path", doc, "error", err)
		return ""
	}
	if len(content) > maxDocContextBytes {
		content = content[:maxDocContextBytes]
	}
	return fmt.Sprintf("Project documentation (%s):\n%s", doc, content)
}

// pickDocFile prefers contributor guidance over the README.
func pickDocFile(paths []string) string {
	for _, want := range []string{"contributing.md", "docs/contributing.md", "readme.md"} {
		for _, p := range paths {
			if strings.EqualFold(p, want) {
				return p
			}
		}
	}
	return ""
}

// SuggestIssueLabels asks for up to 3 labels as JSON and degrades to a
// keyword heuristic over the issue title.
func (o *Orchestrator) SuggestIssueLabels(ctx context.Context, event model.CanonicalEvent) []string {
	title := ""
	if event.IssueTitle != nil {
		title = *event.IssueTitle
	}
	body := rawString(event.Raw, "issue", "body")

	prompt := fmt.Sprintf(
		"Suggest up to 3 repository labels for this issue. "+
			"Respond as a JSON list of lowercase label strings.\nTitle: %s\nBody:\n%s",
		title, body,
	)

	if text, err := o.provider.Generate(ctx, prompt, ""); err == nil {
		var labels []string
		if jsonErr := json.Unmarshal([]byte(extractJSONArray(text)), &labels); jsonErr == nil {
			cleaned := make([]string, 0, 3)
			for _, label := range labels {
				label = strings.ToLower(strings.TrimSpace(label))
				if label == "" {
					continue
				}
				cleaned = append(cleaned, label)
				if len(cleaned) == 3 {
					break
				}
			}
			if len(cleaned) > 0 {
				return cleaned
			}
		}
	} else {
		slog.WarnContext(ctx, "label suggestion failed, using heuristic labels", "error", err)
	}

	return heuristicLabels(title)
}

func heuristicLabels(title string) []string {
	lower := strings.ToLower(title)
	switch {
	case containsAny(lower, "bug", "crash", "error", "broken"):
		return []string{"bug"}
	case containsAny(lower, "doc", "readme"):
		return []string{"documentation"}
	case containsAny(lower, "feature", "request", "add", "support"):
		return []string{"enhancement"}
	case strings.Contains(lower, "?"):
		return []string{"question"}
	default:
		return []string{"triage"}
	}
}

func (o *Orchestrator) loadFiles(ctx context.Context, event model.CanonicalEvent) []model.ChangedFile {
	host, ok := o.hosts[event.Platform]
	if !ok || event.PRNumber == nil {
		return nil
	}

	files, err := host.ListPullRequestFiles(ctx, event.RepoFullName, *event.PRNumber)
	if err != nil {
		slog.WarnContext(ctx, "unable to fetch changed files, reviewing without them",
			"repo", event.RepoFullName, "pr", *event.PRNumber, "error", err)
		return nil
	}
	return files
}

func (o *Orchestrator) generateSummary(ctx context.Context, title, category string, files []model.ChangedFile) string {
	names := fileNames(files, 20)
	encodedNames, _ := json.Marshal(names)

	prompt := fmt.Sprintf(
		"Generate a concise pull request summary for maintainers. Include:\n"+
			"1) what changed\n2) risk/impact\n3) suggested review focus\n"+
			"Keep to <= 6 bullets.\n\nPR title: %s\nCategory: %s\nChanged files: %s\n",
		title, category, string(encodedNames),
	)

	text, err := o.provider.Generate(ctx, prompt, "")
	if err != nil {
		slog.WarnContext(ctx, "summary generation failed, using templated summary", "error", err)
		return templatedSummary(title, category, names)
	}
	return strings.TrimSpace(text)
}

func templatedSummary(title, category string, names []string) string {
	if title == "" {
		title = "Untitled PR"
	}
	majorFiles := "(file list unavailable)"
	if len(names) > 0 {
		if len(names) > 5 {
			names = names[:5]
		}
		majorFiles = strings.Join(names, ", ")
	}
	return fmt.Sprintf(
		"- Category: %s\n- Title: %s\n- Major files: %s\n"+
			"- Review focus: core logic changes, tests, and edge-case handling",
		category, title, majorFiles,
	)
}

func (o *Orchestrator) summarizeFiles(ctx context.Context, files []model.ChangedFile) []model.FileChangeSummary {
	if len(files) > maxFileSummaries {
		files = files[:maxFileSummaries]
	}

	summaries := make([]model.FileChangeSummary, 0, len(files))
	for _, f := range files {
		patch := f.Patch
		if len(patch) > 3000 {
			patch = patch[:3000]
		}

		prompt := fmt.Sprintf(
			"Summarize this code diff in one sentence plus risk level (low/medium/high).\nFile: %s\nPatch:\n%s",
			f.Path, patch,
		)

		text, err := o.provider.Generate(ctx, prompt, "")
		risk := model.RiskLow
		if err != nil {
			text = fmt.Sprintf("%s: %s (+%d/-%d). Review logic and test impact.",
				f.Path, f.Status, f.Additions, f.Deletions)
			risk = riskFromSize(f.Additions + f.Deletions)
		} else {
			risk = riskFromText(text)
		}

		summaries = append(summaries, model.FileChangeSummary{
			Path:    f.Path,
			Summary: strings.TrimSpace(text),
			Risk:    risk,
		})
	}
	return summaries
}

func riskFromText(text string) model.RiskTier {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "high"):
		return model.RiskHigh
	case strings.Contains(lower, "medium"):
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func riskFromSize(lines int) model.RiskTier {
	switch {
	case lines > 250:
		return model.RiskHigh
	case lines > 80:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func (o *Orchestrator) generateSuggestions(ctx context.Context, title string, files []model.ChangedFile) []model.ReviewSuggestion {
	names := fileNames(files, maxFileSummaries)

	prompt := fmt.Sprintf(
		"Provide up to 5 non-blocking code review suggestions for this PR. "+
			"Respond as JSON list with fields: title, details, severity(low|medium|high), file_path(optional).\n"+
			"PR title: %s\nFiles: %s",
		title, strings.Join(names, ", "),
	)

	text, err := o.generateSuggestionText(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "suggestion generation failed, using heuristic fallback", "error", err)
		return fallbackSuggestions(files)
	}

	if suggestions := parseSuggestions(text); len(suggestions) > 0 {
		return suggestions
	}
	return fallbackSuggestions(files)
}

// generateSuggestionText prefers schema-constrained output when the
// provider backend enforces it, keeping prompt-and-parse as fallback.
func (o *Orchestrator) generateSuggestionText(ctx context.Context, prompt string) (string, error) {
	if sg, ok := o.provider.(llm.StructuredGenerator); ok && o.provider.Capabilities().StructuredOutput {
		text, err := sg.GenerateStructured(ctx, prompt, "", "review_suggestions", llm.SchemaFor[structuredSuggestions]())
		if err == nil {
			return text, nil
		}
		slog.WarnContext(ctx, "structured suggestion generation failed, using plain prompt", "error", err)
	}
	return o.provider.Generate(ctx, prompt, "")
}

func fileNames(files []model.ChangedFile, limit int) []string {
	if len(files) > limit {
		files = files[:limit]
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Path)
	}
	return names
}

func rawString(raw map[string]any, keys ...string) string {
	current := raw
	for i, key := range keys {
		if current == nil {
			return ""
		}
		if i == len(keys)-1 {
			if s, ok := current[key].(string); ok {
				return s
			}
			return ""
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			return ""
		}
		current = next
	}
	return ""
}
