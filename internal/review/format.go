package review

import (
	"fmt"
	"strings"

	"fossmate.app/fossmate/internal/model"
)

// FormatPullRequestComment renders the review artifacts as the markdown
// comment posted back to the pull request.
func FormatPullRequestComment(result *model.ReviewResult) string {
	var b strings.Builder
	b.WriteString("### FOSSMate Automated Review\n\n")
	b.WriteString(fmt.Sprintf("**Category**: `%s`\n", result.Category))
	if result.Scores != nil {
		b.WriteString(fmt.Sprintf("**Score (advisory)**: `%g/10`\n", result.Scores.Overall))
	}

	b.WriteString("\n#### Summary\n")
	if result.Summary != nil && *result.Summary != "" {
		b.WriteString(*result.Summary)
	} else {
		b.WriteString("No summary available.")
	}

	b.WriteString("\n\n#### Major Files\n")
	if len(result.FileSummaries) > 0 {
		for i, fs := range result.FileSummaries {
			if i == 5 {
				break
			}
			b.WriteString(fmt.Sprintf("- `%s`\n", fs.Path))
		}
	} else {
		b.WriteString("- No file details available.\n")
	}

	b.WriteString("\n#### Suggestions (Experimental)\n")
	if len(result.Suggestions) > 0 {
		for _, s := range result.Suggestions {
			target := ""
			if s.FilePath != nil {
				target = fmt.Sprintf(" (%s)", *s.FilePath)
			}
			b.WriteString(fmt.Sprintf("- **%s**%s: %s `[%s]`\n", s.Title, target, s.Details, s.Severity))
		}
	} else {
		b.WriteString("- No suggestions generated.\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatCheckRunSummary renders the compact plain-text summary attached
// to the check run.
func FormatCheckRunSummary(result *model.ReviewResult) string {
	overall := 0.0
	if result.Scores != nil {
		overall = result.Scores.Overall
	}
	return fmt.Sprintf(
		"Category: %s\nOverall score: %g/10 (advisory)\nFiles summarized: %d\nSuggestions: %d",
		result.Category, overall, len(result.FileSummaries), len(result.Suggestions),
	)
}
