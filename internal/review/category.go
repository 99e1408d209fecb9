package review

import (
	"regexp"
	"strings"

	"fossmate.app/fossmate/internal/model"
)

var featurePattern = regexp.MustCompile(`\b(add|implement|introduce|create|feat)\b`)

// Categorize classifies a pull request by matching its title against
// ordered keyword rules. First match wins, so a title containing both
// "fix" and "feature" wording classifies as fix.
func Categorize(title string, files []model.ChangedFile) string {
	titleLower := strings.ToLower(title)

	var paths strings.Builder
	for _, f := range files {
		paths.WriteString(strings.ToLower(f.Path))
		paths.WriteByte(' ')
	}

	switch {
	case containsAny(titleLower, "fix", "bug", "hotfix"):
		return "fix"
	case containsAny(titleLower, "refactor", "cleanup"):
		return "refactor"
	case containsAny(titleLower, "test", "spec"):
		return "test"
	case containsAny(titleLower, "docs", "readme", "documentation") || strings.Contains(paths.String(), "docs/"):
		return "docs"
	case containsAny(titleLower, "chore", "ci", "build", "deps"):
		return "chore"
	case featurePattern.MatchString(titleLower):
		return "feature"
	default:
		return "mixed"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
