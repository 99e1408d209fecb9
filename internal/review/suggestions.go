package review

import (
	"encoding/json"
	"strings"

	"fossmate.app/fossmate/internal/model"
)

const maxSuggestions = 5

// structuredSuggestions is the schema shape requested from providers
// with enforced structured output. parseSuggestions handles both this
// wrapped form and a bare JSON list.
type structuredSuggestions struct {
	Suggestions []struct {
		Title    string `json:"title"`
		Details  string `json:"details"`
		Severity string `json:"severity"`
		FilePath string `json:"file_path,omitempty"`
	} `json:"suggestions"`
}

// parseSuggestions extracts a JSON list from generated text. Any parse
// failure or empty result returns nil; the caller substitutes the fixed
// heuristic suggestions.
func parseSuggestions(raw string) []model.ReviewSuggestion {
	var items []map[string]any
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &items); err != nil {
		return nil
	}

	var suggestions []model.ReviewSuggestion
	for _, item := range items {
		if len(suggestions) == maxSuggestions {
			break
		}

		title, _ := item["title"].(string)
		if title == "" {
			title = "Review suggestion"
		}
		details, _ := item["details"].(string)
		if details == "" {
			details = "No details provided."
		}
		severityRaw, _ := item["severity"].(string)
		severity := normalizeSeverity(severityRaw)

		var filePath *string
		if p, ok := item["file_path"].(string); ok && p != "" {
			filePath = &p
		}

		suggestions = append(suggestions, model.ReviewSuggestion{
			Title:    title,
			Details:  details,
			Severity: severity,
			FilePath: filePath,
		})
	}
	return suggestions
}

// extractJSONArray strips code-fence markers and cuts to the first '['
// and last ']' so chatty model output still parses.
func extractJSONArray(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.Trim(raw, "`")
		if strings.HasPrefix(strings.ToLower(raw), "json") {
			raw = raw[4:]
		}
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func normalizeSeverity(raw string) model.FindingSeverity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return model.FindingSeverityLow
	case "high":
		return model.FindingSeverityHigh
	default:
		return model.FindingSeverityMedium
	}
}

// fallbackSuggestions are the fixed pair used when generation produces
// nothing parseable.
func fallbackSuggestions(files []model.ChangedFile) []model.ReviewSuggestion {
	var firstFile *string
	if len(files) > 0 {
		firstFile = &files[0].Path
	}

	return []model.ReviewSuggestion{
		{
			Title:    "Validate edge cases",
			Details:  "Review boundary conditions and error handling for modified paths.",
			Severity: model.FindingSeverityMedium,
			FilePath: firstFile,
		},
		{
			Title:    "Add or update tests",
			Details:  "Ensure behavior changes are covered by tests to prevent regressions.",
			Severity: model.FindingSeverityMedium,
		},
	}
}
