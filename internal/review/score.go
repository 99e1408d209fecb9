package review

import (
	"math"
	"strings"

	"fossmate.app/fossmate/internal/model"
)

// ComputeScores derives the advisory scorecard: base constants adjusted
// down for large diffs and high-severity suggestions, each axis clamped
// to [0,10], overall the mean rounded to 2 decimals.
func ComputeScores(files []model.ChangedFile, suggestions []model.ReviewSuggestion) model.Scores {
	size := 0
	testsTouched := false
	for _, f := range files {
		size += f.Additions + f.Deletions
		if strings.Contains(strings.ToLower(f.Path), "test") {
			testsTouched = true
		}
	}

	severeFindings := 0
	for _, s := range suggestions {
		if s.Severity == model.FindingSeverityHigh {
			severeFindings++
		}
	}

	correctness := 7.2
	if testsTouched {
		correctness = 8.5
	}
	readability := 8.0
	maintainability := 7.8

	if size > 400 {
		readability -= 0.8
		maintainability -= 0.8
	}
	if severeFindings > 0 {
		correctness -= math.Min(1.5, float64(severeFindings)*0.5)
		maintainability -= math.Min(1.0, float64(severeFindings)*0.3)
	}

	correctness = clamp(correctness)
	readability = clamp(readability)
	maintainability = clamp(maintainability)

	return model.Scores{
		Correctness:     round2(correctness),
		Readability:     round2(readability),
		Maintainability: round2(maintainability),
		Overall:         round2((correctness + readability + maintainability) / 3.0),
	}
}

func clamp(v float64) float64 {
	return math.Max(0.0, math.Min(10.0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
