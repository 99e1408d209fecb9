package model

import (
	"encoding/json"
	"time"
)

type ReviewRunType string

const (
	ReviewRunTypePullRequest      ReviewRunType = "pull_request_review"
	ReviewRunTypeIssueSummary     ReviewRunType = "issue_summary"
	ReviewRunTypeCommentAssistant ReviewRunType = "comment_assistant"
	ReviewRunTypeGitLabEvent      ReviewRunType = "gitlab_event_received"
	ReviewRunTypeNoAction         ReviewRunType = "no_action"
)

type ReviewRunStatus string

const (
	ReviewRunStatusProcessing ReviewRunStatus = "processing"
	ReviewRunStatusDone       ReviewRunStatus = "done"
)

// ReviewRun records one generation-backed handling pass. It is created when
// dispatch starts and finalized in the same pass; partial runs are never
// visible to other workers.
type ReviewRun struct {
	ID             int64           `json:"id"`
	DeliveryLogID  int64           `json:"delivery_log_id"`
	InstallationID *int64          `json:"installation_id,omitempty"`
	Platform       Platform        `json:"platform"`
	RunType        ReviewRunType   `json:"run_type"`
	Status         ReviewRunStatus `json:"status"`
	Provider       string          `json:"provider,omitempty"`
	Model          string          `json:"model,omitempty"`
	RepoFullName   string          `json:"repo_full_name,omitempty"`
	PRNumber       *int            `json:"pr_number,omitempty"`
	IssueNumber    *int            `json:"issue_number,omitempty"`
	ActorLogin     string          `json:"actor_login,omitempty"`
	LatencyMS      int64           `json:"latency_ms"`
	PromptTokens   *int64          `json:"prompt_tokens,omitempty"`
	OutputTokens   *int64          `json:"output_tokens,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

type FindingSeverity string

const (
	FindingSeverityLow    FindingSeverity = "low"
	FindingSeverityMedium FindingSeverity = "medium"
	FindingSeverityHigh   FindingSeverity = "high"
)

// ReviewFinding is one suggestion attached to a run.
type ReviewFinding struct {
	ID          int64           `json:"id"`
	ReviewRunID int64           `json:"review_run_id"`
	Title       string          `json:"title"`
	Details     string          `json:"details"`
	Severity    FindingSeverity `json:"severity"`
	FilePath    *string         `json:"file_path,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ScoreCard is the advisory quality estimate for a run. It never gates
// merges or approvals.
type ScoreCard struct {
	ID              int64     `json:"id"`
	ReviewRunID     int64     `json:"review_run_id"`
	Correctness     float64   `json:"correctness"`
	Readability     float64   `json:"readability"`
	Maintainability float64   `json:"maintainability"`
	Overall         float64   `json:"overall"`
	CreatedAt       time.Time `json:"created_at"`
}

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// ChangedFile is the code-host view of one file in a pull request diff.
type ChangedFile struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

type FileChangeSummary struct {
	Path    string   `json:"path"`
	Summary string   `json:"summary"`
	Risk    RiskTier `json:"risk"`
}

type ReviewSuggestion struct {
	Title    string          `json:"title"`
	Details  string          `json:"details"`
	Severity FindingSeverity `json:"severity"`
	FilePath *string         `json:"file_path,omitempty"`
}

type Scores struct {
	Correctness     float64 `json:"correctness"`
	Readability     float64 `json:"readability"`
	Maintainability float64 `json:"maintainability"`
	Overall         float64 `json:"overall"`
}

// ReviewResult is the full artifact set produced for one pull request.
// Sections disabled by feature flags are nil, not omitted runs.
type ReviewResult struct {
	Category      string              `json:"category"`
	Summary       *string             `json:"summary,omitempty"`
	FileSummaries []FileChangeSummary `json:"file_summaries,omitempty"`
	Suggestions   []ReviewSuggestion  `json:"suggestions,omitempty"`
	Scores        *Scores             `json:"scores,omitempty"`
	FilesChanged  int                 `json:"files_changed"`
	LinesChanged  int                 `json:"lines_changed"`
	Provider      string              `json:"provider,omitempty"`
	Model         string              `json:"model,omitempty"`
}
