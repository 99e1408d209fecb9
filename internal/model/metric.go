package model

import "time"

// DeveloperMetric is one per-author data point recorded after a pull
// request review, aggregated later into evaluation reports. Score axes
// are nil when scoring is disabled for the installation.
type DeveloperMetric struct {
	ID              int64     `json:"id"`
	InstallationID  *int64    `json:"installation_id,omitempty"`
	Platform        Platform  `json:"platform"`
	RepoFullName    string    `json:"repo_full_name"`
	AuthorLogin     string    `json:"author_login"`
	ReviewRunID     *int64    `json:"review_run_id,omitempty"`
	PRNumber        int       `json:"pr_number"`
	Category        string    `json:"category"`
	FilesChanged    int       `json:"files_changed"`
	LinesChanged    int       `json:"lines_changed"`
	Correctness     *float64  `json:"correctness,omitempty"`
	Readability     *float64  `json:"readability,omitempty"`
	Maintainability *float64  `json:"maintainability,omitempty"`
	Overall         *float64  `json:"overall,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeveloperReport is the aggregate view over a window of metrics, one
// row per developer login.
type DeveloperReport struct {
	DeveloperLogin     string   `json:"developer_login"`
	ReviewCount        int64    `json:"review_count"`
	AvgCorrectness     *float64 `json:"avg_correctness,omitempty"`
	AvgReadability     *float64 `json:"avg_readability,omitempty"`
	AvgMaintainability *float64 `json:"avg_maintainability,omitempty"`
	AvgOverall         *float64 `json:"avg_overall,omitempty"`
	TotalLines         int64    `json:"total_lines"`
	TopCategory        string   `json:"top_category"`
}

// ReportFilter narrows the developer evaluation window.
type ReportFilter struct {
	Since          time.Time
	InstallationID *int64
	DeveloperLogin string
}
