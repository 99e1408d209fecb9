package dto

import "fossmate.app/fossmate/internal/model"

type QueueStatsResponse struct {
	Backend string `json:"backend"`
	Workers int    `json:"workers"`
	Pending int64  `json:"pending"`
}

type InstallationStatusResponse struct {
	Platform           string             `json:"platform"`
	InstallationID     int64              `json:"installation_id"`
	Flags              map[string]bool    `json:"flags"`
	DeliveriesByStatus map[string]int64   `json:"deliveries_by_status"`
	RecentRuns         []ReviewRunSummary `json:"recent_runs"`
	Queue              QueueStatsResponse `json:"queue"`
}

type ReviewRunSummary struct {
	ID           int64  `json:"id"`
	RunType      string `json:"run_type"`
	Status       string `json:"status"`
	RepoFullName string `json:"repo_full_name,omitempty"`
	PRNumber     *int   `json:"pr_number,omitempty"`
	IssueNumber  *int   `json:"issue_number,omitempty"`
	Provider     string `json:"provider,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
}

func NewReviewRunSummary(run model.ReviewRun) ReviewRunSummary {
	return ReviewRunSummary{
		ID:           run.ID,
		RunType:      string(run.RunType),
		Status:       string(run.Status),
		RepoFullName: run.RepoFullName,
		PRNumber:     run.PRNumber,
		IssueNumber:  run.IssueNumber,
		Provider:     run.Provider,
		LatencyMS:    run.LatencyMS,
	}
}

type ReplayResponse struct {
	DeliveryLogID       int64  `json:"delivery_log_id"`
	SourceDeliveryLogID int64  `json:"source_delivery_log_id"`
	IdempotencyKey      string `json:"idempotency_key"`
}

type DeveloperReportResponse struct {
	Days           int                     `json:"days"`
	InstallationID *int64                  `json:"installation_id,omitempty"`
	DeveloperLogin string                  `json:"developer_login,omitempty"`
	Since          string                  `json:"since"`
	Results        []model.DeveloperReport `json:"results"`
}
