package store

import (
	"context"
	"math"

	"fossmate.app/fossmate/internal/model"
)

type metricStore struct {
	q Querier
}

func newMetricStore(q Querier) MetricStore {
	return &metricStore{q: q}
}

func (s *metricStore) Create(ctx context.Context, metric *model.DeveloperMetric) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO developer_metrics (id, installation_id, platform, repo_full_name, author_login,
			review_run_id, pr_number, category, files_changed, lines_changed,
			correctness, readability, maintainability, overall)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`,
		metric.ID, metric.InstallationID, metric.Platform, metric.RepoFullName, metric.AuthorLogin,
		metric.ReviewRunID, metric.PRNumber, metric.Category, metric.FilesChanged, metric.LinesChanged,
		metric.Correctness, metric.Readability, metric.Maintainability, metric.Overall,
	).Scan(&metric.CreatedAt)
}

// Report aggregates per-login averages of every score axis over the
// window, best average overall first.
func (s *metricStore) Report(ctx context.Context, filter model.ReportFilter) ([]model.DeveloperReport, error) {
	rows, err := s.q.Query(ctx, `
		SELECT author_login,
			count(*) AS review_count,
			avg(correctness) AS avg_correctness,
			avg(readability) AS avg_readability,
			avg(maintainability) AS avg_maintainability,
			avg(overall) AS avg_overall,
			coalesce(sum(lines_changed), 0) AS total_lines,
			mode() WITHIN GROUP (ORDER BY category) AS top_category
		FROM developer_metrics
		WHERE created_at >= $1
			AND ($2::bigint IS NULL OR installation_id = $2)
			AND ($3 = '' OR author_login = $3)
		GROUP BY author_login
		ORDER BY avg(overall) DESC NULLS LAST`,
		filter.Since, filter.InstallationID, filter.DeveloperLogin,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.DeveloperReport
	for rows.Next() {
		var report model.DeveloperReport
		if err := rows.Scan(
			&report.DeveloperLogin, &report.ReviewCount,
			&report.AvgCorrectness, &report.AvgReadability,
			&report.AvgMaintainability, &report.AvgOverall,
			&report.TotalLines, &report.TopCategory,
		); err != nil {
			return nil, err
		}
		roundAverages(&report)
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func roundAverages(report *model.DeveloperReport) {
	for _, avg := range []*float64{
		report.AvgCorrectness, report.AvgReadability,
		report.AvgMaintainability, report.AvgOverall,
	} {
		if avg != nil {
			*avg = math.Round(*avg*100) / 100
		}
	}
}
