package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/core/db"
	"fossmate.app/fossmate/internal/model"
)

type reviewRunStore struct {
	db *db.DB
	q  Querier
}

func newReviewRunStore(database *db.DB) ReviewRunStore {
	return &reviewRunStore{db: database, q: database.Pool()}
}

const reviewRunColumns = `
	id, delivery_log_id, installation_id, platform, run_type, status,
	provider, model, repo_full_name, pr_number, issue_number, actor_login,
	latency_ms, prompt_tokens, output_tokens, result, error, created_at, finished_at`

func (s *reviewRunStore) Create(ctx context.Context, run *model.ReviewRun) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO review_runs (id, delivery_log_id, installation_id, platform, run_type, status,
			provider, model, repo_full_name, pr_number, issue_number, actor_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		run.ID, run.DeliveryLogID, run.InstallationID, run.Platform, run.RunType,
		model.ReviewRunStatusProcessing, run.Provider, run.Model, run.RepoFullName,
		run.PRNumber, run.IssueNumber, run.ActorLogin,
	).Scan(&run.CreatedAt)
}

// Finish writes the terminal run state and its child artifacts in one
// transaction, so a crash can never leave a done run without its
// findings or scorecard.
func (s *reviewRunStore) Finish(ctx context.Context, run *model.ReviewRun, findings []model.ReviewFinding, scores *model.ScoreCard) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return finishRun(ctx, tx, run, findings, scores)
	})
}

func finishRun(ctx context.Context, q Querier, run *model.ReviewRun, findings []model.ReviewFinding, scores *model.ScoreCard) error {
	_, err := q.Exec(ctx, `
		UPDATE review_runs
		SET status = $2, provider = $3, model = $4, latency_ms = $5,
			prompt_tokens = $6, output_tokens = $7, result = $8, error = $9,
			finished_at = now()
		WHERE id = $1`,
		run.ID, model.ReviewRunStatusDone, run.Provider, run.Model, run.LatencyMS,
		run.PromptTokens, run.OutputTokens, []byte(run.Result), run.Error,
	)
	if err != nil {
		return err
	}

	for _, finding := range findings {
		if _, err := q.Exec(ctx, `
			INSERT INTO review_findings (id, review_run_id, title, details, severity, file_path)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id.New(), run.ID, finding.Title, finding.Details, finding.Severity, finding.FilePath,
		); err != nil {
			return err
		}
	}

	if scores != nil {
		if _, err := q.Exec(ctx, `
			INSERT INTO score_cards (id, review_run_id, correctness, readability, maintainability, overall)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id.New(), run.ID, scores.Correctness, scores.Readability, scores.Maintainability, scores.Overall,
		); err != nil {
			return err
		}
	}

	return nil
}

func (s *reviewRunStore) GetByID(ctx context.Context, runID int64) (*model.ReviewRun, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+reviewRunColumns+`
		FROM review_runs
		WHERE id = $1`,
		runID,
	)

	run, err := scanReviewRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *reviewRunStore) ListRecent(ctx context.Context, limit int32) ([]model.ReviewRun, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+reviewRunColumns+`
		FROM review_runs
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.ReviewRun
	for rows.Next() {
		run, err := scanReviewRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanReviewRun(row pgx.Row) (*model.ReviewRun, error) {
	var run model.ReviewRun
	err := row.Scan(
		&run.ID, &run.DeliveryLogID, &run.InstallationID, &run.Platform,
		&run.RunType, &run.Status, &run.Provider, &run.Model,
		&run.RepoFullName, &run.PRNumber, &run.IssueNumber, &run.ActorLogin,
		&run.LatencyMS, &run.PromptTokens, &run.OutputTokens, &run.Result,
		&run.Error, &run.CreatedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
