// Package processor runs the delivery state machine. Each job carries a
// ledger entry id; the processor re-reads durable state, claims the
// entry, dispatches by event type and finalizes to done or failed. The
// dispatch boundary converts any remaining error into a terminal ledger
// state so a bad delivery never takes down a worker.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/common/logger"
	"fossmate.app/fossmate/internal/codehost"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/notify"
	"fossmate.app/fossmate/internal/queue"
	"fossmate.app/fossmate/internal/review"
	"fossmate.app/fossmate/internal/store"
)

const (
	// CheckRunName labels the advisory check attached to reviewed PRs.
	CheckRunName = "FOSSMate Review"

	markerPrefix       = "<!-- fossmate:"
	markerPRReview     = "<!-- fossmate:pr-review -->"
	markerIssueSummary = "<!-- fossmate:issue-summary -->"
)

type Processor struct {
	logs     store.DeliveryLogStore
	runs     store.ReviewRunStore
	metrics  store.MetricStore
	flags    *FeatureFlags
	orch     *review.Orchestrator
	hosts    map[model.Platform]codehost.Client
	notifier notify.Notifier
	handle   string
}

func New(
	logs store.DeliveryLogStore,
	runs store.ReviewRunStore,
	metrics store.MetricStore,
	flags *FeatureFlags,
	orch *review.Orchestrator,
	hosts map[model.Platform]codehost.Client,
	notifier notify.Notifier,
	assistantHandle string,
) *Processor {
	return &Processor{
		logs:     logs,
		runs:     runs,
		metrics:  metrics,
		flags:    flags,
		orch:     orch,
		hosts:    hosts,
		notifier: notifier,
		handle:   assistantHandle,
	}
}

// Register binds the processor to its queue handler name.
func (p *Processor) Register(q queue.Queue) {
	q.RegisterHandler(ingest.HandlerProcessDeliveryLog, p.Handle)
}

// Handle is the queue entry point for one delivery. Missing entries and
// already-done entries are idempotent no-ops; dispatch errors mark the
// entry failed and are swallowed so the worker survives.
func (p *Processor) Handle(ctx context.Context, job queue.Job) error {
	deliveryLogID, ok := queue.PayloadInt64(job.Payload, "delivery_log_id")
	if !ok {
		return fmt.Errorf("job payload is missing delivery_log_id")
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryLogID: logger.Ptr(deliveryLogID),
		Component:     "processor",
	})

	entry, err := p.logs.GetByID(ctx, deliveryLogID)
	if err != nil {
		if err == store.ErrNotFound {
			slog.WarnContext(ctx, "ledger entry not found, dropping job")
			return nil
		}
		return fmt.Errorf("loading ledger entry: %w", err)
	}

	if entry.Status == model.DeliveryStatusDone {
		slog.InfoContext(ctx, "ledger entry already done, skipping")
		return nil
	}

	claimed, err := p.logs.ClaimQueued(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("claiming ledger entry: %w", err)
	}
	if !claimed {
		slog.InfoContext(ctx, "ledger entry not claimable, skipping", "status", entry.Status)
		return nil
	}

	if err := p.process(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "delivery dispatch failed", "error", err)
		if markErr := p.logs.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "unable to mark ledger entry failed", "error", markErr)
		}
		return nil
	}

	if err := p.logs.MarkDone(ctx, entry.ID); err != nil {
		slog.ErrorContext(ctx, "unable to mark ledger entry done", "error", err)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, entry *model.DeliveryLog) error {
	event, err := entry.NormalizedEvent()
	if err != nil {
		return fmt.Errorf("decoding event snapshot: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Platform:  logger.Ptr(string(event.Platform)),
		EventType: logger.Ptr(event.EventType),
	})

	flags := p.flags.For(ctx, event.Platform, event.InstallationID)

	if event.Platform == model.PlatformGitLab {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeGitLabEvent,
			"GitLab processing pipeline placeholder accepted event.")
	}

	switch event.EventType {
	case "pull_request":
		switch event.Action {
		case "opened":
			return p.handlePullRequest(ctx, entry, event, flags)
		case "synchronize":
			if !flags[FlagCommitTrigger] {
				return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
					"re-review on new commits is disabled for this installation")
			}
			return p.handlePullRequest(ctx, entry, event, flags)
		}
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			fmt.Sprintf("pull request action %q requires no handling", event.Action))

	case "issues":
		if event.Action == "opened" {
			return p.handleIssue(ctx, entry, event)
		}
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			fmt.Sprintf("issue action %q requires no handling", event.Action))

	case "issue_comment", "pull_request_review_comment":
		if event.Action == "created" {
			return p.handleComment(ctx, entry, event, flags)
		}
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			fmt.Sprintf("comment action %q requires no handling", event.Action))
	}

	return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
		fmt.Sprintf("event type %q requires no handling", event.EventType))
}

func (p *Processor) handlePullRequest(ctx context.Context, entry *model.DeliveryLog, event model.CanonicalEvent, flags map[string]bool) error {
	if event.RepoFullName == "" || event.PRNumber == nil {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			"pull request event is missing repository or number")
	}

	run := p.newRun(entry, event, model.ReviewRunTypePullRequest)
	run.Provider = p.orch.Provider().ProviderName()
	run.Model = p.orch.Provider().ModelName()
	if err := p.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("creating review run: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ReviewRunID: logger.Ptr(run.ID)})

	started := time.Now()
	result, err := p.orch.BuildPullRequestReview(ctx, event)
	if err != nil {
		return fmt.Errorf("building pull request review: %w", err)
	}

	// Flags null out individual sections; the run itself always happens.
	if !flags[FlagPRSummary] {
		disabled := "PR summary feature is disabled for this installation."
		result.Summary = &disabled
	}
	if !flags[FlagFileSummary] {
		result.FileSummaries = nil
	}
	if !flags[FlagReviewSuggestions] {
		result.Suggestions = nil
	}
	if !flags[FlagScoring] {
		result.Scores = nil
	}

	findings := make([]model.ReviewFinding, 0, len(result.Suggestions))
	for _, s := range result.Suggestions {
		findings = append(findings, model.ReviewFinding{
			ReviewRunID: run.ID,
			Title:       s.Title,
			Details:     s.Details,
			Severity:    s.Severity,
			FilePath:    s.FilePath,
		})
	}

	var scoreCard *model.ScoreCard
	if result.Scores != nil {
		scoreCard = &model.ScoreCard{
			ReviewRunID:     run.ID,
			Correctness:     result.Scores.Correctness,
			Readability:     result.Scores.Readability,
			Maintainability: result.Scores.Maintainability,
			Overall:         result.Scores.Overall,
		}
	}

	run.LatencyMS = time.Since(started).Milliseconds()
	run.Result, err = json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding review result: %w", err)
	}
	if err := p.runs.Finish(ctx, run, findings, scoreCard); err != nil {
		return fmt.Errorf("finishing review run: %w", err)
	}

	p.recordMetric(ctx, event, result, run.ID)
	p.publishReview(ctx, event, result, run.ID, flags)
	return nil
}

// publishReview posts the review artifacts to the code host and optional
// email channel. Publication failures degrade to warnings; the review
// itself is already durably recorded.
func (p *Processor) publishReview(ctx context.Context, event model.CanonicalEvent, result *model.ReviewResult, runID int64, flags map[string]bool) {
	host, ok := p.hosts[event.Platform]
	if !ok {
		slog.WarnContext(ctx, "no code host client for platform, skipping publication")
		return
	}

	comment := review.FormatPullRequestComment(result)
	if err := host.UpsertPullRequestComment(ctx, event.RepoFullName, *event.PRNumber, comment, markerPRReview); err != nil {
		slog.WarnContext(ctx, "unable to post review comment", "error", err)
	}

	checkSummary := review.FormatCheckRunSummary(result)
	if event.HeadSHA != nil && *event.HeadSHA != "" {
		if err := host.CreateOrUpdateCheckRun(ctx, event.RepoFullName, *event.HeadSHA,
			CheckRunName, checkSummary, strconv.FormatInt(runID, 10)); err != nil {
			slog.WarnContext(ctx, "unable to create check run", "error", err)
		}
	}

	if flags[FlagEmailReports] {
		subject := fmt.Sprintf("FOSSMate Review: %s#%d", event.RepoFullName, *event.PRNumber)
		if err := p.notifier.Send(ctx, subject, checkSummary, "", nil); err != nil {
			slog.WarnContext(ctx, "unable to send review email", "error", err)
		}
	}
}

func (p *Processor) recordMetric(ctx context.Context, event model.CanonicalEvent, result *model.ReviewResult, runID int64) {
	if event.SenderLogin == "" {
		return
	}

	metric := &model.DeveloperMetric{
		ID:             id.New(),
		InstallationID: event.InstallationID,
		Platform:       event.Platform,
		RepoFullName:   event.RepoFullName,
		AuthorLogin:    event.SenderLogin,
		ReviewRunID:    logger.Ptr(runID),
		PRNumber:       *event.PRNumber,
		Category:       result.Category,
		FilesChanged:   result.FilesChanged,
		LinesChanged:   result.LinesChanged,
	}
	if result.Scores != nil {
		metric.Correctness = logger.Ptr(result.Scores.Correctness)
		metric.Readability = logger.Ptr(result.Scores.Readability)
		metric.Maintainability = logger.Ptr(result.Scores.Maintainability)
		metric.Overall = logger.Ptr(result.Scores.Overall)
	}
	if err := p.metrics.Create(ctx, metric); err != nil {
		slog.WarnContext(ctx, "unable to record developer metric", "error", err)
	}
}

func (p *Processor) handleIssue(ctx context.Context, entry *model.DeliveryLog, event model.CanonicalEvent) error {
	if event.RepoFullName == "" || event.IssueNumber == nil {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			"issue event is missing repository or number")
	}

	run := p.newRun(entry, event, model.ReviewRunTypeIssueSummary)
	run.Provider = p.orch.Provider().ProviderName()
	run.Model = p.orch.Provider().ModelName()
	if err := p.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("creating issue summary run: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ReviewRunID: logger.Ptr(run.ID)})

	started := time.Now()
	summary := p.orch.SummarizeIssue(ctx, event)
	suggested := p.orch.SuggestIssueLabels(ctx, event)

	var applied []string
	if host, ok := p.hosts[event.Platform]; ok {
		var err error
		applied, err = host.AddIssueLabels(ctx, event.RepoFullName, *event.IssueNumber, suggested)
		if err != nil {
			slog.WarnContext(ctx, "unable to apply issue labels", "error", err)
			applied = nil
		}

		body := summary
		if len(applied) > 0 {
			quoted := make([]string, 0, len(applied))
			for _, label := range applied {
				quoted = append(quoted, fmt.Sprintf("`%s`", label))
			}
			body += fmt.Sprintf("\n\nSuggested labels: %s", strings.Join(quoted, ", "))
		}
		if err := host.UpsertIssueComment(ctx, event.RepoFullName, *event.IssueNumber, body, markerIssueSummary); err != nil {
			slog.WarnContext(ctx, "unable to post issue summary comment", "error", err)
		}
	}

	run.LatencyMS = time.Since(started).Milliseconds()
	var err error
	run.Result, err = json.Marshal(map[string]any{
		"summary":          summary,
		"suggested_labels": suggested,
		"applied_labels":   applied,
	})
	if err != nil {
		return fmt.Errorf("encoding issue summary result: %w", err)
	}
	if err := p.runs.Finish(ctx, run, nil, nil); err != nil {
		return fmt.Errorf("finishing issue summary run: %w", err)
	}
	return nil
}

func (p *Processor) handleComment(ctx context.Context, entry *model.DeliveryLog, event model.CanonicalEvent, flags map[string]bool) error {
	body := rawLookup(event.Raw, "comment", "body")
	if strings.TrimSpace(body) == "" {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction, "comment body is empty")
	}

	// Reply-loop guards: never answer bots or our own marker-tagged replies.
	senderType := strings.ToLower(rawLookup(event.Raw, "sender", "type"))
	if senderType == "bot" || strings.HasSuffix(event.SenderLogin, "[bot]") {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction, "comment sender is a bot")
	}
	if strings.Contains(body, markerPrefix) {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction, "comment already carries an assistant marker")
	}

	if !flags[FlagCommentAutoReply] {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			"comment auto reply is disabled for this installation")
	}

	mentioned := review.IsAssistantMention(body, p.handle)
	if !flags[FlagCommentReplyAll] && !mentioned {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			"comment does not mention the assistant and reply-all is disabled")
	}

	number := event.IssueNumber
	if number == nil {
		number = event.PRNumber
	}
	if event.RepoFullName == "" || number == nil {
		return p.recordRun(ctx, entry, event, model.ReviewRunTypeNoAction,
			"comment event is missing repository or thread number")
	}

	run := p.newRun(entry, event, model.ReviewRunTypeCommentAssistant)
	run.Provider = p.orch.Provider().ProviderName()
	run.Model = p.orch.Provider().ModelName()
	if err := p.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("creating assistant run: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ReviewRunID: logger.Ptr(run.ID)})

	started := time.Now()
	commentID, hasCommentID := rawLookupInt64(event.Raw, "comment", "id")
	var reply, marker, kind string
	if review.IsOnboardingRequest(body) {
		kind = "onboarding"
		reply = p.orch.OnboardingReply(event)
		marker = commentMarker("onboarding", commentID, hasCommentID)
	} else {
		kind = "assistant"
		reply = p.orch.AnswerIssueComment(ctx, event, body, p.handle)
		marker = commentMarker("comment-assistant", commentID, hasCommentID)
	}

	if host, ok := p.hosts[event.Platform]; ok {
		if err := host.UpsertIssueComment(ctx, event.RepoFullName, *number, reply, marker); err != nil {
			slog.WarnContext(ctx, "unable to post assistant reply", "error", err)
		}
	}

	run.LatencyMS = time.Since(started).Milliseconds()
	var err error
	var sourceCommentID any
	if hasCommentID {
		sourceCommentID = commentID
	}
	run.Result, err = json.Marshal(map[string]any{
		"reply_kind":        kind,
		"mentioned":         mentioned,
		"reply":             reply,
		"source_comment_id": sourceCommentID,
	})
	if err != nil {
		return fmt.Errorf("encoding assistant result: %w", err)
	}
	if err := p.runs.Finish(ctx, run, nil, nil); err != nil {
		return fmt.Errorf("finishing assistant run: %w", err)
	}
	return nil
}

// recordRun writes a zero-effort run with an explanatory message. Events
// requiring no handling still move through the state machine to done.
func (p *Processor) recordRun(ctx context.Context, entry *model.DeliveryLog, event model.CanonicalEvent, runType model.ReviewRunType, message string) error {
	run := p.newRun(entry, event, runType)
	if err := p.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("creating %s run: %w", runType, err)
	}

	var err error
	run.Result, err = json.Marshal(map[string]any{"message": message})
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}
	if err := p.runs.Finish(ctx, run, nil, nil); err != nil {
		return fmt.Errorf("finishing %s run: %w", runType, err)
	}

	slog.InfoContext(ctx, "delivery recorded without action", "run_type", runType, "reason", message)
	return nil
}

func (p *Processor) newRun(entry *model.DeliveryLog, event model.CanonicalEvent, runType model.ReviewRunType) *model.ReviewRun {
	return &model.ReviewRun{
		ID:             id.New(),
		DeliveryLogID:  entry.ID,
		InstallationID: event.InstallationID,
		Platform:       event.Platform,
		RunType:        runType,
		Status:         model.ReviewRunStatusProcessing,
		RepoFullName:   event.RepoFullName,
		PRNumber:       event.PRNumber,
		IssueNumber:    event.IssueNumber,
		ActorLogin:     event.SenderLogin,
	}
}

// commentMarker tags assistant replies with the triggering comment's id
// so a replayed delivery deduplicates against the original reply.
func commentMarker(kind string, commentID int64, ok bool) string {
	if ok {
		return fmt.Sprintf("<!-- fossmate:%s:%d -->", kind, commentID)
	}
	return fmt.Sprintf("<!-- fossmate:%s -->", kind)
}

func rawLookup(raw map[string]any, keys ...string) string {
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

// rawLookupInt64 reads a numeric field from a decoded JSON payload, where
// numbers arrive as float64.
func rawLookupInt64(raw map[string]any, keys ...string) (int64, bool) {
	current := raw
	for i, key := range keys {
		if current == nil {
			return 0, false
		}
		if i == len(keys)-1 {
			switch v := current[key].(type) {
			case float64:
				return int64(v), true
			case int64:
				return v, true
			}
			return 0, false
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			return 0, false
		}
		current = next
	}
	return 0, false
}
