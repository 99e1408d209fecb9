package processor_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/common/logger"
	"fossmate.app/fossmate/core/config"
	"fossmate.app/fossmate/internal/codehost"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/processor"
	"fossmate.app/fossmate/internal/queue"
	"fossmate.app/fossmate/internal/review"
)

func newEntry(event model.CanonicalEvent, status model.DeliveryStatus) *model.DeliveryLog {
	snapshot, err := json.Marshal(event)
	Expect(err).NotTo(HaveOccurred())
	return &model.DeliveryLog{
		ID:             id.New(),
		Platform:       event.Platform,
		DeliveryID:     event.DeliveryID,
		IdempotencyKey: ingest.ComputeIdempotencyKey(event.Platform, event.DeliveryID, event.EventType, event.Action),
		WebhookEventID: id.New(),
		InstallationID: event.InstallationID,
		Status:         status,
		Event:          snapshot,
	}
}

func jobFor(entry *model.DeliveryLog) queue.Job {
	return queue.Job{
		ID:      "job-1",
		Handler: ingest.HandlerProcessDeliveryLog,
		Payload: map[string]any{"delivery_log_id": entry.ID},
	}
}

var _ = Describe("Processor", func() {
	var (
		ctx      context.Context
		logs     *fakeLogs
		runs     *fakeRuns
		metrics  *fakeMetrics
		settings *fakeSettings
		provider *mockProvider
		host     *mockHost
		notifier *fakeNotifier
		proc     *processor.Processor
	)

	defaults := config.FeatureDefaults{
		PRSummary:         true,
		FileSummary:       true,
		ReviewSuggestions: true,
		Scoring:           true,
		CommitTrigger:     true,
		EmailReports:      false,
		CommentAutoReply:  true,
		CommentReplyAll:   true,
	}

	prEvent := func(action string) model.CanonicalEvent {
		return model.CanonicalEvent{
			Platform:       model.PlatformGitHub,
			DeliveryID:     "delivery-1",
			EventType:      "pull_request",
			Action:         action,
			InstallationID: logger.Ptr(int64(11)),
			RepoFullName:   "acme/widgets",
			PRNumber:       logger.Ptr(7),
			PRTitle:        logger.Ptr("Fix null pointer on login"),
			SenderLogin:    "devon",
			HeadSHA:        logger.Ptr("abc123"),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		logs = newFakeLogs()
		runs = &fakeRuns{}
		metrics = &fakeMetrics{}
		settings = &fakeSettings{}
		provider = &mockProvider{}
		host = &mockHost{}
		notifier = &fakeNotifier{}

		hosts := map[model.Platform]codehost.Client{model.PlatformGitHub: host}
		orch := review.NewOrchestrator(provider, hosts)
		flags := processor.NewFeatureFlags(settings, defaults)
		proc = processor.New(logs, runs, metrics, flags, orch, hosts, notifier, "fossmate")
	})

	handle := func(entry *model.DeliveryLog) {
		Expect(proc.Handle(ctx, jobFor(entry))).To(Succeed())
	}

	It("is a no-op for missing ledger entries", func() {
		Expect(proc.Handle(ctx, queue.Job{Payload: map[string]any{"delivery_log_id": int64(404)}})).To(Succeed())
		Expect(runs.created).To(BeEmpty())
	})

	It("is an idempotent no-op for entries already done", func() {
		entry := newEntry(prEvent("opened"), model.DeliveryStatusDone)
		logs.entries[entry.ID] = entry

		handle(entry)

		Expect(runs.created).To(BeEmpty())
		Expect(host.prComments).To(BeEmpty())
		Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
	})

	It("skips entries it cannot claim", func() {
		entry := newEntry(prEvent("opened"), model.DeliveryStatusFailed)
		logs.entries[entry.ID] = entry

		handle(entry)

		Expect(runs.created).To(BeEmpty())
		Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusFailed))
	})

	Describe("pull request reviews", func() {
		BeforeEach(func() {
			host.listFilesFn = func(ctx context.Context, repo string, pr int) ([]model.ChangedFile, error) {
				return []model.ChangedFile{
					{Path: "auth/login.go", Status: "modified", Additions: 10, Deletions: 2},
					{Path: "auth/login_test.go", Status: "modified", Additions: 20},
				}, nil
			}
		})

		It("runs the full pipeline end to end", func() {
			entry := newEntry(prEvent("opened"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
			Expect(runs.finished).To(HaveLen(1))

			finished := runs.finished[0]
			Expect(finished.run.RunType).To(Equal(model.ReviewRunTypePullRequest))
			Expect(finished.run.Status).To(Equal(model.ReviewRunStatusDone))

			var result model.ReviewResult
			Expect(json.Unmarshal(finished.run.Result, &result)).To(Succeed())
			Expect(result.Category).To(Equal("fix"))
			for _, fs := range result.FileSummaries {
				Expect(fs.Risk).To(Equal(model.RiskLow))
			}
			Expect(finished.scores.Correctness).To(Equal(8.5))
			Expect(finished.scores.Overall).To(Equal(8.1))

			Expect(host.prComments).To(HaveLen(1))
			Expect(host.prComments[0].marker).To(Equal("<!-- fossmate:pr-review -->"))
			Expect(host.prComments[0].number).To(Equal(7))

			Expect(host.checkRuns).To(HaveLen(1))
			Expect(host.checkRuns[0].name).To(Equal("FOSSMate Review"))
			Expect(host.checkRuns[0].headSHA).To(Equal("abc123"))

			Expect(metrics.created).To(HaveLen(1))
			Expect(metrics.created[0].AuthorLogin).To(Equal("devon"))
			Expect(*metrics.created[0].Correctness).To(Equal(8.5))
			Expect(*metrics.created[0].Readability).To(Equal(8.0))
			Expect(*metrics.created[0].Maintainability).To(Equal(7.8))
			Expect(*metrics.created[0].Overall).To(Equal(8.1))
			Expect(metrics.created[0].ReviewRunID).NotTo(BeNil())

			Expect(notifier.subjects).To(BeEmpty())
		})

		It("sends an email report when the flag is enabled", func() {
			settings.flags = map[string]bool{"email_reports": true}
			entry := newEntry(prEvent("opened"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(notifier.subjects).To(ConsistOf("FOSSMate Review: acme/widgets#7"))
		})

		It("replaces the summary when pr_summary is disabled", func() {
			settings.flags = map[string]bool{"pr_summary": false}
			entry := newEntry(prEvent("opened"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			var result model.ReviewResult
			Expect(json.Unmarshal(runs.finished[0].run.Result, &result)).To(Succeed())
			Expect(*result.Summary).To(Equal("PR summary feature is disabled for this installation."))
		})

		It("omits the scorecard when scoring is disabled", func() {
			settings.flags = map[string]bool{"scoring": false}
			entry := newEntry(prEvent("opened"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(runs.finished[0].scores).To(BeNil())
			Expect(metrics.created[0].Overall).To(BeNil())
			Expect(metrics.created[0].Correctness).To(BeNil())
		})

		It("records a no-action run for synchronize when commit_trigger is off", func() {
			settings.flags = map[string]bool{"commit_trigger": false}
			entry := newEntry(prEvent("synchronize"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeNoAction))
			Expect(host.prComments).To(BeEmpty())
		})

		It("marks the entry failed when dispatch errors", func() {
			runs.createErr = errors.New("storage down")
			entry := newEntry(prEvent("opened"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			stored := logs.entries[entry.ID]
			Expect(stored.Status).To(Equal(model.DeliveryStatusFailed))
			Expect(*stored.Error).To(ContainSubstring("storage down"))
		})

		It("records a no-action run for events missing the PR number", func() {
			event := prEvent("opened")
			event.PRNumber = nil
			entry := newEntry(event, model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeNoAction))
		})
	})

	Describe("issue summaries", func() {
		issueEvent := func() model.CanonicalEvent {
			return model.CanonicalEvent{
				Platform:     model.PlatformGitHub,
				DeliveryID:   "delivery-2",
				EventType:    "issues",
				Action:       "opened",
				RepoFullName: "acme/widgets",
				IssueNumber:  logger.Ptr(33),
				IssueTitle:   logger.Ptr("Bug: crash when opening settings"),
				SenderLogin:  "devon",
			}
		}

		It("summarizes, applies labels and comments", func() {
			entry := newEntry(issueEvent(), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeIssueSummary))

			Expect(host.appliedLabels).To(Equal([]string{"bug"}))
			Expect(host.issueComments).To(HaveLen(1))
			Expect(host.issueComments[0].number).To(Equal(33))
			Expect(host.issueComments[0].marker).To(Equal("<!-- fossmate:issue-summary -->"))
			Expect(host.issueComments[0].body).To(ContainSubstring("Suggested labels: `bug`"))
		})
	})

	Describe("comment replies", func() {
		commentEvent := func(body, senderType, login string) model.CanonicalEvent {
			return model.CanonicalEvent{
				Platform:     model.PlatformGitHub,
				DeliveryID:   "delivery-3",
				EventType:    "issue_comment",
				Action:       "created",
				RepoFullName: "acme/widgets",
				IssueNumber:  logger.Ptr(33),
				IssueTitle:   logger.Ptr("Crash on startup"),
				SenderLogin:  login,
				Raw: map[string]any{
					"comment": map[string]any{"body": body, "id": float64(9001)},
					"sender":  map[string]any{"type": senderType},
				},
			}
		}

		It("never replies to bots", func() {
			entry := newEntry(commentEvent("how do i contribute?", "Bot", "ci-runner"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeNoAction))
			Expect(host.issueComments).To(BeEmpty())
		})

		It("never replies to its own marker-tagged comments", func() {
			entry := newEntry(commentEvent("<!-- fossmate:issue-summary --> earlier reply", "User", "devon"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeNoAction))
			Expect(host.issueComments).To(BeEmpty())
		})

		It("posts an onboarding reply for contribution questions", func() {
			entry := newEntry(commentEvent("Hi! How do I contribute to this project?", "User", "devon"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeCommentAssistant))
			Expect(host.issueComments).To(HaveLen(1))
			Expect(host.issueComments[0].marker).To(Equal("<!-- fossmate:onboarding:9001 -->"))
			Expect(host.issueComments[0].body).To(ContainSubstring("CONTRIBUTING"))
		})

		It("keys reply markers on the comment id so replays deduplicate", func() {
			first := newEntry(commentEvent("@fossmate what is the release plan?", "User", "devon"), model.DeliveryStatusQueued)
			logs.entries[first.ID] = first
			handle(first)

			replayed := newEntry(commentEvent("@fossmate what is the release plan?", "User", "devon"), model.DeliveryStatusQueued)
			replayed.DeliveryID = "delivery-replay"
			logs.entries[replayed.ID] = replayed
			handle(replayed)

			Expect(host.issueComments).To(HaveLen(2))
			Expect(host.issueComments[0].marker).To(Equal("<!-- fossmate:comment-assistant:9001 -->"))
			Expect(host.issueComments[1].marker).To(Equal(host.issueComments[0].marker))
		})

		It("falls back to an unkeyed marker when the comment id is missing", func() {
			event := commentEvent("@fossmate hello there", "User", "devon")
			event.Raw["comment"] = map[string]any{"body": "@fossmate hello there"}
			entry := newEntry(event, model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(host.issueComments).To(HaveLen(1))
			Expect(host.issueComments[0].marker).To(Equal("<!-- fossmate:comment-assistant -->"))
		})

		It("requires a mention when reply-all is disabled", func() {
			settings.flags = map[string]bool{"comment_reply_all": false}

			silent := newEntry(commentEvent("what is the release plan?", "User", "devon"), model.DeliveryStatusQueued)
			logs.entries[silent.ID] = silent
			handle(silent)
			Expect(host.issueComments).To(BeEmpty())

			mentioned := newEntry(commentEvent("@fossmate what is the release plan?", "User", "devon"), model.DeliveryStatusQueued)
			mentioned.DeliveryID = "delivery-4"
			logs.entries[mentioned.ID] = mentioned
			handle(mentioned)

			Expect(host.issueComments).To(HaveLen(1))
			Expect(host.issueComments[0].marker).To(Equal("<!-- fossmate:comment-assistant:9001 -->"))
		})

		It("records a no-action run when auto reply is disabled", func() {
			settings.flags = map[string]bool{"comment_auto_reply": false}
			entry := newEntry(commentEvent("@fossmate hello", "User", "devon"), model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeNoAction))
			Expect(host.issueComments).To(BeEmpty())
		})
	})

	Describe("gitlab events", func() {
		It("records a placeholder run", func() {
			event := model.CanonicalEvent{
				Platform:   model.PlatformGitLab,
				DeliveryID: "gl-1",
				EventType:  "mergerequest",
				Action:     "open",
			}
			entry := newEntry(event, model.DeliveryStatusQueued)
			logs.entries[entry.ID] = entry

			handle(entry)

			Expect(logs.entries[entry.ID].Status).To(Equal(model.DeliveryStatusDone))
			Expect(runs.finished[0].run.RunType).To(Equal(model.ReviewRunTypeGitLabEvent))
			Expect(string(runs.finished[0].run.Result)).To(ContainSubstring("placeholder"))
		})
	})
})
