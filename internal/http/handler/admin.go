package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/processor"
	"fossmate.app/fossmate/internal/queue"
	"fossmate.app/fossmate/internal/store"
)

const recentRunLimit = 20

type AdminHandler struct {
	logs   store.DeliveryLogStore
	runs   store.ReviewRunStore
	flags  *processor.FeatureFlags
	ingest *ingest.Service
	queue  queue.Queue
}

func NewAdminHandler(
	logs store.DeliveryLogStore,
	runs store.ReviewRunStore,
	flags *processor.FeatureFlags,
	ingestService *ingest.Service,
	q queue.Queue,
) *AdminHandler {
	return &AdminHandler{logs: logs, runs: runs, flags: flags, ingest: ingestService, queue: q}
}

// InstallationStatus reports the operator view for one installation:
// effective flags, ledger counts, recent runs and queue stats.
func (h *AdminHandler) InstallationStatus(c *gin.Context) {
	ctx := c.Request.Context()

	installationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation id"})
		return
	}
	platform := model.Platform(c.DefaultQuery("platform", string(model.PlatformGitHub)))

	flags := h.flags.For(ctx, platform, &installationID)

	counts, err := h.logs.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count deliveries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load delivery counts"})
		return
	}
	byStatus := make(map[string]int64, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
	}

	runs, err := h.runs.ListRecent(ctx, recentRunLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list recent runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load recent runs"})
		return
	}
	summaries := make([]dto.ReviewRunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, dto.NewReviewRunSummary(run))
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read queue stats", "error", err)
	}

	c.JSON(http.StatusOK, dto.InstallationStatusResponse{
		Platform:           string(platform),
		InstallationID:     installationID,
		Flags:              flags,
		DeliveriesByStatus: byStatus,
		RecentRuns:         summaries,
		Queue: dto.QueueStatsResponse{
			Backend: stats.Backend,
			Workers: stats.Workers,
			Pending: stats.Pending,
		},
	})
}

// Replay creates a fresh ledger entry for an existing delivery and
// re-enqueues it.
func (h *AdminHandler) Replay(c *gin.Context) {
	ctx := c.Request.Context()

	deliveryLogID, err := strconv.ParseInt(c.Param("event_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery log id"})
		return
	}

	entry, err := h.ingest.Replay(ctx, deliveryLogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "delivery log not found"})
			return
		}
		slog.ErrorContext(ctx, "replay failed", "delivery_log_id", deliveryLogID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay delivery"})
		return
	}

	c.JSON(http.StatusCreated, dto.ReplayResponse{
		DeliveryLogID:       entry.ID,
		SourceDeliveryLogID: deliveryLogID,
		IdempotencyKey:      entry.IdempotencyKey,
	})
}
