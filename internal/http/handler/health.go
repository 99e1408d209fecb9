package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/llm"
	"fossmate.app/fossmate/internal/queue"
)

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	env      string
	db       Pinger
	queue    queue.Queue
	provider llm.Provider
}

func NewHealthHandler(env string, db Pinger, q queue.Queue, provider llm.Provider) *HealthHandler {
	return &HealthHandler{env: env, db: db, queue: q, provider: provider}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	dbState := "ok"
	if err := h.db.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "database ping failed", "error", err)
		dbState = "unreachable"
		status = http.StatusServiceUnavailable
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read queue stats", "error", err)
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, dto.HealthResponse{
		Status:   overall,
		Env:      h.env,
		Provider: h.provider.ProviderName(),
		Database: dbState,
		Queue: dto.QueueStatsResponse{
			Backend: stats.Backend,
			Workers: stats.Workers,
			Pending: stats.Pending,
		},
	})
}
