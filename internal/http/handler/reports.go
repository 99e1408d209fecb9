package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/store"
)

const defaultReportWindowDays = 30

type ReportsHandler struct {
	metrics store.MetricStore
}

func NewReportsHandler(metrics store.MetricStore) *ReportsHandler {
	return &ReportsHandler{metrics: metrics}
}

const maxReportWindowDays = 365

// DeveloperEvaluation aggregates per-developer review metrics over a
// time window, filtered by installation and login. Scores are advisory;
// the report never gates anything.
func (h *ReportsHandler) DeveloperEvaluation(c *gin.Context) {
	ctx := c.Request.Context()

	days := defaultReportWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxReportWindowDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days parameter"})
			return
		}
		days = parsed
	}

	filter := model.ReportFilter{
		Since:          time.Now().UTC().AddDate(0, 0, -days),
		DeveloperLogin: c.Query("developer_login"),
	}
	if raw := c.Query("installation_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation id"})
			return
		}
		filter.InstallationID = &parsed
	}

	results, err := h.metrics.Report(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build developer report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}

	c.JSON(http.StatusOK, dto.DeveloperReportResponse{
		Days:           days,
		InstallationID: filter.InstallationID,
		DeveloperLogin: filter.DeveloperLogin,
		Since:          filter.Since.Format(time.RFC3339),
		Results:        results,
	})
}
