package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/normalizer"
)

type GitLabWebhookHandler struct {
	ingest *ingest.Service
	secret string
}

func NewGitLabWebhookHandler(ingestService *ingest.Service, webhookSecret string) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{ingest: ingestService, secret: webhookSecret}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.GetHeader("X-Gitlab-Token")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		slog.WarnContext(ctx, "gitlab webhook token verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	eventType := c.GetHeader("X-Gitlab-Event")
	if eventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing event header"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// GitLab has no per-delivery id header; the event UUID or a content
	// digest inside the payload has to serve instead.
	deliveryID := c.GetHeader("X-Gitlab-Event-UUID")
	if deliveryID == "" {
		deliveryID = fallbackDeliveryID(payload)
	}

	event := normalizer.NormalizeGitLab(eventType, deliveryID, payload)

	entry, duplicate, err := h.ingest.Ingest(ctx, event, body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to ingest gitlab delivery", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest delivery"})
		return
	}

	c.JSON(http.StatusAccepted, dto.WebhookAcceptedResponse{
		Status:        "accepted",
		DeliveryLogID: entry.ID,
		Duplicate:     duplicate,
	})
}

func fallbackDeliveryID(payload map[string]any) string {
	kind, _ := payload["object_kind"].(string)
	attrs, _ := payload["object_attributes"].(map[string]any)
	if attrs != nil {
		if id, ok := attrs["id"].(float64); ok {
			updated, _ := attrs["updated_at"].(string)
			return fmt.Sprintf("%s-%d-%s", kind, int64(id), updated)
		}
	}
	return kind
}
