// Package webhook receives platform deliveries. Transport concerns end
// here: signature verification, header extraction and JSON parsing. The
// ingest service owns everything after that.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/normalizer"
)

type GitHubWebhookHandler struct {
	ingest *ingest.Service
	secret string
}

func NewGitHubWebhookHandler(ingestService *ingest.Service, webhookSecret string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{ingest: ingestService, secret: webhookSecret}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !verifySignature(h.secret, c.GetHeader("X-Hub-Signature-256"), body) {
		slog.WarnContext(ctx, "github webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	deliveryID := c.GetHeader("X-GitHub-Delivery")
	if eventType == "" || deliveryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing event headers"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event := normalizer.NormalizeGitHub(eventType, deliveryID, payload)

	entry, duplicate, err := h.ingest.Ingest(ctx, event, body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to ingest github delivery", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest delivery"})
		return
	}

	c.JSON(http.StatusAccepted, dto.WebhookAcceptedResponse{
		Status:        "accepted",
		DeliveryLogID: entry.ID,
		Duplicate:     duplicate,
	})
}

// verifySignature checks the sha256 HMAC GitHub attaches to every
// delivery. Comparison is constant time via hmac.Equal.
func verifySignature(secret, header string, body []byte) bool {
	if secret == "" || !strings.HasPrefix(header, "sha256=") {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
