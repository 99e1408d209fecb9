package router

import (
	"github.com/gin-gonic/gin"

	"fossmate.app/fossmate/internal/http/handler"
	"fossmate.app/fossmate/internal/http/handler/webhook"
	"fossmate.app/fossmate/internal/http/middleware"
)

type Config struct {
	AdminAPIKey   string
	GitLabEnabled bool
}

type Handlers struct {
	Health  *handler.HealthHandler
	GitHub  *webhook.GitHubWebhookHandler
	GitLab  *webhook.GitLabWebhookHandler
	Admin   *handler.AdminHandler
	Reports *handler.ReportsHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg Config) {
	router.GET("/health", h.Health.Health)

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/github", h.GitHub.HandleEvent)
		if cfg.GitLabEnabled {
			webhooks.POST("/gitlab", h.GitLab.HandleEvent)
		}
	}

	admin := router.Group("/admin", middleware.RequireAdminKey(cfg.AdminAPIKey))
	{
		admin.GET("/installations/:id/status", h.Admin.InstallationStatus)
		admin.POST("/installations/:id/replay/:event_id", h.Admin.Replay)
	}

	reports := router.Group("/reports", middleware.RequireAdminKey(cfg.AdminAPIKey))
	{
		reports.GET("/developer-evaluation", h.Reports.DeveloperEvaluation)
	}
}
