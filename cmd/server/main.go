package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"fossmate.app/fossmate/common/id"
	"fossmate.app/fossmate/common/logger"
	"fossmate.app/fossmate/common/otel"
	"fossmate.app/fossmate/core/config"
	"fossmate.app/fossmate/core/db"
	"fossmate.app/fossmate/internal/codehost"
	"fossmate.app/fossmate/internal/http/handler"
	"fossmate.app/fossmate/internal/http/handler/webhook"
	"fossmate.app/fossmate/internal/http/middleware"
	httprouter "fossmate.app/fossmate/internal/http/router"
	"fossmate.app/fossmate/internal/ingest"
	"fossmate.app/fossmate/internal/llm"
	"fossmate.app/fossmate/internal/model"
	"fossmate.app/fossmate/internal/notify"
	"fossmate.app/fossmate/internal/processor"
	"fossmate.app/fossmate/internal/queue"
	"fossmate.app/fossmate/internal/review"
	"fossmate.app/fossmate/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// slog is not configured yet at this point
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "fossmate starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	stores := store.NewStores(database)

	jobQueue, err := buildQueue(ctx, cfg.Queue)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build job queue", "error", err)
		os.Exit(1)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build generation provider", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "generation provider ready",
		"provider", provider.ProviderName(), "model", provider.ModelName())

	hosts := map[model.Platform]codehost.Client{
		model.PlatformGitHub: codehost.NewGitHubClient(cfg.GitHub),
	}
	if cfg.GitLab.Enabled() {
		gitlabClient, err := codehost.NewGitLabClient(cfg.GitLab)
		if err != nil {
			slog.ErrorContext(ctx, "failed to build gitlab client", "error", err)
			os.Exit(1)
		}
		hosts[model.PlatformGitLab] = gitlabClient
	}

	orchestrator := review.NewOrchestrator(provider, hosts)
	flags := processor.NewFeatureFlags(stores.Settings(), cfg.Features)
	notifier := notify.NewEmailNotifier(cfg.Email)

	proc := processor.New(
		stores.DeliveryLogs(), stores.ReviewRuns(), stores.Metrics(),
		flags, orchestrator, hosts, notifier, cfg.Assistant.Handle,
	)
	proc.Register(jobQueue)

	if err := jobQueue.Start(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to start job queue", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "job queue started", "backend", cfg.Queue.Backend, "workers", cfg.Queue.Workers)

	ingestService := ingest.NewService(stores.WebhookEvents(), stores.DeliveryLogs(), jobQueue)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := setupRouter(cfg, setupHandlers(cfg, database, stores, jobQueue, provider, flags, ingestService))
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "job queue shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func buildQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	if cfg.Backend == config.QueueBackendRedisStreams {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		return queue.NewRedisQueue(client, queue.RedisQueueConfig{
			Stream:  cfg.RedisStream,
			Group:   cfg.RedisGroup,
			Workers: cfg.Workers,
		}), nil
	}
	return queue.NewMemoryQueue(cfg.Workers), nil
}

func buildProvider(cfg config.Config) (llm.Provider, error) {
	primary, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	providers := []llm.Provider{primary}
	if cfg.FallbackLLM != nil {
		fallback, err := llm.New(*cfg.FallbackLLM)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fallback)
	}

	return llm.NewFallbackProvider(providers...)
}

func setupHandlers(
	cfg config.Config,
	database *db.DB,
	stores *store.Stores,
	jobQueue queue.Queue,
	provider llm.Provider,
	flags *processor.FeatureFlags,
	ingestService *ingest.Service,
) httprouter.Handlers {
	return httprouter.Handlers{
		Health:  handler.NewHealthHandler(cfg.Env, database, jobQueue, provider),
		GitHub:  webhook.NewGitHubWebhookHandler(ingestService, cfg.GitHub.WebhookSecret),
		GitLab:  webhook.NewGitLabWebhookHandler(ingestService, cfg.GitLab.WebhookSecret),
		Admin:   handler.NewAdminHandler(stores.DeliveryLogs(), stores.ReviewRuns(), flags, ingestService, jobQueue),
		Reports: handler.NewReportsHandler(stores.Metrics()),
	}
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	engine := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		engine.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	httprouter.SetupRoutes(engine, handlers, httprouter.Config{
		AdminAPIKey:   cfg.AdminAPIKey,
		GitLabEnabled: cfg.GitLab.Enabled(),
	})

	return engine
}

const banner = `
███████╗ ██████╗ ███████╗███████╗███╗   ███╗ █████╗ ████████╗███████╗
██╔════╝██╔═══██╗██╔════╝██╔════╝████╗ ████║██╔══██╗╚══██╔══╝██╔════╝
█████╗  ██║   ██║███████╗███████╗██╔████╔██║███████║   ██║   █████╗
██╔══╝  ██║   ██║╚════██║╚════██║██║╚██╔╝██║██╔══██║   ██║   ██╔══╝
██║     ╚██████╔╝███████║███████║██║ ╚═╝ ██║██║  ██║   ██║   ███████╗
╚═╝      ╚═════╝ ╚══════╝╚══════╝╚═╝     ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝
`
