// HubDesk - SmartHome Hub support chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/hubdesk/internal/api"
	"github.com/ashureev/hubdesk/internal/chat"
	"github.com/ashureev/hubdesk/internal/config"
	"github.com/ashureev/hubdesk/internal/dialogue"
	"github.com/ashureev/hubdesk/internal/grpchealth"
	"github.com/ashureev/hubdesk/internal/identity"
	"github.com/ashureev/hubdesk/internal/live"
	"github.com/ashureev/hubdesk/internal/metrics"
	"github.com/ashureev/hubdesk/internal/middleware"
	"github.com/ashureev/hubdesk/internal/retention"
	"github.com/ashureev/hubdesk/internal/session"
	"github.com/ashureev/hubdesk/internal/store"
	"github.com/ashureev/hubdesk/internal/transcript"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Dialogue catalog; an invalid definition aborts startup.
	def, err := dialogue.LoadDefinition(cfg.CatalogPath)
	if err != nil {
		slog.Error("Failed to load troubleshooting catalog", "error", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}
	engine := dialogue.NewEngine(def)
	slog.Info("Troubleshooting catalog loaded", "steps", engine.Catalog().Len(), "rules", len(def.Rules))

	// Initialize dependencies.
	repo, err := store.NewSQLiteWithRetry(cfg.DBPath, cfg.Retry)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	transcriptLogger, err := transcript.New(transcript.Config{
		Enabled:         cfg.Transcript.Enabled,
		Dir:             cfg.Transcript.Dir,
		GlobalEnabled:   cfg.Transcript.GlobalEnabled,
		GlobalPath:      cfg.Transcript.GlobalPath,
		QueueSize:       cfg.Transcript.QueueSize,
		GlobalMaxSizeMB: cfg.Transcript.GlobalMaxSizeMB,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcriptLogger.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Initialize services.
	recorder := metrics.NewPrometheusRecorder()
	hub := live.NewHub()
	chats := chat.NewService(repo, session.New(engine),
		chat.WithPublisher(hub),
		chat.WithTranscript(transcriptLogger),
		chat.WithMetrics(recorder),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()
	limitByOwner := middleware.RateLimit(limiter, func(r *http.Request) string {
		return identity.UserIDFromContext(r.Context())
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, chats)
	healthHandler := api.NewHealthHandler(repo)
	chatHandler := api.NewChatHandler(baseHandler, limitByOwner)
	wsHandler := live.NewWebSocketHandler(hub, chats, originHosts(cfg.AllowedOrigins(), cfg.IsDevelopment()))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", recorder.Handler())

	// Owner routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chats/{id}", wsHandler.ServeHTTP)
	})

	// Live views hold their connection open, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start retention worker.
	retention.StartWorker(ctx, repo, cfg.Retention.TTL, cfg.Retention.Interval, hub.Drop)

	// Start gRPC health server (optional).
	if cfg.GRPCHealthPort != "" {
		healthSrv := grpchealth.New(repo, 10*time.Second)
		go func() {
			if err := healthSrv.ListenAndServe(ctx, ":"+cfg.GRPCHealthPort); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// originHosts converts CORS origins into host patterns for the WebSocket
// origin check. Development accepts any origin.
func originHosts(origins []string, isDev bool) []string {
	if isDev {
		return []string{"*"}
	}
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring unparseable origin for WebSocket check", "origin", o)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
