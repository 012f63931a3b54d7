// Adashi - conversational backend for rotating-savings groups
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/adashihq/adashi-bot/internal/api"
	"github.com/adashihq/adashi-bot/internal/config"
	"github.com/adashihq/adashi-bot/internal/convlog"
	"github.com/adashihq/adashi-bot/internal/engine"
	"github.com/adashihq/adashi-bot/internal/events"
	"github.com/adashihq/adashi-bot/internal/gateway"
	"github.com/adashihq/adashi-bot/internal/llm"
	"github.com/adashihq/adashi-bot/internal/session"
	"github.com/adashihq/adashi-bot/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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

	auditLog, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := auditLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation log", "error", closeErr)
		}
	}()

	sessions := session.NewStore(2 * cfg.HistoryLimit)
	sender := gateway.NewClient(cfg.WhatsApp.APIBase, cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID)
	completions := llm.NewClient(cfg.LLM.APIBase, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	replier := llm.NewAssembler(completions, cfg.HistoryLimit)
	hub := events.NewHub()

	eng := engine.New(engine.Deps{
		Repo:         repo,
		Sessions:     sessions,
		Sender:       sender,
		Replier:      replier,
		Events:       hub,
		Audit:        auditLog,
		ConfirmTTL:   cfg.ConfirmTTL,
		HistoryLimit: cfg.HistoryLimit,
	})

	// Initialize handlers.
	webhookHandler := api.NewHandler(eng, cfg.VerifyToken)
	eventsHandler := api.NewEventsHandler(hub)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	webhookHandler.RegisterRoutes(r)
	r.Get("/ws/events", eventsHandler.ServeHTTP)

	// Create server. WriteTimeout leaves headroom for slow completion
	// calls bounded by the LLM timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartEviction(ctx, cfg.SessionTTL)

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
