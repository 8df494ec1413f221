// ZapAgent - WhatsApp AI attendant backend
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

	"github.com/atendai/zapagent/internal/ai"
	"github.com/atendai/zapagent/internal/api"
	"github.com/atendai/zapagent/internal/business"
	"github.com/atendai/zapagent/internal/config"
	"github.com/atendai/zapagent/internal/middleware"
	"github.com/atendai/zapagent/internal/realtime"
	"github.com/atendai/zapagent/internal/session"
	"github.com/atendai/zapagent/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"business_configured", cfg.BusinessConfigured(), "ai_configured", cfg.AIConfigured())

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

	// QR-path protocol clients keep their credentials in a separate
	// whatsmeow-managed store.
	factory, err := session.NewWhatsmeowFactory(context.Background(), cfg.DeviceDBPath)
	if err != nil {
		slog.Error("Failed to initialize device store", "error", err)
		os.Exit(1)
	}
	sessions := session.NewManager(factory)

	// Business API path: reply generator, dispatcher, webhook relay.
	generator := ai.New(cfg.Gemini.APIKey, cfg.Gemini.APIURL, cfg.AITimeout)
	if !generator.Configured() {
		slog.Info("AI replies degraded to fallback (GEMINI_API_KEY not set)")
	}

	dispatcher := business.NewClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.SendTimeout)
	if !dispatcher.Configured() {
		slog.Info("Business API features not configured (WHATSAPP_ACCESS_TOKEN / WHATSAPP_PHONE_NUMBER_ID not set)")
	}

	prompts := business.NewStorePrompts(repo, cfg.WhatsApp.OwnerUserID)
	relay := business.NewRelay(cfg.WhatsApp.VerifyToken, generator, dispatcher, prompts)

	// Initialize handlers.
	apiHandler := api.NewHandler(relay, dispatcher, repo)
	wsHandler := realtime.NewHandler(sessions, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	relay.Wait()
	slog.Info("Server stopped successfully")
}
