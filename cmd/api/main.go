package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearflow/voice-receptionist/internal/api/router"
	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/internal/callflow"
	appconfig "github.com/clearflow/voice-receptionist/internal/config"
	"github.com/clearflow/voice-receptionist/internal/conversation"
	"github.com/clearflow/voice-receptionist/internal/http/handlers"
	"github.com/clearflow/voice-receptionist/internal/messaging"
	"github.com/clearflow/voice-receptionist/internal/observability/metrics"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

func main() {
	// Load .env when present; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voice-receptionist API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	// Core services
	store := call.NewStore()
	llmClient := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ModelTimeout, logger)
	engine := conversation.NewEngine(llmClient, cfg.OpenAIModel, logger)
	extractor := conversation.NewBookingExtractor(llmClient, cfg.OpenAIModel, logger)
	classifier := conversation.NewEmergencyDetector(cfg.EmergencyPhrases)

	var sender messaging.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sender = messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		logger.Warn("twilio credentials not set, confirmation SMS disabled")
	}

	ctrl := callflow.NewController(store, classifier, engine, extractor, sender, cfg.MaxTurns, logger)

	// Handlers
	webhookMetrics := metrics.NewWebhookMetrics(nil)
	voiceHandler := handlers.NewVoiceHandler(ctrl, handlers.VoiceHandlerConfig{
		SignatureKey:  cfg.TwilioWebhookSecret,
		PublicBaseURL: cfg.PublicBaseURL,
		Voice:         cfg.TTSVoice,
		Language:      cfg.TTSLanguage,
		Metrics:       webhookMetrics,
		Logger:        logger,
	})
	dashboardHandler := handlers.NewDashboardHandler(store, logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:           logger,
		VoiceHandler:     voiceHandler,
		DashboardHandler: dashboardHandler,
		MetricsHandler:   promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
