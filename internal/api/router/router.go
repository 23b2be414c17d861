package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearflow/voice-receptionist/internal/http/handlers"
	httpmiddleware "github.com/clearflow/voice-receptionist/internal/http/middleware"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	VoiceHandler     *handlers.VoiceHandler
	DashboardHandler *handlers.DashboardHandler
	MetricsHandler   http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Twilio webhooks
	r.Post("/voice", cfg.VoiceHandler.Voice)
	r.Post("/process_speech", cfg.VoiceHandler.ProcessSpeech)
	r.Post("/call_status", cfg.VoiceHandler.CallStatus)

	// Dashboard read side
	r.Get("/api/calls", cfg.DashboardHandler.ListCalls)
	r.Get("/health", cfg.DashboardHandler.HealthCheck)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
