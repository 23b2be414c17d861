package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

// DashboardHandler serves the read-side of the service: the call list the
// dashboard polls, and the health check.
type DashboardHandler struct {
	store  *call.Store
	logger *logging.Logger
}

func NewDashboardHandler(store *call.Store, logger *logging.Logger) *DashboardHandler {
	if store == nil {
		panic("handlers: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{store: store, logger: logger}
}

// ListCalls handles GET /api/calls. The projection is computed on read, so
// in-flight calls show their live transcript.
func (h *DashboardHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.List()
	records := make([]call.DashboardRecord, 0, len(sessions))
	for _, sess := range sessions {
		records = append(records, sess.Dashboard())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.logger.Error("failed to encode call list", "error", err)
	}
}

// HealthCheck returns a simple health check response.
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
