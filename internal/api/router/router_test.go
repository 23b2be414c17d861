package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/internal/callflow"
	"github.com/clearflow/voice-receptionist/internal/conversation"
	"github.com/clearflow/voice-receptionist/internal/http/handlers"
)

type cannedLLM struct{}

func (cannedLLM) Complete(_ context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	// The extraction prompt asks for JSON; dialogue turns get a short line.
	if strings.Contains(req.Messages[len(req.Messages)-1].Content, "Return as JSON") {
		return conversation.LLMResponse{Text: `{"name":"Sam","phone":"Not provided","address":"12 Elm Road","issue":"blocked drain","appointment_time":"tomorrow 9am","is_emergency":"no"}`}, nil
	}
	return conversation.LLMResponse{Text: "Noted. Anything else?"}, nil
}

func newTestServer(t *testing.T) (http.Handler, *call.Store) {
	t.Helper()
	store := call.NewStore()
	engine := conversation.NewEngine(cannedLLM{}, "gpt-4", nil)
	extractor := conversation.NewBookingExtractor(cannedLLM{}, "gpt-4", nil)
	classifier := conversation.NewEmergencyDetector(nil)
	ctrl := callflow.NewController(store, classifier, engine, extractor, nil, 6, nil)

	voiceHandler := handlers.NewVoiceHandler(ctrl, handlers.VoiceHandlerConfig{})
	dashHandler := handlers.NewDashboardHandler(store, nil)

	return New(&Config{
		VoiceHandler:     voiceHandler,
		DashboardHandler: dashHandler,
		MetricsHandler:   promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	}), store
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFullCallThroughRouter(t *testing.T) {
	h, store := newTestServer(t)

	rec := postForm(t, h, "/voice", url.Values{"CallSid": {"CA1"}, "From": {"+441234567890"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "How can I help you today?")

	utterances := []string{
		"Hi, I have a blocked drain",
		"My name is Sam, 12 Elm Road",
		"Tomorrow at 9am",
	}
	var last *httptest.ResponseRecorder
	for _, u := range utterances {
		last = postForm(t, h, "/process_speech", url.Values{
			"CallSid":      {"CA1"},
			"From":         {"+441234567890"},
			"SpeechResult": {u},
		})
		require.Equal(t, http.StatusOK, last.Code)
	}
	assert.Contains(t, last.Body.String(), "<Hangup")

	rec = postForm(t, h, "/call_status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	apiRec := httptest.NewRecorder()
	h.ServeHTTP(apiRec, req)
	require.Equal(t, http.StatusOK, apiRec.Code)

	var records []call.DashboardRecord
	require.NoError(t, json.Unmarshal(apiRec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Sam", records[0].ClientName)
	assert.Equal(t, call.OutcomeBooked, records[0].Status)

	sess, ok := store.Get("CA1")
	require.True(t, ok)
	assert.Equal(t, call.StateEnded, sess.State())
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
