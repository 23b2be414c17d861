package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/clearflow/voice-receptionist/internal/callflow"
	"github.com/clearflow/voice-receptionist/internal/messaging"
	"github.com/clearflow/voice-receptionist/internal/observability/metrics"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

// callController is the slice of the lifecycle controller the webhook
// handlers need.
type callController interface {
	StartCall(ctx context.Context, callSID, from string) string
	HandleUtterance(ctx context.Context, callSID, from, utterance string) callflow.TurnResult
	HandleCallStatus(callSID, status string)
}

// VoiceHandlerConfig carries the webhook surface's tunables.
type VoiceHandlerConfig struct {
	// SignatureKey is the Twilio auth token used to check X-Twilio-Signature.
	// Empty disables validation (local development, tests).
	SignatureKey string

	// PublicBaseURL is the externally visible base URL Twilio signed against.
	// When empty the URL is reconstructed from forwarding headers.
	PublicBaseURL string

	Voice    string
	Language string

	Metrics *metrics.WebhookMetrics
	Logger  *logging.Logger
}

// VoiceHandler serves the Twilio voice webhook endpoints.
type VoiceHandler struct {
	ctrl callController
	cfg  VoiceHandlerConfig
}

// NewVoiceHandler builds the webhook handler set.
func NewVoiceHandler(ctrl callController, cfg VoiceHandlerConfig) *VoiceHandler {
	if ctrl == nil {
		panic("handlers: call controller cannot be nil")
	}
	if cfg.Voice == "" {
		cfg.Voice = "Polly.Amy"
	}
	if cfg.Language == "" {
		cfg.Language = "en-GB"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceHandler{ctrl: ctrl, cfg: cfg}
}

// Voice handles POST /voice: the inbound-call webhook. It answers with a
// speech Gather wrapping the greeting, plus a no-input fallback line.
func (h *VoiceHandler) Voice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.cfg.Metrics.ObserveLatency("voice", time.Since(start).Seconds()) }()

	req, ok := h.authenticate(w, r, "voice", "/voice")
	if !ok {
		return
	}
	if req.CallSid == "" {
		h.cfg.Metrics.ObserveInbound("voice", "bad_request")
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	greeting := h.ctrl.StartCall(r.Context(), req.CallSid, req.From)

	writeTwiML(w, &twimlResponse{
		Gather: h.gatherWith(greeting),
		Say:    h.say(callflow.NoInputText),
	})
	h.cfg.Metrics.ObserveInbound("voice", "ok")
}

// ProcessSpeech handles POST /process_speech: one dialogue turn. Mid-call it
// gathers again around the assistant reply; on a terminal turn it speaks the
// closing line and hangs up.
func (h *VoiceHandler) ProcessSpeech(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.cfg.Metrics.ObserveLatency("process_speech", time.Since(start).Seconds()) }()

	req, ok := h.authenticate(w, r, "process_speech", "/process_speech")
	if !ok {
		return
	}
	if req.CallSid == "" {
		h.cfg.Metrics.ObserveInbound("process_speech", "bad_request")
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	res := h.ctrl.HandleUtterance(r.Context(), req.CallSid, req.From, req.SpeechResult)

	if res.EndCall {
		writeTwiML(w, &twimlResponse{
			Say:    h.say(res.Reply),
			Hangup: &twimlHangup{},
		})
	} else {
		writeTwiML(w, &twimlResponse{
			Gather: h.gatherWith(res.Reply),
		})
	}
	h.cfg.Metrics.ObserveInbound("process_speech", "ok")
}

// CallStatus handles POST /call_status: Twilio's asynchronous status
// callback. Always acknowledges, even for unknown calls.
func (h *VoiceHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.authenticate(w, r, "call_status", "/call_status")
	if !ok {
		return
	}

	h.ctrl.HandleCallStatus(req.CallSid, req.CallStatus)
	h.cfg.Metrics.ObserveInbound("call_status", "ok")

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// authenticate parses the webhook form and, when a signature key is
// configured, rejects requests that fail Twilio signature validation.
func (h *VoiceHandler) authenticate(w http.ResponseWriter, r *http.Request, endpoint, path string) (*messaging.VoiceWebhookRequest, bool) {
	if h.cfg.SignatureKey != "" {
		webhookURL := h.cfg.PublicBaseURL + path
		if h.cfg.PublicBaseURL == "" {
			webhookURL = messaging.BuildAbsoluteURL(r)
		}
		if !messaging.ValidateTwilioSignature(r, h.cfg.SignatureKey, webhookURL) {
			h.cfg.Metrics.ObserveInbound(endpoint, "forbidden")
			h.cfg.Logger.Warn("webhook signature validation failed", "endpoint", endpoint)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return nil, false
		}
	}

	req, err := messaging.ParseVoiceWebhook(r)
	if err != nil {
		h.cfg.Metrics.ObserveInbound(endpoint, "bad_request")
		http.Error(w, "bad form", http.StatusBadRequest)
		return nil, false
	}
	return req, true
}

func (h *VoiceHandler) say(text string) *twimlSay {
	return &twimlSay{Voice: h.cfg.Voice, Language: h.cfg.Language, Text: text}
}

func (h *VoiceHandler) gatherWith(text string) *twimlGather {
	return &twimlGather{
		Input:         "speech",
		Action:        "/process_speech",
		Method:        http.MethodPost,
		SpeechTimeout: "auto",
		Language:      h.cfg.Language,
		Say:           h.say(text),
	}
}
