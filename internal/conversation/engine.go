package conversation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clearflow/voice-receptionist/pkg/logging"
)

var engineTracer = otel.Tracer("receptionist.internal.conversation.engine")

// receptionistPrompt is the fixed persona for the dialogue engine. The
// "short replies" instruction is advisory only; response length is not
// enforced mechanically.
const receptionistPrompt = `You are a professional receptionist for a plumbing business.
Your job is to:
1. Greet callers warmly
2. Ask about their plumbing issue
3. Collect their name, phone number (if different from caller ID), and address
4. Ask about their preferred appointment time
5. Confirm the booking
6. Be empathetic if it's an emergency

Keep responses SHORT (1-2 sentences max) since this is a phone call.
Always be professional, helpful, and efficient.

If they mention emergency keywords like 'burst pipe', 'flooding', 'leak', prioritize them immediately.`

const (
	replyMaxTokens   = 100
	replyTemperature = 0.7
)

// Engine produces the receptionist's next spoken reply from the call's turn
// history and the caller's latest utterance.
type Engine struct {
	client LLMClient
	model  string
	logger *logging.Logger
}

// NewEngine returns a dialogue engine backed by the given model client.
func NewEngine(client LLMClient, model string, logger *logging.Logger) *Engine {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if model == "" {
		model = "gpt-4"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{client: client, model: model, logger: logger}
}

// NextReply sends the persona prompt, every prior turn in order, and the new
// utterance to the model and returns its reply. history must not already
// contain the new utterance. Failures surface as ErrModelUnavailable from
// the client; the engine never silently returns empty text.
func (e *Engine) NextReply(ctx context.Context, history []ChatMessage, utterance string) (string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.next_reply")
	defer span.End()
	span.SetAttributes(
		attribute.Int("receptionist.history_len", len(history)),
	)

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: receptionistPrompt})
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: utterance})

	start := time.Now()
	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.model,
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	observeLLMCall("dialogue", time.Since(start).Seconds(), resp.Usage, err)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		e.logger.Warn("model returned empty reply", "model", e.model)
		return "", ErrModelUnavailable
	}
	return reply, nil
}
