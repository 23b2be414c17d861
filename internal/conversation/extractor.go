package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

var extractorTracer = otel.Tracer("receptionist.internal.conversation.extractor")

const extractionPrompt = `Extract the following information from this phone conversation:
- Customer name
- Phone number (if mentioned)
- Address
- Issue/problem description
- Preferred appointment time
- Is this an emergency? (yes/no)

Conversation:
%s

Return as JSON with keys: name, phone, address, issue, appointment_time, is_emergency
If information is missing, use "Not provided" as the value.`

const extractionMaxTokens = 200

// BookingExtractor turns a finished call transcript into a BookingRecord
// with a single structured-output model call.
type BookingExtractor struct {
	client LLMClient
	model  string
	logger *logging.Logger
}

// NewBookingExtractor returns an extractor backed by the given model client.
func NewBookingExtractor(client LLMClient, model string, logger *logging.Logger) *BookingExtractor {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if model == "" {
		model = "gpt-4"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingExtractor{client: client, model: model, logger: logger}
}

// Extract runs the extraction prompt over the labelled transcript. It never
// fails: when the model is unavailable or its output is not parseable, the
// result degrades to the sentinel record with every field "Not provided"
// and emergency "no", logged at warn level.
func (x *BookingExtractor) Extract(ctx context.Context, transcript string) call.BookingRecord {
	ctx, span := extractorTracer.Start(ctx, "conversation.extract_booking")
	defer span.End()

	start := time.Now()
	resp, err := x.client.Complete(ctx, LLMRequest{
		Model: x.model,
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: fmt.Sprintf(extractionPrompt, transcript)},
		},
		MaxTokens: extractionMaxTokens,
	})
	observeLLMCall("extraction", time.Since(start).Seconds(), resp.Usage, err)
	if err != nil {
		span.RecordError(err)
		x.logger.Warn("booking extraction failed, using fallback record", "error", err)
		extractionFallbackTotal.Inc()
		return call.FallbackBookingRecord()
	}

	record, err := parseBookingJSON(resp.Text)
	if err != nil {
		span.RecordError(err)
		x.logger.Warn("booking extraction unparseable, using fallback record",
			"error", err,
			"raw_len", len(resp.Text),
		)
		extractionFallbackTotal.Inc()
		return call.FallbackBookingRecord()
	}

	span.SetAttributes(attribute.String("receptionist.extracted_emergency", record.IsEmergency))
	return record
}

// parseBookingJSON decodes the model output, tolerating markdown code
// fences and prose around the JSON object.
func parseBookingJSON(raw string) (call.BookingRecord, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	jsonText := raw
	if !strings.HasPrefix(jsonText, "{") {
		start := strings.Index(jsonText, "{")
		end := strings.LastIndex(jsonText, "}")
		if start >= 0 && end > start {
			jsonText = jsonText[start : end+1]
		}
	}

	var record call.BookingRecord
	if err := json.Unmarshal([]byte(jsonText), &record); err != nil {
		return call.BookingRecord{}, fmt.Errorf("decode booking json: %w", err)
	}
	return normalizeBooking(record), nil
}

func normalizeBooking(record call.BookingRecord) call.BookingRecord {
	fill := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return call.SentinelNotProvided
		}
		return strings.TrimSpace(v)
	}
	record.Name = fill(record.Name)
	record.Phone = fill(record.Phone)
	record.Address = fill(record.Address)
	record.Issue = fill(record.Issue)
	record.AppointmentTime = fill(record.AppointmentTime)

	record.IsEmergency = strings.ToLower(strings.TrimSpace(record.IsEmergency))
	if record.IsEmergency != "yes" {
		record.IsEmergency = "no"
	}
	return record
}
