// Package callflow drives a call session through its lifecycle: it applies
// caller utterances to the session, asks the dialogue engine for replies,
// and wraps the call up once enough turns have accumulated.
package callflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/internal/conversation"
	"github.com/clearflow/voice-receptionist/internal/messaging"
	"github.com/clearflow/voice-receptionist/pkg/logging"
)

var controllerTracer = otel.Tracer("receptionist.internal.callflow.controller")

// Spoken lines that do not come from the model.
const (
	GreetingText = "Hello! Thank you for calling. How can I help you today?"
	NoInputText  = "I didn't hear anything. Please give us a call back."

	closingText = "Perfect! I've got all your details. We'll see you at your appointment. " +
		"You'll receive a confirmation SMS shortly. Thank you for calling!"
	apologyText = "Sorry, we're having trouble on our end right now. Please give us a call back in a few minutes."
)

// Telephony statuses that mean the call is over on Twilio's side.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

type dialogueEngine interface {
	NextReply(ctx context.Context, history []conversation.ChatMessage, utterance string) (string, error)
}

type bookingExtractor interface {
	Extract(ctx context.Context, transcript string) call.BookingRecord
}

type emergencyClassifier interface {
	IsEmergency(text string) bool
}

// TurnResult is what one processed utterance produces: the line to speak
// back, and whether the call should hang up after it.
type TurnResult struct {
	Reply   string
	EndCall bool
}

// Controller coordinates the session store, the emergency classifier, the
// dialogue engine, the booking extractor and the SMS sender for every call.
type Controller struct {
	store      *call.Store
	classifier emergencyClassifier
	engine     dialogueEngine
	extractor  bookingExtractor
	sender     messaging.SMSSender
	maxTurns   int
	logger     *logging.Logger
}

// NewController wires up a controller. The sender may be nil when outbound
// SMS is not configured; everything else is required.
func NewController(
	store *call.Store,
	classifier emergencyClassifier,
	engine dialogueEngine,
	extractor bookingExtractor,
	sender messaging.SMSSender,
	maxTurns int,
	logger *logging.Logger,
) *Controller {
	if store == nil {
		panic("callflow: store cannot be nil")
	}
	if classifier == nil {
		panic("callflow: emergency classifier cannot be nil")
	}
	if engine == nil {
		panic("callflow: dialogue engine cannot be nil")
	}
	if extractor == nil {
		panic("callflow: booking extractor cannot be nil")
	}
	if maxTurns <= 0 {
		maxTurns = 6
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		store:      store,
		classifier: classifier,
		engine:     engine,
		extractor:  extractor,
		sender:     sender,
		maxTurns:   maxTurns,
		logger:     logger,
	}
}

// StartCall gets or creates the session for an inbound call and returns the
// greeting line. The greeting is not recorded as a turn, so the threshold
// counts only the caller/assistant exchanges that follow.
func (c *Controller) StartCall(ctx context.Context, callSID, from string) string {
	_, span := controllerTracer.Start(ctx, "callflow.start_call")
	defer span.End()
	span.SetAttributes(attribute.String("receptionist.call_sid", callSID))

	_, created := c.store.GetOrCreate(callSID, from)
	if created {
		callsStartedTotal.Inc()
		c.logger.Info("call started", "call_sid", callSID, "from", from)
	}
	return GreetingText
}

// HandleUtterance runs one dialogue turn: classify, record the caller turn,
// generate and record the assistant reply, and wrap the call up once the
// turn count reaches the threshold. It never returns an error to the
// webhook; failures degrade to an apology line and a hangup.
func (c *Controller) HandleUtterance(ctx context.Context, callSID, from, utterance string) TurnResult {
	ctx, span := controllerTracer.Start(ctx, "callflow.handle_utterance")
	defer span.End()
	span.SetAttributes(attribute.String("receptionist.call_sid", callSID))

	sess, _ := c.store.GetOrCreate(callSID, from)

	if utterance == "" {
		c.logger.Info("no speech captured", "call_sid", callSID)
		return TurnResult{Reply: NoInputText, EndCall: true}
	}

	// One turn at a time per call: a duplicate delivery of the same webhook
	// waits here instead of interleaving its appends with the turn in
	// flight, then sees the updated state below.
	sess.LockTurn()
	defer sess.UnlockTurn()

	// A re-delivered webhook after the call already wrapped up repeats the
	// terminal line without re-running extraction or side effects.
	if sess.State() != call.StateActive {
		c.logger.Warn("utterance for non-active call ignored",
			"call_sid", callSID,
			"state", string(sess.State()),
		)
		reply := closingText
		if sess.Outcome() == call.OutcomeFailed {
			reply = apologyText
		}
		return TurnResult{Reply: reply, EndCall: true}
	}

	if c.classifier.IsEmergency(utterance) {
		sess.MarkEmergency()
		emergencyFlaggedTotal.Inc()
		c.logger.Info("emergency keywords detected", "call_sid", callSID)
	}

	history := chatHistory(sess.Turns())
	sess.AppendTurn(call.RoleCaller, utterance)

	reply, err := c.engine.NextReply(ctx, history, utterance)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("dialogue turn failed", "call_sid", callSID, "error", err)
		sess.Fail()
		callsEndedTotal.WithLabelValues(call.OutcomeFailed).Inc()
		return TurnResult{Reply: apologyText, EndCall: true}
	}

	total := sess.AppendTurn(call.RoleAssistant, reply)
	if total < c.maxTurns {
		return TurnResult{Reply: reply, EndCall: false}
	}

	if sess.BeginCompletion() {
		c.finalize(ctx, sess)
	}
	return TurnResult{Reply: closingText, EndCall: true}
}

// finalize runs once per call: extract the booking, settle the outcome and
// fire the confirmation SMS. Callers must have won the BeginCompletion race.
func (c *Controller) finalize(ctx context.Context, sess *call.Session) {
	ctx, span := controllerTracer.Start(ctx, "callflow.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("receptionist.call_sid", sess.CallSID))

	booking := c.extractor.Extract(ctx, sess.TranscriptText())

	outcome := call.OutcomeBooked
	if sess.Emergency() {
		outcome = call.OutcomeUrgent
	}
	sess.Finish(outcome, booking)
	callsEndedTotal.WithLabelValues(outcome).Inc()

	c.logger.Info("call completed",
		"call_sid", sess.CallSID,
		"outcome", outcome,
		"appointment_time", booking.AppointmentTime,
	)

	c.sendConfirmation(ctx, sess, booking)
}

// sendConfirmation texts the booking summary. An extracted phone number wins
// over the caller id when it normalizes to a dialable E.164 number;
// delivery failures are logged and never surface to the caller.
func (c *Controller) sendConfirmation(ctx context.Context, sess *call.Session, booking call.BookingRecord) {
	if c.sender == nil {
		c.logger.Debug("sms sender not configured, skipping confirmation", "call_sid", sess.CallSID)
		return
	}

	// The extracted phone is model output ("07700 900123", the sentinel,
	// prose); NormalizeE164 reduces it to digits or rejects it outright.
	to := messaging.NormalizeE164(booking.Phone)
	if to == "" {
		to = sess.From
	}
	if to == "" {
		confirmationSMSTotal.WithLabelValues("skipped").Inc()
		c.logger.Warn("no recipient for confirmation sms", "call_sid", sess.CallSID)
		return
	}

	msg := messaging.OutboundSMS{
		To:   to,
		Body: messaging.ConfirmationSMSBody(booking.AppointmentTime, booking.Issue),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		confirmationSMSTotal.WithLabelValues("error").Inc()
		c.logger.Error("confirmation sms failed", "call_sid", sess.CallSID, "error", err)
		return
	}
	confirmationSMSTotal.WithLabelValues("sent").Inc()
}

// HandleCallStatus applies an asynchronous telephony status callback.
// Unknown call ids are ignored; non-terminal statuses are logged only.
func (c *Controller) HandleCallStatus(callSID, status string) {
	sess, ok := c.store.Get(callSID)
	if !ok {
		c.logger.Debug("status callback for unknown call", "call_sid", callSID, "status", status)
		return
	}
	if !terminalCallStatuses[status] {
		c.logger.Debug("non-terminal status callback", "call_sid", callSID, "status", status)
		return
	}
	sess.RecordCallStatus(status, time.Now().UTC())
	c.logger.Info("call status recorded", "call_sid", callSID, "status", status)
}

// chatHistory converts recorded turns into the model's message roles.
func chatHistory(turns []call.Turn) []conversation.ChatMessage {
	out := make([]conversation.ChatMessage, 0, len(turns))
	for _, t := range turns {
		role := conversation.ChatRoleUser
		if t.Role == call.RoleAssistant {
			role = conversation.ChatRoleAssistant
		}
		out = append(out, conversation.ChatMessage{Role: role, Content: t.Text})
	}
	return out
}
