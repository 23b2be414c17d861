package callflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearflow/voice-receptionist/internal/call"
	"github.com/clearflow/voice-receptionist/internal/conversation"
	"github.com/clearflow/voice-receptionist/internal/messaging"
)

type scriptedEngine struct {
	replies     []string
	err         error
	calls       int
	lastHistory []conversation.ChatMessage
}

func (e *scriptedEngine) NextReply(_ context.Context, history []conversation.ChatMessage, _ string) (string, error) {
	e.lastHistory = history
	if e.err != nil {
		return "", e.err
	}
	reply := "How can I help?"
	if e.calls < len(e.replies) {
		reply = e.replies[e.calls]
	}
	e.calls++
	return reply, nil
}

type stubExtractor struct {
	record call.BookingRecord
	calls  atomic.Int32
}

func (x *stubExtractor) Extract(_ context.Context, _ string) call.BookingRecord {
	x.calls.Add(1)
	return x.record
}

type recordingSender struct {
	sent []messaging.OutboundSMS
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg messaging.OutboundSMS) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func newTestController(engine dialogueEngine, extractor bookingExtractor, sender messaging.SMSSender) (*Controller, *call.Store) {
	store := call.NewStore()
	classifier := conversation.NewEmergencyDetector(nil)
	return NewController(store, classifier, engine, extractor, sender, 6, nil), store
}

func TestStartCallReturnsGreeting(t *testing.T) {
	ctrl, store := newTestController(&scriptedEngine{}, &stubExtractor{}, nil)

	greeting := ctrl.StartCall(context.Background(), "CA1", "+441234567890")
	assert.Equal(t, GreetingText, greeting)
	assert.Equal(t, 1, store.Len())

	// Re-delivery of the same webhook reuses the session.
	ctrl.StartCall(context.Background(), "CA1", "+441234567890")
	assert.Equal(t, 1, store.Len())
}

func TestHandleUtteranceMidCall(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"What seems to be the problem?"}}
	ctrl, store := newTestController(engine, &stubExtractor{}, nil)

	res := ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "Hi, my tap is dripping")
	assert.Equal(t, "What seems to be the problem?", res.Reply)
	assert.False(t, res.EndCall)
	assert.Empty(t, engine.lastHistory)

	sess, ok := store.Get("CA1")
	require.True(t, ok)
	assert.Equal(t, call.StateActive, sess.State())
	assert.Len(t, sess.Turns(), 2)

	// Second turn sees the first exchange as history.
	ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "It drips at night")
	require.Len(t, engine.lastHistory, 2)
	assert.Equal(t, conversation.ChatRoleUser, engine.lastHistory[0].Role)
	assert.Equal(t, conversation.ChatRoleAssistant, engine.lastHistory[1].Role)
}

func TestHandleUtteranceFlagsEmergency(t *testing.T) {
	ctrl, store := newTestController(&scriptedEngine{}, &stubExtractor{}, nil)

	ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "I have a BURST pipe, water everywhere!")

	sess, ok := store.Get("CA1")
	require.True(t, ok)
	assert.True(t, sess.Emergency())
}

func TestHandleUtteranceNoSpeech(t *testing.T) {
	ctrl, store := newTestController(&scriptedEngine{}, &stubExtractor{}, nil)
	ctrl.StartCall(context.Background(), "CA1", "+441234567890")

	res := ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "")
	assert.Equal(t, NoInputText, res.Reply)
	assert.True(t, res.EndCall)

	sess, _ := store.Get("CA1")
	assert.Equal(t, call.StateActive, sess.State())
	assert.Empty(t, sess.Turns())
}

func runFullCall(t *testing.T, ctrl *Controller, callSID, from string) TurnResult {
	t.Helper()
	ctrl.StartCall(context.Background(), callSID, from)
	var res TurnResult
	for _, utterance := range []string{
		"Hi, I have a blocked drain",
		"My name is Sam, I'm at 12 Elm Road",
		"Tomorrow at 9am works",
	} {
		res = ctrl.HandleUtterance(context.Background(), callSID, from, utterance)
	}
	return res
}

func TestCallWrapsUpAtTurnThreshold(t *testing.T) {
	extractor := &stubExtractor{record: call.BookingRecord{
		Name:            "Sam",
		Phone:           call.SentinelNotProvided,
		Address:         "12 Elm Road",
		Issue:           "blocked drain",
		AppointmentTime: "tomorrow at 9am",
		IsEmergency:     "no",
	}}
	sender := &recordingSender{}
	ctrl, store := newTestController(&scriptedEngine{}, extractor, sender)

	res := runFullCall(t, ctrl, "CA1", "+441234567890")
	assert.Equal(t, closingText, res.Reply)
	assert.True(t, res.EndCall)

	sess, _ := store.Get("CA1")
	assert.Equal(t, call.StateEnded, sess.State())
	assert.Len(t, sess.Turns(), 6)

	record := sess.Dashboard()
	assert.Equal(t, call.OutcomeBooked, record.Status)
	assert.Equal(t, "Sam", record.ClientName)

	require.Len(t, sender.sent, 1)
	// No usable extracted phone, so the SMS falls back to the caller id.
	assert.Equal(t, "+441234567890", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "tomorrow at 9am")
	assert.Contains(t, sender.sent[0].Body, "blocked drain")
}

func TestExtractedPhonePreferredForSMS(t *testing.T) {
	extractor := &stubExtractor{record: call.BookingRecord{
		Phone:           "+447700900123",
		Issue:           "boiler fault",
		AppointmentTime: "Friday morning",
		IsEmergency:     "no",
	}}
	sender := &recordingSender{}
	ctrl, _ := newTestController(&scriptedEngine{}, extractor, sender)

	runFullCall(t, ctrl, "CA1", "+441234567890")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+447700900123", sender.sent[0].To)
}

func TestExtractedPhoneNormalizedForSMS(t *testing.T) {
	extractor := &stubExtractor{record: call.BookingRecord{
		Phone:           "+44 7700 900-123",
		Issue:           "dripping tap",
		AppointmentTime: "Monday",
		IsEmergency:     "no",
	}}
	sender := &recordingSender{}
	ctrl, _ := newTestController(&scriptedEngine{}, extractor, sender)

	runFullCall(t, ctrl, "CA1", "+441234567890")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+447700900123", sender.sent[0].To)
}

func TestUndialableExtractedPhoneFallsBackToCaller(t *testing.T) {
	// The model sometimes returns prose instead of a number.
	extractor := &stubExtractor{record: call.BookingRecord{
		Phone:       "same as caller ID",
		IsEmergency: "no",
	}}
	sender := &recordingSender{}
	ctrl, _ := newTestController(&scriptedEngine{}, extractor, sender)

	runFullCall(t, ctrl, "CA1", "+441234567890")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+441234567890", sender.sent[0].To)
}

func TestEmergencyCallOutcomeUrgent(t *testing.T) {
	// The extractor disagrees; the session's own flag wins.
	extractor := &stubExtractor{record: call.BookingRecord{IsEmergency: "no"}}
	ctrl, store := newTestController(&scriptedEngine{}, extractor, nil)

	ctrl.StartCall(context.Background(), "CA1", "+441234567890")
	for _, utterance := range []string{
		"There is flooding in my kitchen",
		"Sam, 12 Elm Road",
		"As soon as possible",
	} {
		ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", utterance)
	}

	sess, _ := store.Get("CA1")
	record := sess.Dashboard()
	assert.Equal(t, call.OutcomeUrgent, record.Status)
	assert.Equal(t, "emergency", record.Urgency)
}

func TestDuplicateTerminationFiresSideEffectsOnce(t *testing.T) {
	extractor := &stubExtractor{record: call.FallbackBookingRecord()}
	sender := &recordingSender{}
	ctrl, _ := newTestController(&scriptedEngine{}, extractor, sender)

	runFullCall(t, ctrl, "CA1", "+441234567890")

	// A re-delivered webhook after the call ended repeats the closing line
	// without extracting or texting again.
	res := ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "hello?")
	assert.Equal(t, closingText, res.Reply)
	assert.True(t, res.EndCall)
	assert.Equal(t, int32(1), extractor.calls.Load())
	assert.Len(t, sender.sent, 1)
}

func TestConcurrentDeliveriesDoNotInterleaveTurns(t *testing.T) {
	engine := &scriptedEngine{}
	extractor := &stubExtractor{record: call.FallbackBookingRecord()}
	sender := &recordingSender{}
	ctrl, store := newTestController(engine, extractor, sender)

	ctrl.StartCall(context.Background(), "CA1", "+441234567890")

	// Eight simultaneous deliveries of the same utterance. Turns are
	// serialized per session, so exactly three exchanges land before the
	// call wraps up; the rest see the ended session and append nothing.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "still here")
		}()
	}
	wg.Wait()

	sess, ok := store.Get("CA1")
	require.True(t, ok)
	assert.Equal(t, call.StateEnded, sess.State())
	assert.Len(t, sess.Turns(), 6)
	assert.Equal(t, 3, engine.calls)
	assert.Equal(t, int32(1), extractor.calls.Load())
	assert.Len(t, sender.sent, 1)
}

func TestModelFailureEndsCallWithApology(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("model offline")}
	sender := &recordingSender{}
	ctrl, store := newTestController(engine, &stubExtractor{}, sender)

	res := ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "Hi there")
	assert.Equal(t, apologyText, res.Reply)
	assert.True(t, res.EndCall)

	sess, _ := store.Get("CA1")
	assert.Equal(t, call.StateEnded, sess.State())
	assert.Equal(t, call.OutcomeFailed, sess.Dashboard().Status)
	assert.Empty(t, sender.sent, "no confirmation for a failed call")

	// A re-delivered utterance repeats the apology, not the booking
	// confirmation the caller never heard.
	res = ctrl.HandleUtterance(context.Background(), "CA1", "+441234567890", "hello?")
	assert.Equal(t, apologyText, res.Reply)
	assert.True(t, res.EndCall)
}

func TestSMSFailureDoesNotAffectOutcome(t *testing.T) {
	extractor := &stubExtractor{record: call.FallbackBookingRecord()}
	sender := &recordingSender{err: errors.New("twilio down")}
	ctrl, store := newTestController(&scriptedEngine{}, extractor, sender)

	res := runFullCall(t, ctrl, "CA1", "+441234567890")
	assert.True(t, res.EndCall)

	sess, _ := store.Get("CA1")
	assert.Equal(t, call.OutcomeBooked, sess.Dashboard().Status)
}

func TestHandleCallStatus(t *testing.T) {
	ctrl, store := newTestController(&scriptedEngine{}, &stubExtractor{}, nil)

	// Unknown call ids are ignored.
	ctrl.HandleCallStatus("CA-missing", "completed")

	ctrl.StartCall(context.Background(), "CA1", "+441234567890")
	ctrl.HandleCallStatus("CA1", "ringing")
	sess, _ := store.Get("CA1")
	assert.Equal(t, "in-progress", sess.Dashboard().Status)

	ctrl.HandleCallStatus("CA1", "completed")
	assert.Equal(t, "completed", sess.Dashboard().Status)
}

func TestTranscriptLabelsInExtraction(t *testing.T) {
	var gotTranscript string
	extractor := &transcriptCapturingExtractor{capture: &gotTranscript}
	ctrl, _ := newTestController(&scriptedEngine{replies: []string{"a", "b", "c"}}, extractor, nil)

	runFullCall(t, ctrl, "CA1", "+441234567890")

	lines := strings.Split(gotTranscript, "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "Customer: "))
	assert.True(t, strings.HasPrefix(lines[1], "Bot: "))
}

type transcriptCapturingExtractor struct {
	capture *string
}

func (x *transcriptCapturingExtractor) Extract(_ context.Context, transcript string) call.BookingRecord {
	*x.capture = transcript
	return call.FallbackBookingRecord()
}
