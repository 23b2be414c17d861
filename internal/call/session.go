package call

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Turn roles. Caller turns hold transcribed speech; assistant turns hold the
// receptionist's spoken reply.
const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// State tracks where a call is in its lifecycle.
type State string

const (
	StateActive     State = "active"
	StateCompleting State = "completing"
	StateEnded      State = "ended"
)

// Terminal outcome tags, surfaced on the dashboard.
const (
	OutcomeBooked = "booked"
	OutcomeUrgent = "urgent"
	OutcomeFailed = "failed"
)

// SentinelNotProvided marks a booking field the extractor ran on but could
// not find, as opposed to a record that was never extracted at all.
const SentinelNotProvided = "Not provided"

// Turn is a single labelled utterance in a call's ordered history.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// BookingRecord is the structured booking extracted from a call transcript.
// IsEmergency is the extractor's own "yes"/"no" judgement and may disagree
// with the session's keyword-derived emergency flag.
type BookingRecord struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	Issue           string `json:"issue"`
	AppointmentTime string `json:"appointment_time"`
	IsEmergency     string `json:"is_emergency"`
}

// FallbackBookingRecord returns the safe default used when extraction fails.
func FallbackBookingRecord() BookingRecord {
	return BookingRecord{
		Name:            SentinelNotProvided,
		Phone:           SentinelNotProvided,
		Address:         SentinelNotProvided,
		Issue:           SentinelNotProvided,
		AppointmentTime: SentinelNotProvided,
		IsEmergency:     "no",
	}
}

// Session is the in-memory state for one call. All mutation goes through
// methods that hold the session's own mutex, so concurrent webhook
// deliveries for the same call are serialized without blocking other calls.
type Session struct {
	CallSID   string
	From      string
	StartedAt time.Time

	// turnMu serializes whole dialogue turns. mu only guards individual
	// field reads and writes; a webhook handler holds turnMu across its
	// full classify/append/reply cycle so a duplicate delivery of the same
	// utterance cannot interleave with the one in flight. turnMu is never
	// acquired while mu is held.
	turnMu sync.Mutex

	mu        sync.Mutex
	state     State
	turns     []Turn
	emergency bool
	outcome   string
	callStat  string
	endedAt   time.Time
	booking   *BookingRecord
}

// LockTurn takes the session's turn lock. Callers must pair it with
// UnlockTurn around one complete dialogue turn.
func (s *Session) LockTurn() {
	s.turnMu.Lock()
}

// UnlockTurn releases the turn lock.
func (s *Session) UnlockTurn() {
	s.turnMu.Unlock()
}

func newSession(callSID, from string, now time.Time) *Session {
	return &Session{
		CallSID:   callSID,
		From:      from,
		StartedAt: now,
		state:     StateActive,
	}
}

// AppendTurn appends a labelled turn and returns the new total turn count.
func (s *Session) AppendTurn(role, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Text: text, At: time.Now().UTC()})
	return len(s.turns)
}

// MarkEmergency sets the emergency flag. The flag is monotonic: once a call
// is flagged, later utterances cannot clear it.
func (s *Session) MarkEmergency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergency = true
}

// Emergency reports whether any utterance on this call tripped the classifier.
func (s *Session) Emergency() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergency
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// BeginCompletion transitions ACTIVE -> COMPLETING. It returns true exactly
// once per session, so duplicate termination triggers (e.g. a re-delivered
// webhook) cannot fire side effects twice.
func (s *Session) BeginCompletion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = StateCompleting
	return true
}

// Finish transitions to ENDED with the given outcome tag and attaches the
// booking record. The record is set at most once; a second call is a no-op.
func (s *Session) Finish(outcome string, booking BookingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	s.outcome = outcome
	if s.booking == nil {
		s.booking = &booking
	}
	if s.endedAt.IsZero() {
		s.endedAt = time.Now().UTC()
	}
}

// Fail ends the session without a booking record after a turn-processing
// error, so the dashboard can distinguish failed calls from booked ones.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	s.outcome = OutcomeFailed
	if s.endedAt.IsZero() {
		s.endedAt = time.Now().UTC()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns the terminal outcome tag, or "" while the call is live.
func (s *Session) Outcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Booking returns the attached record, or nil if extraction never ran.
func (s *Session) Booking() *BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booking == nil {
		return nil
	}
	rec := *s.booking
	return &rec
}

// RecordCallStatus annotates the session with an asynchronous telephony
// status callback. This is an out-of-band annotation, not a lifecycle
// transition: it can land at any point in the ACTIVE/COMPLETING/ENDED
// progression.
func (s *Session) RecordCallStatus(status string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callStat = status
	s.endedAt = at
}

// TranscriptText renders the turn history with speaker labels, one line per
// turn, for the extraction prompt and the dashboard.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.turns))
	for _, t := range s.turns {
		label := "Customer"
		if t.Role == RoleAssistant {
			label = "Bot"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, t.Text))
	}
	return strings.Join(lines, "\n")
}
