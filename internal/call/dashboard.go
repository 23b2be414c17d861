package call

import (
	"time"
)

// DashboardRecord is the read-time projection of a session served by the
// calls API. It is computed on demand and never stored.
type DashboardRecord struct {
	ID              string `json:"id"`
	ClientName      string `json:"clientName"`
	Phone           string `json:"phone"`
	Issue           string `json:"issue"`
	Urgency         string `json:"urgency"`
	AppointmentTime string `json:"appointmentTime"`
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	Duration        string `json:"duration"`
	Transcript      string `json:"transcript"`
}

// Dashboard projects the session into its dashboard form.
func (s *Session) Dashboard() DashboardRecord {
	transcript := s.TranscriptText()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := DashboardRecord{
		ID:              s.CallSID,
		ClientName:      "Unknown",
		Phone:           s.From,
		Issue:           "Not specified",
		Urgency:         "normal",
		AppointmentTime: "Not scheduled",
		Status:          "in-progress",
		Timestamp:       s.StartedAt.Format(time.RFC3339),
		Transcript:      transcript,
	}
	if s.booking != nil {
		if s.booking.Name != "" {
			rec.ClientName = s.booking.Name
		}
		if s.booking.Phone != "" && s.booking.Phone != SentinelNotProvided {
			rec.Phone = s.booking.Phone
		}
		if s.booking.Issue != "" {
			rec.Issue = s.booking.Issue
		}
		if s.booking.AppointmentTime != "" {
			rec.AppointmentTime = s.booking.AppointmentTime
		}
	}
	// Urgency reflects the keyword classifier's finding, even when the
	// extractor's own emergency field disagrees.
	if s.emergency {
		rec.Urgency = "emergency"
	}
	switch {
	case s.outcome != "":
		rec.Status = s.outcome
	case s.callStat != "":
		rec.Status = s.callStat
	}
	if !s.endedAt.IsZero() {
		rec.Duration = s.endedAt.Sub(s.StartedAt).Truncate(time.Second).String()
	}
	return rec
}
