package conversation

import "strings"

// defaultEmergencyPhrases flag calls that need a same-day callout.
var defaultEmergencyPhrases = []string{
	"burst",
	"flooding",
	"leak",
	"emergency",
	"urgent",
	"water everywhere",
}

// EmergencyDetector flags utterances that mention emergency plumbing
// language. It is a pure substring matcher: emergency detection must never
// wait on, or fail with, the language model.
type EmergencyDetector struct {
	phrases []string
}

// NewEmergencyDetector builds a detector for the given trigger phrases,
// falling back to the default set when none are configured.
func NewEmergencyDetector(phrases []string) *EmergencyDetector {
	if len(phrases) == 0 {
		phrases = defaultEmergencyPhrases
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &EmergencyDetector{phrases: lowered}
}

// IsEmergency reports whether the utterance contains any trigger phrase,
// ignoring case.
func (d *EmergencyDetector) IsEmergency(utterance string) bool {
	text := strings.ToLower(utterance)
	for _, phrase := range d.phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
