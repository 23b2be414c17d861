package messaging

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestValidateTwilioSignature(t *testing.T) {
	const authToken = "secret-token"
	const webhookURL = "https://example.com/process_speech"

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("SpeechResult", "I have a burst pipe")

	payload := buildSignaturePayload(webhookURL, form)
	sig := computeSignature(payload, authToken)

	req := httptest.NewRequest("POST", "/process_speech", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)

	if !ValidateTwilioSignature(req, authToken, webhookURL) {
		t.Error("expected valid signature to pass")
	}

	req2 := httptest.NewRequest("POST", "/process_speech", strings.NewReader(form.Encode()))
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req2.Header.Set("X-Twilio-Signature", "bogus")
	if ValidateTwilioSignature(req2, authToken, webhookURL) {
		t.Error("expected bogus signature to fail")
	}

	req3 := httptest.NewRequest("POST", "/process_speech", strings.NewReader(form.Encode()))
	req3.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ValidateTwilioSignature(req3, authToken, webhookURL) {
		t.Error("expected missing signature header to fail")
	}
}

func TestBuildSignaturePayloadSortsKeys(t *testing.T) {
	form := url.Values{}
	form.Set("Zebra", "z")
	form.Set("Alpha", "a")

	payload := buildSignaturePayload("https://example.com/voice", form)
	if payload != "https://example.com/voiceAlphaaZebraz" {
		t.Errorf("unexpected payload: %q", payload)
	}
}

func TestParseVoiceWebhook(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", " CA123 ")
	form.Set("From", "+441234567890")
	form.Set("CallStatus", "In-Progress")
	form.Set("SpeechResult", " I have a leak ")

	req := httptest.NewRequest("POST", "/process_speech", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parsed, err := ParseVoiceWebhook(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.CallSid != "CA123" {
		t.Errorf("expected trimmed CallSid, got %q", parsed.CallSid)
	}
	if parsed.CallStatus != "in-progress" {
		t.Errorf("expected lowered status, got %q", parsed.CallStatus)
	}
	if parsed.SpeechResult != "I have a leak" {
		t.Errorf("expected trimmed speech, got %q", parsed.SpeechResult)
	}
}

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+44 1234 567890", "+441234567890"},
		{"(44) 1234-567890", "+441234567890"},
		{"  ", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizeE164(tt.in); got != tt.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfirmationSMSBody(t *testing.T) {
	body := ConfirmationSMSBody("tomorrow 9am", "burst pipe")
	if !strings.Contains(body, "tomorrow 9am") || !strings.Contains(body, "burst pipe") {
		t.Errorf("unexpected body: %q", body)
	}
}
