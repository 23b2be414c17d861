package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification:
// the full URL followed by every POST parameter in sorted key order.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VoiceWebhookRequest carries the fields Twilio posts on voice webhook events.
type VoiceWebhookRequest struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	CallStatus   string
	SpeechResult string
}

// ParseVoiceWebhook parses a Twilio voice webhook form post.
func ParseVoiceWebhook(r *http.Request) (*VoiceWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	req := &VoiceWebhookRequest{
		CallSid:      strings.TrimSpace(r.FormValue("CallSid")),
		AccountSid:   r.FormValue("AccountSid"),
		From:         r.FormValue("From"),
		To:           r.FormValue("To"),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.FormValue("CallStatus"))),
		SpeechResult: strings.TrimSpace(r.FormValue("SpeechResult")),
	}

	return req, nil
}

// BuildAbsoluteURL reconstructs the external URL Twilio signed, honoring
// forwarding headers set by the ingress.
func BuildAbsoluteURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" && strings.HasPrefix(r.Host, "localhost") {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
