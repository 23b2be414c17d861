package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioWebhookSecret string

	OpenAIAPIKey string
	OpenAIModel  string
	ModelTimeout time.Duration

	// MaxTurns is the total turn count (caller + assistant) after which the
	// call wraps up. The check runs after the assistant turn is appended, so
	// the default of 6 means three full exchanges.
	MaxTurns int

	// EmergencyPhrases are matched case-insensitively against caller speech.
	EmergencyPhrases []string

	// TTSVoice and TTSLanguage are passed through to Twilio <Say>.
	TTSVoice    string
	TTSLanguage string
}

const defaultEmergencyPhrases = "burst,flooding,leak,emergency,urgent,water everywhere"

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4"),
		ModelTimeout: getEnvAsDuration("MODEL_TIMEOUT", 15*time.Second),

		MaxTurns: getEnvAsInt("MAX_TURNS", 6),

		EmergencyPhrases: getEnvAsList("EMERGENCY_PHRASES", defaultEmergencyPhrases),

		TTSVoice:    getEnv("TTS_VOICE", "Polly.Amy"),
		TTSLanguage: getEnv("TTS_LANGUAGE", "en-GB"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming
// whitespace and dropping empty entries.
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
