package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiProModel string
	GeminiTimeout  time.Duration

	BrightDataToken        string
	BrightDataZone         string
	BrightDataCollectorURL string
	BrightDataDatasetID    string
	BrightDataTimeout      time.Duration

	NatsURL   string
	NatsToken string

	DatabaseURL string

	MockProvider bool

	SessionTTL     time.Duration
	SessionCeiling time.Duration
}

func Load() Config {
	return Config{
		Port:     envInt("PROSPECTOR_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),

		GeminiAPIKey:   envStr("GEMINI_API_KEY", ""),
		GeminiModel:    envStr("PROSPECTOR_MODEL", "gemini-2.5-flash"),
		GeminiProModel: envStr("PROSPECTOR_PRO_MODEL", "gemini-3-pro-preview"),
		GeminiTimeout:  envDuration("GEMINI_TIMEOUT", 60*time.Second),

		BrightDataToken:        envStr("BRIGHTDATA_API_TOKEN", ""),
		BrightDataZone:         envStr("BRIGHTDATA_ZONE", "leadgen"),
		BrightDataCollectorURL: envStr("BRIGHTDATA_COLLECTOR_URL", ""),
		BrightDataDatasetID:    envStr("BRIGHTDATA_DATASET_ID", ""),
		BrightDataTimeout:      envDuration("BRIGHTDATA_TIMEOUT", 2*time.Minute),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		DatabaseURL: envStr("DATABASE_URL", ""),

		MockProvider: envBool("PROSPECTOR_MOCK_PROVIDER", false),

		SessionTTL:     envDuration("SESSION_TTL", 30*time.Minute),
		SessionCeiling: envDuration("SESSION_CEILING", 5*time.Minute),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
