// Package config loads the gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Provider credentials and model selection.
	GeminiAPIKey string
	GeminiModel  string

	// Optional Postgres DSN. Empty disables the conversation recorder.
	DatabaseURL string

	// Voice defaults applied when the client sends no voice-config.
	DefaultLanguageCode string
	DefaultVoiceName    string

	// Text accumulator thresholds.
	FlushWords    int
	FlushInterval time.Duration

	// A provider stream with no events for this long is closed and lazily
	// reopened by the next client message. 0 disables the watchdog.
	ProviderIdleTimeout time.Duration

	// Client websocket tuning.
	WSMaxMessageBytes int64
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSReadTimeout     time.Duration

	// CORS allowlist for the upgrade and HTTP endpoints. Empty => disabled.
	CORSAllowedOrigins map[string]struct{}

	MetricsNamespace string

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("JASTALK_ADDR", ":8080"),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:         envOr("JASTALK_GEMINI_MODEL", "gemini-2.0-flash-live-001"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DefaultLanguageCode: envOr("JASTALK_DEFAULT_LANGUAGE", "en-US"),
		DefaultVoiceName:    envOr("JASTALK_DEFAULT_VOICE", "Aoede"),
		FlushWords:          envIntOr("JASTALK_FLUSH_WORDS", 100),
		FlushInterval:       envDurationOr("JASTALK_FLUSH_INTERVAL", 2*time.Second),
		ProviderIdleTimeout: envDurationOr("JASTALK_PROVIDER_IDLE_TIMEOUT", 60*time.Second),
		WSMaxMessageBytes:   envInt64Or("JASTALK_WS_MAX_MESSAGE_BYTES", 64*1024),
		WSPingInterval:      envDurationOr("JASTALK_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("JASTALK_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("JASTALK_WS_READ_TIMEOUT", 0),
		CORSAllowedOrigins:  make(map[string]struct{}),
		MetricsNamespace:    envOr("JASTALK_METRICS_NAMESPACE", "jastalk"),
		ReadHeaderTimeout:   envDurationOr("JASTALK_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("JASTALK_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("JASTALK_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("JASTALK_GEMINI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("JASTALK_ADDR must not be empty")
	}
	if cfg.FlushWords <= 0 {
		return Config{}, fmt.Errorf("JASTALK_FLUSH_WORDS must be > 0")
	}
	if cfg.FlushInterval <= 0 {
		return Config{}, fmt.Errorf("JASTALK_FLUSH_INTERVAL must be > 0")
	}
	if cfg.ProviderIdleTimeout < 0 {
		return Config{}, fmt.Errorf("JASTALK_PROVIDER_IDLE_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("JASTALK_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("JASTALK_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("JASTALK_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("JASTALK_WS_READ_TIMEOUT must be >= 0")
	}
	if strings.TrimSpace(cfg.MetricsNamespace) == "" {
		return Config{}, fmt.Errorf("JASTALK_METRICS_NAMESPACE must not be empty")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("JASTALK_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("JASTALK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
