package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK              bool     `json:"ok"`
		Model           string   `json:"model"`
		RecorderEnabled bool     `json:"recorder_enabled"`
		CORSEnabled     bool     `json:"cors_enabled"`
		Issues          []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.GeminiAPIKey) == "" {
		issues = append(issues, "gemini api key not configured")
	}
	if strings.TrimSpace(h.Config.GeminiModel) == "" {
		issues = append(issues, "gemini model not configured")
	}
	if h.Config.FlushWords <= 0 {
		issues = append(issues, "flush words must be > 0")
	}
	if h.Config.FlushInterval <= 0 {
		issues = append(issues, "flush interval must be > 0")
	}
	if h.Config.WSMaxMessageBytes <= 0 {
		issues = append(issues, "ws max message bytes must be > 0")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "ws keepalive settings must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:              ok,
		Model:           h.Config.GeminiModel,
		RecorderEnabled: strings.TrimSpace(h.Config.DatabaseURL) != "",
		CORSEnabled:     len(h.Config.CORSAllowedOrigins) > 0,
		Issues:          issues,
	})
}
