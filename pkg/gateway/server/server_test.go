package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/config"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/provider"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/metrics"
)

type noopConnector struct{}

func (noopConnector) Connect(context.Context, provider.ConnectConfig) (provider.Stream, error) {
	return nil, context.Canceled
}

func testConfig() config.Config {
	return config.Config{
		Addr:                ":0",
		GeminiAPIKey:        "test-key",
		GeminiModel:         "gemini-2.0-flash-live-001",
		DefaultLanguageCode: "en-US",
		DefaultVoiceName:    "Aoede",
		FlushWords:          100,
		FlushInterval:       2 * time.Second,
		WSMaxMessageBytes:   64 * 1024,
		WSPingInterval:      20 * time.Second,
		WSWriteTimeout:      5 * time.Second,
		MetricsNamespace:    "jastalk",
		ReadHeaderTimeout:   10 * time.Second,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(testConfig(), slog.New(slog.DiscardHandler), Dependencies{
		Connector: noopConnector{},
		Metrics:   metrics.New("jastalk"),
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_HealthRoutes(t *testing.T) {
	h := newTestServer(t).Handler()

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("/healthz status=%d", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("/readyz status=%d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "jastalk_live_sessions_active") {
		t.Fatalf("metrics output missing session gauge:\n%s", body)
	}
}

func TestServer_RequestIDOnEveryResponse(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := get(t, h, "/healthz")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestServer_DrainRefusesUpgrades(t *testing.T) {
	srv := newTestServer(t)
	srv.SetDraining()
	if n := srv.WarnSessions("server shutting down"); n != 0 {
		t.Fatalf("warned=%d, want 0 with no sessions", n)
	}

	rec := get(t, srv.Handler(), "/ws")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ws during drain status=%d, want 503", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if !srv.WaitSessions(ctx) {
		t.Fatalf("WaitSessions did not return with zero sessions")
	}
	if n := srv.CancelSessions(); n != 0 {
		t.Fatalf("canceled=%d, want 0", n)
	}
	if srv.ActiveSessions() != 0 {
		t.Fatalf("active=%d, want 0", srv.ActiveSessions())
	}
}
