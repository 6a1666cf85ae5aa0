package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/config"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/provider"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/session"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/sessions"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/metrics"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/mw"
)

// LiveHandler upgrades /ws requests and runs one interview session per
// connection.
type LiveHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Connector provider.Connector
	Recorder  session.Recorder
	Metrics   *metrics.Metrics
	Sessions  *sessions.Tracker

	// Draining reports whether the server has begun shutting down. New
	// upgrades are refused while true.
	Draining func() bool
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Draining != nil && h.Draining() {
		http.Error(w, "server is draining", http.StatusServiceUnavailable)
		return
	}
	if !mw.OriginAllowed(h.Config, r) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "s_" + mw.RandHex(8)
	reqID, _ := mw.RequestIDFrom(r.Context())

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    h.Logger,
		Connector: h.Connector,
		Recorder:  h.Recorder,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		Config: session.Config{
			DefaultLanguageCode: h.Config.DefaultLanguageCode,
			DefaultVoiceName:    h.Config.DefaultVoiceName,
			FlushWords:          h.Config.FlushWords,
			FlushInterval:       h.Config.FlushInterval,
			ProviderIdleTimeout: h.Config.ProviderIdleTimeout,
			MaxMessageBytes:     h.Config.WSMaxMessageBytes,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			ReadTimeout:         h.Config.WSReadTimeout,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("live session init failed", "session_id", sessionID, "request_id", reqID, "error", err)
		}
		return
	}

	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(sessionID, sessions.Handle{
			Cancel: s.Cancel,
			Notify: s.NotifyError,
		})
	}
	defer unregister()

	if h.Logger != nil {
		h.Logger.Info("live session started", "session_id", sessionID, "request_id", reqID, "remote", r.RemoteAddr)
	}
	if err := s.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
		}
	}
}
