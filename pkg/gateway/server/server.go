// Package server wires the HTTP mux, middleware chain, and live session
// tracker.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/config"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/handlers"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/provider"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/session"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/sessions"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/metrics"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	connector provider.Connector
	recorder  session.Recorder
	metrics   *metrics.Metrics
	sessions  *sessions.Tracker
	draining  atomic.Bool
}

// Dependencies are the externally constructed pieces the server routes to.
// Recorder may be nil (persistence disabled); Metrics may be nil.
type Dependencies struct {
	Connector provider.Connector
	Recorder  session.Recorder
	Metrics   *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		connector: deps.Connector,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		sessions:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.Handle("/ws", handlers.LiveHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Connector: s.connector,
		Recorder:  s.recorder,
		Metrics:   s.metrics,
		Sessions:  s.sessions,
		Draining:  s.draining.Load,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// ActiveSessions reports how many live sessions are currently registered.
func (s *Server) ActiveSessions() int {
	return s.sessions.Count()
}

// SetDraining refuses new websocket upgrades from this point on.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

// WarnSessions pushes a shutdown warning to every live session.
func (s *Server) WarnSessions(message string) int {
	return s.sessions.NotifyAll(message)
}

// CancelSessions tears down sessions that outlived the grace period.
func (s *Server) CancelSessions() int {
	return s.sessions.CancelAll()
}

// WaitSessions blocks until every live session has ended, or until ctx is
// done. It reports whether the tracker fully drained.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}
