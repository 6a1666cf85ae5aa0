package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/protocol"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/provider"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/metrics"
)

const (
	defaultLanguageCode = "en-US"
	defaultVoiceName    = "Aoede"

	defaultOutboundQueueSize   = 128
	defaultProviderIdleTimeout = 60 * time.Second
)

// Conn is the subset of *websocket.Conn the session reads from. Writes go
// through the outbound writer; see writer.go.
type Conn interface {
	wsWriter
	ReadMessage() (int, []byte, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Recorder persists conversation side effects. Implementations must be safe
// for concurrent use. All recorder failures are non-fatal to the session.
type Recorder interface {
	SaveUtterance(ctx context.Context, sessionID, role, text string) error
	SaveInterviewStatus(ctx context.Context, sessionID string, questionIndex, totalQuestions int, status string) error
	DeductCredits(ctx context.Context, sessionID string, elapsed time.Duration) error
}

type Config struct {
	DefaultLanguageCode string
	DefaultVoiceName    string
	FlushWords          int
	FlushInterval       time.Duration
	ProviderIdleTimeout time.Duration
	MaxMessageBytes     int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	OutboundQueueSize   int
}

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	Connector provider.Connector
	Recorder  Recorder
	Metrics   *metrics.Metrics
	SessionID string
	Config    Config
	Now       func() time.Time
}

// Session is the server-side state bound to one client connection: the
// protocol translator, question tracker, text accumulator, and the single
// provider stream. All client messages arrive on one read loop; provider
// push-events arrive on one receive loop; the two interleave arbitrarily, so
// shared state is mutex-guarded.
type Session struct {
	conn      Conn
	logger    *slog.Logger
	connector provider.Connector
	recorder  Recorder
	metrics   *metrics.Metrics
	sessionID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte

	accum     *Accumulator
	questions *QuestionTracker

	mu          sync.Mutex
	voice       provider.VoiceSettings
	stream      provider.Stream
	initDone    chan struct{}
	initErr     error
	interviewer string
	completed   bool

	lastProviderEvent atomic.Int64 // unix nanos
	startedAt         time.Time
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("provider connector is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.DefaultLanguageCode == "" {
		deps.Config.DefaultLanguageCode = defaultLanguageCode
	}
	if deps.Config.DefaultVoiceName == "" {
		deps.Config.DefaultVoiceName = defaultVoiceName
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = defaultOutboundQueueSize
	}
	if deps.Config.ProviderIdleTimeout < 0 {
		deps.Config.ProviderIdleTimeout = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:      deps.Conn,
		logger:    deps.Logger,
		connector: deps.Connector,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		sessionID: deps.SessionID,
		cfg:       deps.Config,
		now:       deps.Now,
		ctx:       ctx,
		cancel:    cancel,
		outbound:  make(chan []byte, deps.Config.OutboundQueueSize),
		accum:     NewAccumulator(deps.Config.FlushWords, deps.Config.FlushInterval, deps.Now),
		questions: NewQuestionTracker(),
		voice: provider.VoiceSettings{
			LanguageCode: deps.Config.DefaultLanguageCode,
			VoiceName:    deps.Config.DefaultVoiceName,
		},
		startedAt: deps.Now(),
	}
	return s, nil
}

// Cancel tears the session down. Safe to call from any goroutine.
func (s *Session) Cancel() {
	s.cancel()
}

// NotifyError pushes an error event to the client. Used by the session
// tracker to warn live sessions before a shutdown drain.
func (s *Session) NotifyError(message string) {
	s.send(protocol.NewErrorEvent(message))
}

// Run drives the session until the client disconnects or the session is
// canceled. It owns the read loop; the outbound writer and flush ticker run
// as child goroutines. Teardown closes the provider stream; any text still
// sitting in the accumulator is abandoned.
func (s *Session) Run() error {
	defer s.teardown()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		})
	}

	s.metrics.SessionStarted()

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:     s.conn,
			ctx:    s.ctx,
			cfg:    s.cfg,
			frames: s.outbound,
		}
		writerErrCh <- w.Run()
		s.cancel()
	}()

	go s.flushLoop()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				s.logger.Warn("client read failed", "session_id", s.sessionID, "error", err)
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleClientMessage(data)

		select {
		case <-s.ctx.Done():
			return nil
		default:
		}
	}
}

func (s *Session) teardown() {
	s.cancel()

	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug("provider close", "session_id", s.sessionID, "error", err)
		}
	}

	if pending := s.accum.Len(); pending > 0 {
		s.logger.Debug("abandoning buffered text on close", "session_id", s.sessionID, "bytes", pending)
	}

	elapsed := s.now().Sub(s.startedAt)
	s.record(func(ctx context.Context) error {
		return s.recorder.DeductCredits(ctx, s.sessionID, elapsed)
	})
	s.metrics.SessionEnded(elapsed)
}

// handleClientMessage classifies and dispatches one inbound frame. Malformed
// or unrecognized frames are logged and dropped; the connection stays open.
func (s *Session) handleClientMessage(data []byte) {
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		s.logger.Debug("ignoring client message", "session_id", s.sessionID, "error", err)
		s.metrics.ClientMessage("ignored")
		return
	}

	switch msg := decoded.(type) {
	case protocol.StartInterview:
		s.metrics.ClientMessage("start_interview")
		s.handleStartInterview(msg)
	case protocol.VoiceConfig:
		s.metrics.ClientMessage("voice_config")
		s.handleVoiceConfig(msg)
	case protocol.UserText:
		s.metrics.ClientMessage("user_text")
		s.handleUserText(msg)
	}
}

func (s *Session) handleStartInterview(msg protocol.StartInterview) {
	s.questions.Set(msg.Questions)

	s.mu.Lock()
	s.interviewer = strings.TrimSpace(msg.Interviewer)
	s.completed = false
	interviewer := s.interviewer
	s.mu.Unlock()

	s.record(func(ctx context.Context) error {
		return s.recorder.SaveInterviewStatus(ctx, s.sessionID, 0, s.questions.Len(), "in_progress")
	})

	stream, err := s.ensureProvider()
	if err != nil {
		return
	}

	first, ok := s.questions.Current()
	if !ok {
		return
	}
	greeting := buildGreeting(interviewer, s.questions.Len(), first.Text)

	if err := stream.SendText(greeting); err != nil {
		s.logger.Warn("forward greeting failed", "session_id", s.sessionID, "error", err)
		s.metrics.Error("provider_send")
	}
	s.send(protocol.NewStartInterviewResponse(greeting, 0, first.Text))
}

func (s *Session) handleVoiceConfig(msg protocol.VoiceConfig) {
	voice := provider.VoiceSettings{
		LanguageCode: strings.TrimSpace(msg.LanguageCode),
		VoiceName:    strings.TrimSpace(msg.VoiceName),
	}
	if voice.LanguageCode == "" {
		voice.LanguageCode = s.cfg.DefaultLanguageCode
	}
	if voice.VoiceName == "" {
		voice.VoiceName = s.cfg.DefaultVoiceName
	}

	s.mu.Lock()
	s.voice = voice
	s.mu.Unlock()

	_, _ = s.ensureProvider()
}

func (s *Session) handleUserText(msg protocol.UserText) {
	stream, err := s.ensureProvider()
	if err != nil {
		return
	}

	// The client learns what comes next before the provider starts
	// responding to the current answer.
	if next, ok := s.questions.Advance(); ok {
		s.send(protocol.NewNextQuestion(s.questions.Index(), next.Text, s.questions.Len()))
		idx := s.questions.Index()
		s.record(func(ctx context.Context) error {
			return s.recorder.SaveInterviewStatus(ctx, s.sessionID, idx, s.questions.Len(), "in_progress")
		})
	} else if total := s.questions.Len(); total > 0 && s.questions.Index() >= total {
		s.mu.Lock()
		alreadyDone := s.completed
		s.completed = true
		s.mu.Unlock()
		if !alreadyDone {
			s.record(func(ctx context.Context) error {
				return s.recorder.SaveInterviewStatus(ctx, s.sessionID, total, total, "completed")
			})
		}
	}

	s.record(func(ctx context.Context) error {
		return s.recorder.SaveUtterance(ctx, s.sessionID, "user", msg.Text)
	})

	if err := stream.SendText(msg.Text); err != nil {
		s.logger.Warn("forward user text failed", "session_id", s.sessionID, "error", err)
		s.metrics.Error("provider_send")
		s.send(protocol.NewErrorEvent("failed to reach AI session"))
	}
}

// ensureProvider opens the provider stream on first need. Concurrent callers
// share a single in-flight connect; a stream closed by the idle watchdog or a
// receive failure is lazily reopened by the next trigger. A connect failure
// is fatal for the session: the client gets an error event and the
// connection is torn down.
func (s *Session) ensureProvider() (provider.Stream, error) {
	for {
		s.mu.Lock()
		if s.stream != nil {
			stream := s.stream
			s.mu.Unlock()
			return stream, nil
		}
		if s.initDone != nil {
			done := s.initDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			}
			s.mu.Lock()
			err := s.initErr
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}
		done := make(chan struct{})
		s.initDone = done
		voice := s.voice
		s.mu.Unlock()

		stream, err := s.connector.Connect(s.ctx, provider.ConnectConfig{Voice: voice})

		s.mu.Lock()
		if err != nil {
			s.initErr = err
		} else {
			s.stream = stream
			s.initErr = nil
		}
		s.mu.Unlock()
		close(done)

		if err != nil {
			s.logger.Error("provider connect failed", "session_id", s.sessionID, "error", err)
			s.metrics.Error("provider_connect")
			s.send(protocol.NewErrorEvent("failed to start AI session"))
			s.cancel()
			return nil, err
		}

		s.logger.Info("provider session opened",
			"session_id", s.sessionID,
			"language", voice.LanguageCode,
			"voice", voice.VoiceName,
		)
		s.touchProviderEvent()
		go s.receiveLoop(stream)
		if s.cfg.ProviderIdleTimeout > 0 {
			go s.idleWatchdog(stream)
		}
		return stream, nil
	}
}

// receiveLoop pumps provider push-events until the stream dies. Errors on an
// open stream are reported to the client but do not end the client
// connection; the stream slot is cleared so a later message can reopen it.
func (s *Session) receiveLoop(stream provider.Stream) {
	for {
		msg, err := stream.Receive()
		if err != nil {
			if s.ctx.Err() == nil && !isExpectedClose(err) {
				s.logger.Warn("provider receive failed", "session_id", s.sessionID, "error", err)
				s.metrics.Error("provider_receive")
				s.send(protocol.NewErrorEvent("AI session error"))
			} else {
				s.logger.Debug("provider stream closed", "session_id", s.sessionID)
			}
			s.clearStream(stream)
			return
		}
		s.touchProviderEvent()
		s.dispatchProviderMessage(msg)
	}
}

func (s *Session) dispatchProviderMessage(msg *provider.ServerMessage) {
	if msg == nil {
		return
	}

	if msg.SetupComplete {
		s.metrics.ProviderEvent("setup_complete")
		s.send(protocol.SetupComplete{SetupComplete: true})
	}

	for _, part := range msg.Parts {
		if len(part.Audio) > 0 {
			s.metrics.ProviderEvent("audio")
			s.send(protocol.NewAudioChunk(base64.StdEncoding.EncodeToString(part.Audio)))
		}
		if part.Text != "" {
			s.metrics.ProviderEvent("text")
			if chunk, ok := s.accum.Add(part.Text); ok {
				s.emitText(chunk)
			}
		}
	}

	if msg.TurnComplete {
		s.metrics.ProviderEvent("turn_complete")
		// Drain trailing text before telling the client the turn is over;
		// sub-threshold remainders would otherwise never be sent.
		if chunk, ok := s.accum.Flush(); ok {
			s.emitText(chunk)
		}
		s.send(protocol.NewAudioEnd())
	}
}

func (s *Session) emitText(chunk string) {
	s.metrics.TextFlush()
	s.send(protocol.NewTextResponse(chunk))
	s.record(func(ctx context.Context) error {
		return s.recorder.SaveUtterance(ctx, s.sessionID, "assistant", chunk)
	})
}

// flushLoop force-flushes a stale buffer so text still reaches the client
// when the provider pauses mid-thought.
func (s *Session) flushLoop() {
	interval := s.cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	tick := interval / 4
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if chunk, ok := s.accum.FlushIfStale(); ok {
				s.emitText(chunk)
			}
		}
	}
}

// idleWatchdog closes a stream that has gone silent. The closure surfaces as
// a recoverable error; the next user message opens a fresh stream.
func (s *Session) idleWatchdog(stream provider.Stream) {
	timeout := s.cfg.ProviderIdleTimeout
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			current := s.stream == stream
			s.mu.Unlock()
			if !current {
				return
			}
			last := time.Unix(0, s.lastProviderEvent.Load())
			if s.now().Sub(last) < timeout {
				continue
			}
			s.logger.Warn("provider stream idle, closing", "session_id", s.sessionID, "timeout", timeout)
			s.metrics.Error("provider_idle")
			s.send(protocol.NewErrorEvent("AI session timed out"))
			s.clearStream(stream)
			_ = stream.Close()
			return
		}
	}
}

func (s *Session) clearStream(stream provider.Stream) {
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
		s.initDone = nil
		s.initErr = nil
	}
	s.mu.Unlock()
}

func (s *Session) touchProviderEvent() {
	s.lastProviderEvent.Store(s.now().UnixNano())
}

// send marshals a frame onto the outbound queue in FIFO order. It blocks
// when the writer falls behind; session cancellation unblocks it.
func (s *Session) send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshal outbound frame", "session_id", s.sessionID, "error", err)
		return
	}
	select {
	case s.outbound <- data:
	case <-s.ctx.Done():
	}
}

// record runs a persistence side effect when a recorder is wired. Failures
// are logged and swallowed; persistence never breaks a live conversation.
func (s *Session) record(op func(ctx context.Context) error) {
	if s.recorder == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if err := op(ctx); err != nil {
		s.logger.Warn("recorder write failed", "session_id", s.sessionID, "error", err)
		s.metrics.Error("recorder")
	}
}

func buildGreeting(interviewer string, total int, firstQuestion string) string {
	if interviewer == "" {
		interviewer = "your interviewer"
	}
	noun := "questions"
	if total == 1 {
		noun = "question"
	}
	return fmt.Sprintf(
		"Hello! I'm %s, and I'll be conducting your interview today. We'll go through %d %s together. Let's get started. %s",
		interviewer, total, noun, firstQuestion,
	)
}

func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
