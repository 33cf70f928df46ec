package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-companion/internal/domain"
)

const (
	defaultEventBuffer = 1024
	defaultErrorBuffer = 64
)

type ManagerConfig struct {
	Session          SessionOptions
	Capture          CaptureConfig
	CaptureOptions   CaptureOptions
	FlushOnInterrupt bool
	SendQueue        int
	EventBuffer      int
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Session:        DefaultSessionOptions(),
		Capture:        DefaultCaptureConfig(),
		CaptureOptions: DefaultCaptureOptions(),
		SendQueue:      32,
		EventBuffer:    defaultEventBuffer,
	}
}

// Manager owns at most one Session and the connection status. Lifecycle,
// audio, tool and transcription events are published on Events; recoverable
// failures are also published on Errors. Neither channel ever blocks the
// session: when a consumer falls behind, values are dropped and logged.
type Manager struct {
	dialer  RealtimeDialer
	mic     Microphone
	speaker Speaker
	tools   *ToolDispatcher
	cfg     ManagerConfig
	logger  *slog.Logger
	stats   *Stats
	now     func() time.Time

	events chan domain.Event
	errors chan error

	mu         sync.Mutex
	status     domain.Status
	session    *Session
	closing    *Session
	dialCancel context.CancelFunc
	gen        uint64
}

func NewManager(dialer RealtimeDialer, mic Microphone, speaker Speaker, tools *ToolDispatcher, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &Manager{
		dialer:  dialer,
		mic:     mic,
		speaker: speaker,
		tools:   tools,
		cfg:     cfg,
		logger:  logger,
		stats:   &Stats{},
		now:     time.Now,
		events:  make(chan domain.Event, cfg.EventBuffer),
		errors:  make(chan error, defaultErrorBuffer),
		status:  domain.StatusDisconnected,
	}
}

func (m *Manager) Events() <-chan domain.Event {
	return m.events
}

func (m *Manager) Errors() <-chan error {
	return m.errors
}

func (m *Manager) Stats() *Stats {
	return m.stats
}

func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Connected() bool {
	return m.Status() == domain.StatusConnected
}

func (m *Manager) Locked() bool {
	return m.tools.LockScreen().Locked()
}

// Connect opens a new session built from settings. It is a no-op while a
// session is connected or being dialed.
func (m *Manager) Connect(ctx context.Context, settings domain.Settings) error {
	m.mu.Lock()
	if m.status == domain.StatusConnected || m.status == domain.StatusConnecting {
		m.mu.Unlock()
		return nil
	}
	if err := settings.Validate(); err != nil {
		err = fmt.Errorf("validating settings: %w", err)
		m.failLocked(err)
		m.mu.Unlock()
		return err
	}
	m.gen++
	gen := m.gen
	prev := m.closing
	dialCtx, cancel := context.WithCancel(ctx)
	m.dialCancel = cancel
	m.setStatusLocked(domain.StatusConnecting, "", "")
	m.mu.Unlock()
	defer cancel()

	// The previous session must hand back the microphone and speaker first.
	if prev != nil {
		select {
		case <-prev.Done():
		case <-dialCtx.Done():
		}
	}

	cfg := BuildSessionConfig(settings, m.cfg.Session, m.now())
	m.logger.Info("connecting", "dialer", m.dialer.Name(), "model", cfg.Model, "voice", cfg.Voice)

	var conn RealtimeConn
	err := dialCtx.Err()
	if err == nil {
		conn, err = m.dialer.Dial(dialCtx, cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Disconnect ran while dialing; it already reported the status.
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("connecting: %w", ErrSessionClosed)
	}
	m.dialCancel = nil

	if err != nil {
		err = fmt.Errorf("dialing %s: %w", m.dialer.Name(), err)
		m.failLocked(err)
		return err
	}

	s := newSession(ctx, sessionDeps{
		conn:        conn,
		mic:         m.mic,
		captureOpts: m.cfg.CaptureOptions,
		capture:     NewCapturePipeline(m.cfg.Capture),
		playback:    NewPlaybackScheduler(m.speaker, m.cfg.FlushOnInterrupt, m.stats, m.logger),
		tools:       m.tools,
		stats:       m.stats,
		logger:      m.logger,
		sendQueue:   m.cfg.SendQueue,
		publish:     m.publish,
		report:      m.report,
		onClosed:    m.sessionClosed,
	})
	m.session = s
	m.stats.Sessions.Add(1)
	m.setStatusLocked(domain.StatusConnected, "", s.ID())
	m.logger.Info("connected", "session", s.ID())

	s.start()
	return nil
}

// Disconnect closes the current session, or abandons a dial in flight, and
// waits until the microphone and speaker are released. Calling it with
// nothing open does nothing.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	if m.dialCancel != nil {
		m.gen++
		m.dialCancel()
		m.dialCancel = nil
		m.setStatusLocked(domain.StatusDisconnected, domain.ReasonClient, "")
		m.mu.Unlock()
		return
	}

	s := m.session
	if s == nil {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.closing = s
	m.setStatusLocked(domain.StatusDisconnected, domain.ReasonClient, s.ID())
	m.mu.Unlock()

	s.Close(domain.ReasonClient)

	m.mu.Lock()
	if m.closing == s {
		m.closing = nil
	}
	m.mu.Unlock()
}

func (m *Manager) failLocked(err error) {
	m.logger.Error("connect failed", "error", err)
	m.publish(domain.Event{Kind: domain.EventError, Err: err})
	m.report(err)
	m.setStatusLocked(domain.StatusError, "", "")
}

func (m *Manager) sessionClosed(s *Session, reason domain.DisconnectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != s {
		return
	}
	m.session = nil
	m.setStatusLocked(domain.StatusDisconnected, reason, s.ID())
}

func (m *Manager) setStatusLocked(status domain.Status, reason domain.DisconnectReason, sessionID string) {
	m.status = status
	m.publish(domain.Event{
		Kind:      domain.EventStatus,
		SessionID: sessionID,
		Status:    status,
		Reason:    reason,
	})
}

func (m *Manager) publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping event", "kind", ev.Kind)
	}
}

func (m *Manager) report(err error) {
	select {
	case m.errors <- err:
	default:
	}
}
