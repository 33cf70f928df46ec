package application

import (
	"log/slog"
	"sync"
	"time"

	"voice-companion/internal/domain"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultManualGuard    = 3 * time.Second
)

type ReconnectPolicy struct {
	Delay time.Duration
	// MaxAttempts bounds consecutive attempts; zero means unlimited.
	MaxAttempts int
	// Backoff returns the wait before the given 1-based attempt. Nil means
	// a fixed Delay.
	Backoff func(attempt int) time.Duration
	// ManualGuard is how long a user disconnect suppresses reconnects.
	ManualGuard time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Delay:       DefaultReconnectDelay,
		ManualGuard: DefaultManualGuard,
	}
}

func (p ReconnectPolicy) wait(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return p.Delay
}

// Supervisor reconnects after the remote end drops a session. It watches
// status events and never acts while a user-initiated disconnect is recent.
type Supervisor struct {
	policy  ReconnectPolicy
	connect func()
	stats   *Stats
	logger  *slog.Logger

	mu          sync.Mutex
	manual      bool
	manualTimer *time.Timer
	pending     *time.Timer
	attempts    int
	stopped     bool
}

func NewSupervisor(policy ReconnectPolicy, connect func(), stats *Stats, logger *slog.Logger) *Supervisor {
	if stats == nil {
		stats = &Stats{}
	}
	return &Supervisor{
		policy:  policy,
		connect: connect,
		stats:   stats,
		logger:  logger,
	}
}

// MarkManualDisconnect suppresses reconnects for the guard window and cancels
// any reconnect already scheduled.
func (s *Supervisor) MarkManualDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manual = true
	s.cancelPendingLocked()

	if s.manualTimer != nil {
		s.manualTimer.Stop()
	}
	s.manualTimer = time.AfterFunc(s.policy.ManualGuard, func() {
		s.mu.Lock()
		s.manual = false
		s.mu.Unlock()
	})
}

// ResetAttempts starts a fresh attempt budget, used when the user connects.
func (s *Supervisor) ResetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

func (s *Supervisor) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Supervisor) HandleStatus(ev domain.Event) {
	if ev.Kind != domain.EventStatus {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Status {
	case domain.StatusConnected:
		s.attempts = 0

	case domain.StatusDisconnected:
		if ev.Reason == domain.ReasonRemote {
			s.scheduleLocked()
		}

	case domain.StatusError:
		// A failed reconnect keeps the cycle going; a failed user connect does not.
		if s.attempts > 0 {
			s.scheduleLocked()
		}
	}
}

func (s *Supervisor) scheduleLocked() {
	if s.stopped || s.manual || s.pending != nil {
		return
	}
	if s.policy.MaxAttempts > 0 && s.attempts >= s.policy.MaxAttempts {
		s.logger.Warn("giving up reconnecting", "attempts", s.attempts)
		return
	}

	s.attempts++
	attempt := s.attempts
	delay := s.policy.wait(attempt)
	s.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending != timer || s.manual || s.stopped {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.mu.Unlock()

		s.stats.ReconnectsIssued.Add(1)
		s.connect()
	})
	s.pending = timer
}

func (s *Supervisor) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.cancelPendingLocked()
	if s.manualTimer != nil {
		s.manualTimer.Stop()
	}
}
