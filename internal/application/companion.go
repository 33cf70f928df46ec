package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voice-companion/internal/domain"
)

const (
	DefaultSettingsReconnectDelay = 500 * time.Millisecond
	DefaultSpeakingHold           = time.Second
)

type CompanionConfig struct {
	AutoConnect bool
	// SettingsReconnectDelay is the pause between dropping and reopening the
	// session after the settings changed while connected.
	SettingsReconnectDelay time.Duration
	// SpeakingHold keeps the speaking indicator on after the last audio chunk.
	SpeakingHold time.Duration
}

func DefaultCompanionConfig() CompanionConfig {
	return CompanionConfig{
		SettingsReconnectDelay: DefaultSettingsReconnectDelay,
		SpeakingHold:           DefaultSpeakingHold,
	}
}

// CompanionState is the snapshot served to control surfaces.
type CompanionState struct {
	Status            domain.Status `json:"status"`
	Speaking          bool          `json:"speaking"`
	Locked            bool          `json:"locked"`
	SessionID         string        `json:"session_id,omitempty"`
	LastUserText      string        `json:"last_user_text,omitempty"`
	LastAssistantText string        `json:"last_assistant_text,omitempty"`
	Stats             StatsSnapshot `json:"stats"`
}

// Companion is the headless shell around the Manager: it owns the settings,
// reacts to session events and exposes connect/disconnect to frontends.
type Companion struct {
	manager    *Manager
	settings   *SettingsStore
	supervisor *Supervisor
	notifier   Notifier
	frontends  []Frontend
	cfg        CompanionConfig
	logger     *slog.Logger

	mu            sync.Mutex
	baseCtx       context.Context
	speakingUntil time.Time
	sessionID     string
	lastUser      string
	lastAssistant string
	pending       *time.Timer
}

func NewCompanion(
	manager *Manager,
	settings *SettingsStore,
	policy ReconnectPolicy,
	notifier Notifier,
	frontends []Frontend,
	cfg CompanionConfig,
	logger *slog.Logger,
) *Companion {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	c := &Companion{
		manager:   manager,
		settings:  settings,
		notifier:  notifier,
		frontends: frontends,
		cfg:       cfg,
		logger:    logger,
		baseCtx:   context.Background(),
	}
	c.supervisor = NewSupervisor(policy, c.reconnect, manager.Stats(), logger)
	return c
}

// AddFrontend registers a control surface before Run. Frontends usually need
// the Companion itself, so they cannot always be passed to NewCompanion.
func (c *Companion) AddFrontend(f Frontend) {
	c.frontends = append(c.frontends, f)
}

func (c *Companion) Run(ctx context.Context) error {
	if _, err := c.settings.Load(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	for _, f := range c.frontends {
		c.logger.Info("starting frontend", "frontend", f.Name())
		if err := f.Start(ctx); err != nil {
			return fmt.Errorf("starting frontend %s: %w", f.Name(), err)
		}
		defer func(f Frontend) {
			if err := f.Stop(); err != nil {
				c.logger.Error("stopping frontend", "frontend", f.Name(), "error", err)
			}
		}(f)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.consumeEvents(gctx) })
	g.Go(func() error { return c.consumeErrors(gctx) })

	if c.cfg.AutoConnect {
		go func() {
			if err := c.Connect(gctx); err != nil {
				c.logger.Error("auto connect", "error", err)
			}
		}()
	}

	c.logger.Info("companion ready")

	err := g.Wait()

	c.supervisor.Stop()
	c.cancelPending()
	c.manager.Disconnect()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Connect is the user-initiated connect.
func (c *Companion) Connect(ctx context.Context) error {
	c.cancelPending()
	c.supervisor.ResetAttempts()
	return c.manager.Connect(ctx, c.settings.Current())
}

// Disconnect is the user-initiated disconnect; it suppresses auto-reconnect
// for the guard window.
func (c *Companion) Disconnect() {
	c.cancelPending()
	c.supervisor.MarkManualDisconnect()
	c.manager.Disconnect()
}

func (c *Companion) Settings() domain.Settings {
	return c.settings.Current()
}

// UpdateSettings persists settings and, when a session is open, reopens it
// so the new persona and voice take effect.
func (c *Companion) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	saved, err := c.settings.Update(ctx, func(current *domain.Settings) {
		*current = settings
	})
	if err != nil {
		return domain.Settings{}, err
	}

	if c.manager.Connected() {
		c.logger.Info("settings changed while connected, reconnecting")
		c.Disconnect()

		c.mu.Lock()
		c.pending = time.AfterFunc(c.cfg.SettingsReconnectDelay, func() {
			c.mu.Lock()
			c.pending = nil
			base := c.baseCtx
			c.mu.Unlock()

			if err := c.Connect(base); err != nil {
				c.logger.Error("reconnecting with new settings", "error", err)
			}
		})
		c.mu.Unlock()
	}

	return saved, nil
}

func (c *Companion) State() CompanionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.manager.Status()
	state := CompanionState{
		Status:            status,
		Speaking:          time.Now().Before(c.speakingUntil),
		Locked:            c.manager.Locked(),
		LastUserText:      c.lastUser,
		LastAssistantText: c.lastAssistant,
		Stats:             c.manager.Stats().Snapshot(),
	}
	if status == domain.StatusConnected {
		state.SessionID = c.sessionID
	}
	return state
}

func (c *Companion) reconnect() {
	c.mu.Lock()
	base := c.baseCtx
	c.mu.Unlock()

	c.logger.Info("auto reconnecting")
	if err := c.manager.Connect(base, c.settings.Current()); err != nil {
		c.logger.Error("auto reconnect", "error", err)
	}
}

func (c *Companion) cancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Companion) consumeEvents(ctx context.Context) error {
	events := c.manager.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Companion) consumeErrors(ctx context.Context) error {
	errs := c.manager.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			c.logger.Debug("session error", "error", err)
		}
	}
}

func (c *Companion) handleEvent(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventStatus:
		c.logger.Info("status changed", "status", ev.Status, "reason", ev.Reason, "session", ev.SessionID)
		c.mu.Lock()
		if ev.Status == domain.StatusConnected {
			c.sessionID = ev.SessionID
		}
		if ev.Status != domain.StatusConnected {
			c.speakingUntil = time.Time{}
		}
		c.mu.Unlock()
		c.supervisor.HandleStatus(ev)

	case domain.EventAudio:
		c.mu.Lock()
		c.speakingUntil = ev.At.Add(c.cfg.SpeakingHold)
		c.mu.Unlock()

	case domain.EventInterrupted:
		c.mu.Lock()
		c.speakingUntil = time.Time{}
		c.mu.Unlock()

	case domain.EventTranscription:
		c.logger.Debug("transcription", "user", ev.IsUser, "text", ev.Text)
		c.mu.Lock()
		if ev.IsUser {
			c.lastUser = ev.Text
		} else {
			c.lastAssistant = ev.Text
		}
		c.mu.Unlock()

	case domain.EventToolCall:
		c.logger.Info("tool call", "tool", ev.ToolCall.Name, "id", ev.ToolCall.ID)

	case domain.EventLock:
		c.logger.Info("lock screen changed", "locked", ev.Locked)

	case domain.EventError:
		c.logger.Error("session error", "error", ev.Err)
		if err := c.notifier.Notify(ctx, fmt.Sprintf("Voice companion error: %s", ev.Err)); err != nil {
			c.logger.Error("notifying error", "error", err)
		}
	}
}
