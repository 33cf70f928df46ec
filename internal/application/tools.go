package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"voice-companion/internal/domain"
)

const DefaultShutdownDelay = time.Second

const (
	resultLinkOpened  = "Successfully opened the link or app intent for the user."
	resultLocked      = "Simulated phone lock screen."
	resultUnlocked    = "Simulated phone unlock."
	resultNotLocked   = "Phone was not locked."
	resultShuttingOff = "Shutting down system now."
)

type LinkOpener interface {
	Open(ctx context.Context, url string) error
}

// LockScreen is the simulated device lock. It outlives sessions, like an
// overlay left on screen across reconnects.
type LockScreen struct {
	locked atomic.Bool
}

func (l *LockScreen) Lock() {
	l.locked.Store(true)
}

// Unlock reports whether the screen was locked.
func (l *LockScreen) Unlock() bool {
	return l.locked.Swap(false)
}

func (l *LockScreen) Locked() bool {
	return l.locked.Load()
}

type ToolEffect int

const (
	EffectNone ToolEffect = iota
	EffectLocked
	EffectUnlocked
	EffectShutdown
)

type ToolConfig struct {
	ShutdownDelay  time.Duration
	RespondUnknown bool
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ShutdownDelay:  DefaultShutdownDelay,
		RespondUnknown: true,
	}
}

type ToolDispatcher struct {
	opener LinkOpener
	lock   *LockScreen
	cfg    ToolConfig
	logger *slog.Logger
}

func NewToolDispatcher(opener LinkOpener, lock *LockScreen, cfg ToolConfig, logger *slog.Logger) *ToolDispatcher {
	if lock == nil {
		lock = &LockScreen{}
	}
	return &ToolDispatcher{
		opener: opener,
		lock:   lock,
		cfg:    cfg,
		logger: logger,
	}
}

func (d *ToolDispatcher) ShutdownDelay() time.Duration {
	return d.cfg.ShutdownDelay
}

func (d *ToolDispatcher) LockScreen() *LockScreen {
	return d.lock
}

// Dispatch runs one call. ok is false when no response must be sent.
func (d *ToolDispatcher) Dispatch(ctx context.Context, call domain.ToolCall) (resp domain.ToolResponse, effect ToolEffect, ok bool) {
	switch call.Name {
	case domain.ToolOpenLink:
		return d.respond(call, d.openLink(ctx, call)), EffectNone, true

	case domain.ToolSystemAction:
		result, effect := d.systemAction(call)
		return d.respond(call, result), effect, true

	default:
		d.logger.Warn("unknown tool call", "name", call.Name, "id", call.ID)
		if !d.cfg.RespondUnknown {
			return domain.ToolResponse{}, EffectNone, false
		}
		return d.respond(call, fmt.Sprintf("Tool '%s' is not supported.", call.Name)), EffectNone, true
	}
}

func (d *ToolDispatcher) respond(call domain.ToolCall, result string) domain.ToolResponse {
	return domain.ToolResponse{
		Name:   call.Name,
		ID:     call.ID,
		Result: result,
	}
}

// openLink never reports failure back to the model; problems are only logged.
func (d *ToolDispatcher) openLink(ctx context.Context, call domain.ToolCall) string {
	url := call.Arg("url")
	d.logger.Info("opening link", "url", url, "reason", call.Arg("reason"))

	if url == "" {
		d.logger.Warn("open_link called without url", "id", call.ID)
	} else if err := d.opener.Open(ctx, url); err != nil {
		d.logger.Error("opening link", "url", url, "error", err)
	}

	return resultLinkOpened
}

func (d *ToolDispatcher) systemAction(call domain.ToolCall) (string, ToolEffect) {
	action := domain.SystemAction(call.Arg("action"))
	d.logger.Info("system action", "action", action)

	switch action {
	case domain.SystemActionLock:
		d.lock.Lock()
		return resultLocked, EffectLocked

	case domain.SystemActionUnlock:
		if d.lock.Unlock() {
			return resultUnlocked, EffectUnlocked
		}
		return resultNotLocked, EffectNone

	case domain.SystemActionSleep, domain.SystemActionDisconnect, domain.SystemActionShutdown:
		return resultShuttingOff, EffectShutdown

	default:
		return fmt.Sprintf("System action '%s' is not fully supported in this environment, but acknowledged.", action), EffectNone
	}
}
