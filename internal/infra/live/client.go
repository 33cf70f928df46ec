package live

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voice-companion/internal/application"
	"voice-companion/internal/infra"
)

const DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

var ErrSetupFailed = errors.New("live session setup failed")

type Config struct {
	URL            string
	APIKey         string
	DialTimeout    time.Duration
	SetupTimeout   time.Duration
	WriteWait      time.Duration
	Heartbeat      time.Duration
	MaxMessageSize int64
	Retry          infra.RetryConfig
}

func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		DialTimeout:    45 * time.Second,
		SetupTimeout:   10 * time.Second,
		WriteWait:      10 * time.Second,
		Heartbeat:      30 * time.Second,
		MaxMessageSize: 16 * 1024 * 1024,
		Retry:          infra.RetryConfig{MaxAttempts: 1},
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.SetupTimeout == 0 {
		c.SetupTimeout = d.SetupTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}
}

// Dialer opens Live sessions over a raw websocket speaking the JSON protocol.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	cfg.setDefaults()
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) Name() string {
	return "websocket"
}

func (d *Dialer) Dial(ctx context.Context, cfg application.SessionConfig) (application.RealtimeConn, error) {
	retry := d.cfg.Retry
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.logger.Warn("live dial attempt failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	var conn *Conn
	err := infra.WithRetry(ctx, retry, func() error {
		c, err := d.dial(ctx, cfg)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) dial(ctx context.Context, cfg application.SessionConfig) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	headers := http.Header{}
	if d.cfg.APIKey != "" {
		headers.Set("x-goog-api-key", d.cfg.APIKey)
	}

	ws, resp, err := dialer.DialContext(ctx, d.cfg.URL, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
			if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
				return nil, infra.Permanent(fmt.Errorf("connecting to live endpoint: %w", err))
			}
		}
		return nil, fmt.Errorf("connecting to live endpoint: %w", err)
	}

	conn := newConn(ws, d.cfg, cfg.InputFormat.SampleRate, d.logger)

	if err := conn.send(clientMessage{Setup: newSetup(cfg)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending setup: %w", err)
	}

	if err := d.awaitSetup(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	conn.start(d.cfg.Heartbeat)
	d.logger.Debug("live session established", "model", cfg.Model)
	return conn, nil
}

func (d *Dialer) awaitSetup(ctx context.Context, conn *Conn) error {
	deadline := time.Now().Add(d.cfg.SetupTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := conn.readMessage()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	if msg.SetupComplete == nil {
		return infra.Permanent(fmt.Errorf("%w: first message was not setupComplete", ErrSetupFailed))
	}

	if err := conn.ws.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clearing read deadline: %w", err)
	}
	return nil
}
