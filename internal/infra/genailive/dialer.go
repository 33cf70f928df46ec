// Package genailive opens realtime sessions through the official Gen AI SDK.
// It is the alternative to the raw websocket transport in package live.
package genailive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/genai"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

// liveSession is the part of *genai.Session the Conn uses.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)

type Dialer struct {
	connect connectFunc
	logger  *slog.Logger
}

func NewDialer(ctx context.Context, apiKey string, logger *slog.Logger) (*Dialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Dialer{
		connect: func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
			return client.Live.Connect(ctx, model, cfg)
		},
		logger: logger,
	}, nil
}

func (d *Dialer) Name() string {
	return "genai"
}

func (d *Dialer) Dial(ctx context.Context, cfg application.SessionConfig) (application.RealtimeConn, error) {
	session, err := d.connect(ctx, cfg.Model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connecting live session: %w", err)
	}

	c := &Conn{
		session:   session,
		inputRate: cfg.InputFormat.SampleRate,
		logger:    d.logger,
		reads:     make(chan readResult, 16),
		closed:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type readResult struct {
	msg *genai.LiveServerMessage
	err error
}

type Conn struct {
	session   liveSession
	inputRate int
	logger    *slog.Logger

	writeMu sync.Mutex
	reads   chan readResult

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *Conn) SendAudio(_ context.Context, chunk string) error {
	if c.isClosed() {
		return application.ErrSessionClosed
	}
	input, err := audioInput(chunk, c.inputRate)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.session.SendRealtimeInput(input); err != nil {
		return fmt.Errorf("sending realtime input: %w", err)
	}
	return nil
}

func (c *Conn) SendToolResponse(_ context.Context, resp domain.ToolResponse) error {
	if c.isClosed() {
		return application.ErrSessionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.session.SendToolResponse(toolResponseInput(resp)); err != nil {
		return fmt.Errorf("sending tool response: %w", err)
	}
	return nil
}

func (c *Conn) Receive(ctx context.Context) (*domain.ServerMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, application.ErrSessionClosed
		case r, ok := <-c.reads:
			if !ok || c.isClosed() {
				return nil, application.ErrSessionClosed
			}
			if r.err != nil {
				return nil, r.err
			}
			if r.msg.GoAway != nil {
				c.logger.Info("server will close session")
				continue
			}
			if r.msg.SetupComplete != nil && r.msg.ServerContent == nil && r.msg.ToolCall == nil {
				continue
			}
			return fromServerMessage(r.msg), nil
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.session.Close()
	})
	return err
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer close(c.reads)

	for {
		msg, err := c.session.Receive()
		if err == nil && msg == nil {
			continue
		}

		select {
		case c.reads <- readResult{msg: msg, err: err}:
		case <-c.closed:
			return
		}
		if err != nil {
			return
		}
	}
}
