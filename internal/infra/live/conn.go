package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

type readResult struct {
	msg *serverMessage
	err error
}

// Conn is one Live session over a websocket. A single reader goroutine owns
// ReadMessage; writes are serialized by writeMu.
type Conn struct {
	ws        *websocket.Conn
	inputRate int
	writeWait time.Duration
	logger    *slog.Logger

	writeMu sync.Mutex
	reads   chan readResult

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, cfg Config, inputRate int, logger *slog.Logger) *Conn {
	ws.SetReadLimit(cfg.MaxMessageSize)
	return &Conn{
		ws:        ws,
		inputRate: inputRate,
		writeWait: cfg.WriteWait,
		logger:    logger,
		reads:     make(chan readResult, 16),
		closed:    make(chan struct{}),
	}
}

func (c *Conn) start(heartbeat time.Duration) {
	go c.readLoop()
	if heartbeat > 0 {
		go c.heartbeat(heartbeat)
	}
}

func (c *Conn) SendAudio(_ context.Context, chunk string) error {
	return c.send(clientMessage{RealtimeInput: newAudioInput(chunk, c.inputRate)})
}

func (c *Conn) SendToolResponse(_ context.Context, resp domain.ToolResponse) error {
	return c.send(clientMessage{ToolResponse: newToolResponse(resp)})
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
				c.logger.Info("server will close session", "time_left", r.msg.GoAway.TimeLeft)
				continue
			}
			return r.msg.toDomain(), nil
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
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

func (c *Conn) send(msg clientMessage) error {
	if c.isClosed() {
		return application.ErrSessionClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// readMessage reads and decodes one frame. Used directly during setup,
// before the read loop takes over.
func (c *Conn) readMessage() (*serverMessage, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type: %d", msgType)
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding server message: %w", err)
	}
	return &msg, nil
}

func (c *Conn) readLoop() {
	defer close(c.reads)

	for {
		msg, err := c.readMessage()
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.logger.Warn("skipping malformed server message", "error", err)
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("remote closed session: %w", application.ErrSessionClosed)
			}
			select {
			case c.reads <- readResult{err: err}:
			case <-c.closed:
			}
			return
		}

		select {
		case c.reads <- readResult{msg: msg}:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("heartbeat ping failed", "error", err)
				return
			}
		}
	}
}
