package application

import (
	"context"
	"errors"

	"voice-companion/internal/domain"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrNotConnected  = errors.New("not connected")
)

// SessionConfig is everything the remote endpoint needs at open time.
type SessionConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []domain.ToolDeclaration
	InputFormat       AudioFormat
	OutputFormat      AudioFormat
	Transcription     bool
}

type RealtimeDialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (RealtimeConn, error)
	Name() string
}

// RealtimeConn is one open bidirectional session. Receive returns io.EOF or
// ErrSessionClosed once the session has ended.
type RealtimeConn interface {
	SendAudio(ctx context.Context, chunk string) error
	SendToolResponse(ctx context.Context, resp domain.ToolResponse) error
	Receive(ctx context.Context) (*domain.ServerMessage, error)
	Close() error
}
