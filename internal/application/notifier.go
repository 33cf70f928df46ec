package application

import (
	"context"
	"log/slog"
)

// Notifier delivers alerts the user should see even when no frontend is
// watching, such as a failed connect.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

// LogNotifier writes alerts to the log. It stands in for a push service on
// hosts without one.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Warn("notification", "message", message)
	return nil
}
