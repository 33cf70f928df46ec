package browser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpener_DryRunDoesNotLaunch(t *testing.T) {
	o := NewOpener(true, discardLogger())
	o.open = func(string) error {
		t.Fatal("dry run must not launch a browser")
		return nil
	}

	if err := o.Open(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpener_WrapsLaunchError(t *testing.T) {
	boom := errors.New("no handler")
	o := NewOpener(false, discardLogger())

	var got string
	o.open = func(url string) error {
		got = url
		return boom
	}

	err := o.Open(context.Background(), "whatsapp://send?text=hi")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if got != "whatsapp://send?text=hi" {
		t.Errorf("url: got %q", got)
	}
}
