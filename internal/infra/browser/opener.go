// Package browser opens links requested by the model with the system
// browser or app handler.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/browser"
)

type Opener struct {
	dryRun bool
	open   func(url string) error
	logger *slog.Logger
}

// NewOpener returns an opener using the platform handler. With dryRun set it
// only logs the URL, which suits headless hosts.
func NewOpener(dryRun bool, logger *slog.Logger) *Opener {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Opener{dryRun: dryRun, open: browser.OpenURL, logger: logger}
}

func (o *Opener) Open(_ context.Context, url string) error {
	if o.dryRun {
		o.logger.Info("would open link", "url", url)
		return nil
	}
	if err := o.open(url); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	o.logger.Info("opened link", "url", url)
	return nil
}
