package application

import "context"

// Frontend is a control surface started alongside the companion, such as the
// HTTP API.
type Frontend interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}
