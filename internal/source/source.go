package source

import "context"

// Status is one item received from the feed.
type Status struct {
	ID   string
	Text string
	Lang string
	User string
}

// Source consumes statuses from an external feed.
type Source interface {
	// Start subscribes and delivers statuses to handler one at a time, in
	// feed order. Blocks until ctx is cancelled, the handler returns an
	// error, or the feed fails permanently.
	Start(ctx context.Context, handler func(context.Context, Status) error) error
	// Close performs graceful shutdown.
	Close() error
}
