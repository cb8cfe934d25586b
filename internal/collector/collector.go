// Package collector defines the destination for metric events.
package collector

import (
	"context"

	"github.com/lsm/tagpulse/internal/event"
)

// Collector delivers metric events to an external metrics service.
type Collector interface {
	// Send delivers one event. A non-nil error means the event was not
	// accepted; callers drop it rather than retry.
	Send(ctx context.Context, evt event.MetricEvent) error
	// Close releases the connection to the collector.
	Close() error
}
