// Package event defines the metric event emitted for every extracted tag.
package event

import (
	"os"
	"slices"
	"time"
)

const (
	// DefaultMetric is the counter increment carried by each event.
	DefaultMetric = 1.0
	// DefaultTTL is how long the collector keeps an event alive.
	DefaultTTL = time.Hour
)

// DefaultTags is the tag set attached to events when none is configured.
var DefaultTags = []string{"source-tag"}

// MetricEvent is one occurrence of a tag, ready to send to a collector.
type MetricEvent struct {
	Service string
	Metric  float64
	Tags    []string
	TTL     time.Duration
	Host    string
	Time    time.Time
}

// TTLSeconds returns the TTL in the float seconds collectors expect.
func (e MetricEvent) TTLSeconds() float32 {
	return float32(e.TTL.Seconds())
}

// Template holds the fields shared by every event a forwarder builds.
type Template struct {
	Tags []string
	TTL  time.Duration
	Host string
}

// DefaultTemplate returns the template with default tags and TTL and the
// local hostname.
func DefaultTemplate() Template {
	host, _ := os.Hostname()
	return Template{Tags: DefaultTags, TTL: DefaultTTL, Host: host}
}

// New builds the event for one tag occurrence. The returned event does not
// share its Tags slice with the template.
func (t Template) New(tag string, now time.Time) MetricEvent {
	tags := t.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return MetricEvent{
		Service: tag,
		Metric:  DefaultMetric,
		Tags:    slices.Clone(tags),
		TTL:     ttl,
		Host:    t.Host,
		Time:    now,
	}
}
