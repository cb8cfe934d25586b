package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tagpulse Prometheus metrics.
type Metrics struct {
	StatusesTotal  *prometheus.CounterVec
	TagsTotal      prometheus.Counter
	EventsTotal    *prometheus.CounterVec
	SendDuration   *prometheus.HistogramVec
	FeedReconnects *prometheus.CounterVec
	CollectorState *prometheus.GaugeVec
	FilterErrors   prometheus.Counter
}

// NewMetrics creates and registers all tagpulse metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StatusesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagpulse_statuses_total",
			Help: "Statuses received from the feed, by outcome.",
		}, []string{"result"}),
		TagsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagpulse_tags_extracted_total",
			Help: "Tags extracted from status text.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagpulse_events_total",
			Help: "Metric events handed to the collector, by outcome.",
		}, []string{"collector", "status"}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tagpulse_send_duration_seconds",
			Help:    "Time spent sending one event to the collector.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		FeedReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagpulse_feed_reconnects_total",
			Help: "Feed reconnect attempts, by cause.",
		}, []string{"reason"}),
		CollectorState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tagpulse_collector_connection_state",
			Help: "1 for the collector connection's current state, 0 otherwise.",
		}, []string{"state"}),
		FilterErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagpulse_filter_errors_total",
			Help: "Statuses skipped because the filter failed to evaluate.",
		}),
	}
}

// SetCollectorState marks state as the current collector connection state.
func (m *Metrics) SetCollectorState(state string, all ...string) {
	for _, s := range all {
		m.CollectorState.WithLabelValues(s).Set(0)
	}
	m.CollectorState.WithLabelValues(state).Set(1)
}
