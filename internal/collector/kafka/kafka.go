// Package kafka implements a collector that publishes metric events as
// JSON records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsm/tagpulse/internal/event"
	"github.com/lsm/tagpulse/internal/kafka"
)

// producer abstracts the kafka client methods used by Collector for testing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Config holds Kafka collector configuration.
type Config struct {
	Cluster *kafka.ClusterConfig
	Topic   string
	// SendTimeout bounds one Send, broker retries included (default 5s).
	// Without it an unreachable cluster would hold the pipeline forever.
	SendTimeout time.Duration
}

// DefaultSendTimeout is used when Config.SendTimeout is unset.
const DefaultSendTimeout = 5 * time.Second

// record is the JSON shape written for each event.
type record struct {
	Service string   `json:"service"`
	Metric  float64  `json:"metric"`
	Tags    []string `json:"tags"`
	TTL     float32  `json:"ttl"`
	Host    string   `json:"host,omitempty"`
	Time    int64    `json:"time,omitempty"`
}

// Collector publishes events to a Kafka topic, keyed by service so one
// tag's events stay on one partition.
type Collector struct {
	client  producer
	topic   string
	timeout time.Duration
}

// NewCollector creates a Kafka collector. The client connects to brokers
// in the background; unreachable brokers surface as Send errors.
func NewCollector(cfg Config) (*Collector, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	opts, err := kafka.ClientOptions(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	opts = append(opts,
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordDeliveryTimeout(timeout),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Collector{client: client, topic: cfg.Topic, timeout: timeout}, nil
}

// Send publishes evt and waits for the broker acknowledgement, at most
// the send timeout.
func (c *Collector) Send(ctx context.Context, evt event.MetricEvent) error {
	rec := record{
		Service: evt.Service,
		Metric:  evt.Metric,
		Tags:    evt.Tags,
		TTL:     evt.TTLSeconds(),
		Host:    evt.Host,
	}
	if !evt.Time.IsZero() {
		rec.Time = evt.Time.Unix()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	results := c.client.ProduceSync(ctx, &kgo.Record{
		Topic: c.topic,
		Key:   []byte(evt.Service),
		Value: value,
	})
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close shuts down the Kafka client.
func (c *Collector) Close() error {
	c.client.Close()
	return nil
}
