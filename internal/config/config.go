// Package config loads the tagpulse configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kafkacollector "github.com/lsm/tagpulse/internal/collector/kafka"
	"github.com/lsm/tagpulse/internal/collector/riemann"
	"github.com/lsm/tagpulse/internal/event"
	"github.com/lsm/tagpulse/internal/kafka"
	"github.com/lsm/tagpulse/internal/retry"
	"github.com/lsm/tagpulse/internal/source/stream"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "TAGPULSE_CONFIG"

// DefaultPath is used when neither the flag nor PathEnv is set.
const DefaultPath = "/etc/tagpulse/tagpulse.yaml"

const (
	CollectorRiemann = "riemann"
	CollectorKafka   = "kafka"
)

// Defaults.
const (
	DefaultFeedURL        = "https://stream.twitter.com/1.1/statuses/sample.json"
	DefaultRiemannAddr    = "localhost:5555"
	DefaultRiemannTimeout = 5 * time.Second
	DefaultDialRate       = 1.0
	DefaultStallTimeout   = 90 * time.Second
	DefaultMetricsAddr    = ":9090"
)

// Config is the tagpulse configuration file.
type Config struct {
	Feed        FeedConfig      `yaml:"feed"`
	Filter      string          `yaml:"filter,omitempty"` // CEL predicate over id, text, lang, user
	Forwarder   ForwarderConfig `yaml:"forwarder"`
	Collector   CollectorConfig `yaml:"collector"`
	MetricsAddr string          `yaml:"metricsAddr"`
}

// FeedConfig describes the streaming feed subscription.
type FeedConfig struct {
	URL          string            `yaml:"url"`
	Params       map[string]string `yaml:"params,omitempty"`
	Auth         FeedAuthConfig    `yaml:"auth"`
	StallTimeout time.Duration     `yaml:"stallTimeout"`
	MaxLineBytes int               `yaml:"maxLineBytes,omitempty"`
	Backoff      BackoffConfig     `yaml:"backoff"`
}

// FeedAuthConfig holds feed credentials. Use ${VAR} references to keep
// secrets out of the file.
type FeedAuthConfig struct {
	Method         string `yaml:"method"` // oauth1 (default) or bearer
	ConsumerKey    string `yaml:"consumerKey,omitempty"`
	ConsumerSecret string `yaml:"consumerSecret,omitempty"`
	Token          string `yaml:"token,omitempty"`
	TokenSecret    string `yaml:"tokenSecret,omitempty"`
	BearerToken    string `yaml:"bearerToken,omitempty"`
}

// BackoffConfig controls feed reconnects. MaxAttempts 0 retries forever.
type BackoffConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Jitter          *float64      `yaml:"jitter"` // unset means 0.2; 0 disables jitter
}

// ForwarderConfig shapes the events built for each tag.
type ForwarderConfig struct {
	EventTags []string      `yaml:"eventTags,omitempty"`
	TTL       time.Duration `yaml:"ttl"`
	Host      string        `yaml:"host,omitempty"` // defaults to the local hostname
}

// CollectorConfig selects and configures the collector.
type CollectorConfig struct {
	Type    string               `yaml:"type"`
	Riemann RiemannConfig        `yaml:"riemann"`
	Kafka   KafkaCollectorConfig `yaml:"kafka"`
}

// RiemannConfig configures the Riemann TCP client.
type RiemannConfig struct {
	Addr      string        `yaml:"addr"`
	Timeout   time.Duration `yaml:"timeout"`
	DialRate  *float64      `yaml:"dialRate"` // dials per second; unset means 1, 0 disables throttling
	DialBurst int           `yaml:"dialBurst,omitempty"`
}

// KafkaCollectorConfig configures the Kafka collector.
type KafkaCollectorConfig struct {
	kafka.ClusterConfig `yaml:",inline"`
	Topic               string        `yaml:"topic"`
	SendTimeout         time.Duration `yaml:"sendTimeout,omitempty"` // bound on one send (default 5s)
}

// Load reads, expands, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document. ${VAR} and $VAR references are
// replaced from the environment first; unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePath returns flagPath, then PathEnv, then DefaultPath.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

func (c *Config) applyDefaults() {
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.StallTimeout == 0 {
		c.Feed.StallTimeout = DefaultStallTimeout
	}
	def := retry.DefaultConfig()
	if c.Feed.Backoff.InitialInterval == 0 {
		c.Feed.Backoff.InitialInterval = def.InitialInterval
	}
	if c.Feed.Backoff.MaxInterval == 0 {
		c.Feed.Backoff.MaxInterval = def.MaxInterval
	}
	if c.Feed.Backoff.Jitter == nil {
		c.Feed.Backoff.Jitter = &def.Jitter
	}
	if len(c.Forwarder.EventTags) == 0 {
		c.Forwarder.EventTags = event.DefaultTags
	}
	if c.Forwarder.TTL == 0 {
		c.Forwarder.TTL = event.DefaultTTL
	}
	if c.Forwarder.Host == "" {
		c.Forwarder.Host, _ = os.Hostname()
	}
	if c.Collector.Type == "" {
		c.Collector.Type = CollectorRiemann
	}
	if c.Collector.Riemann.Addr == "" {
		c.Collector.Riemann.Addr = DefaultRiemannAddr
	}
	if c.Collector.Riemann.Timeout == 0 {
		c.Collector.Riemann.Timeout = DefaultRiemannTimeout
	}
	if c.Collector.Riemann.DialRate == nil {
		rate := DefaultDialRate
		c.Collector.Riemann.DialRate = &rate
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if !strings.HasPrefix(c.Feed.URL, "http://") && !strings.HasPrefix(c.Feed.URL, "https://") {
		errs = append(errs, fmt.Errorf("feed.url %q must be http or https", c.Feed.URL))
	}
	if err := c.feedAuth().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feed: %w", err))
	}
	if c.Feed.StallTimeout < 0 {
		errs = append(errs, errors.New("feed.stallTimeout must not be negative"))
	}
	if c.Feed.Backoff.MaxAttempts < 0 {
		errs = append(errs, errors.New("feed.backoff.maxAttempts must not be negative"))
	}
	if c.Feed.Backoff.InitialInterval < 0 || c.Feed.Backoff.MaxInterval < c.Feed.Backoff.InitialInterval {
		errs = append(errs, errors.New("feed.backoff intervals must satisfy 0 <= initialInterval <= maxInterval"))
	}
	if j := c.Feed.Backoff.Jitter; j != nil && (*j < 0 || *j > 1) {
		errs = append(errs, errors.New("feed.backoff.jitter must be between 0 and 1"))
	}
	if c.Forwarder.TTL < 0 {
		errs = append(errs, errors.New("forwarder.ttl must not be negative"))
	}

	switch c.Collector.Type {
	case CollectorRiemann:
		if c.Collector.Riemann.Timeout < 0 {
			errs = append(errs, errors.New("collector.riemann.timeout must not be negative"))
		}
		if r := c.Collector.Riemann.DialRate; r != nil && *r < 0 {
			errs = append(errs, errors.New("collector.riemann.dialRate must not be negative"))
		}
	case CollectorKafka:
		if err := c.Collector.Kafka.ClusterConfig.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("collector.kafka: %w", err))
		}
		if c.Collector.Kafka.SendTimeout < 0 {
			errs = append(errs, errors.New("collector.kafka.sendTimeout must not be negative"))
		}
		if c.Collector.Kafka.Topic == "" {
			errs = append(errs, errors.New("collector.kafka.topic is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("collector.type %q is not valid (must be riemann or kafka)", c.Collector.Type))
	}

	return errors.Join(errs...)
}

func (c *Config) feedAuth() stream.AuthConfig {
	a := c.Feed.Auth
	return stream.AuthConfig{
		Method:         a.Method,
		ConsumerKey:    a.ConsumerKey,
		ConsumerSecret: a.ConsumerSecret,
		Token:          a.Token,
		TokenSecret:    a.TokenSecret,
		BearerToken:    a.BearerToken,
	}
}

// StreamConfig returns the stream source configuration.
func (c *Config) StreamConfig() stream.Config {
	b := c.Feed.Backoff
	return stream.Config{
		URL:          c.Feed.URL,
		Params:       c.Feed.Params,
		Auth:         c.feedAuth(),
		StallTimeout: c.Feed.StallTimeout,
		MaxLineBytes: c.Feed.MaxLineBytes,
		Backoff: retry.Config{
			MaxAttempts:     b.MaxAttempts,
			InitialInterval: b.InitialInterval,
			MaxInterval:     b.MaxInterval,
			Jitter:          deref(b.Jitter),
		},
	}
}

// EventTemplate returns the template the forwarder builds events from.
func (c *Config) EventTemplate() event.Template {
	return event.Template{
		Tags: c.Forwarder.EventTags,
		TTL:  c.Forwarder.TTL,
		Host: c.Forwarder.Host,
	}
}

// RiemannConfig returns the Riemann client configuration.
func (c *Config) RiemannConfig() riemann.Config {
	r := c.Collector.Riemann
	return riemann.Config{
		Addr:      r.Addr,
		Timeout:   r.Timeout,
		DialRate:  deref(r.DialRate),
		DialBurst: r.DialBurst,
	}
}

// KafkaConfig returns the Kafka collector configuration.
func (c *Config) KafkaConfig() kafkacollector.Config {
	cluster := c.Collector.Kafka.ClusterConfig
	return kafkacollector.Config{
		Cluster:     &cluster,
		Topic:       c.Collector.Kafka.Topic,
		SendTimeout: c.Collector.Kafka.SendTimeout,
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
