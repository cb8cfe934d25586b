// Package kafka builds franz-go client options from the cluster settings
// in the config file.
package kafka

import (
	"errors"
	"fmt"
	"time"
)

// ClusterConfig is a Kafka cluster plus the producer behaviour tagpulse
// wants from it.
type ClusterConfig struct {
	Brokers  []string       `yaml:"brokers"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	TLS      TLSConfig      `yaml:"tls,omitempty"`
	Producer ProducerConfig `yaml:"producer,omitempty"`
}

// AuthConfig selects SASL. An empty Mechanism disables it.
type AuthConfig struct {
	Mechanism string `yaml:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// TLSConfig enables TLS to the brokers, optionally with a private CA.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CAFile     string `yaml:"caFile,omitempty"`
	SkipVerify bool   `yaml:"skipVerify,omitempty"`
}

// ProducerConfig tunes how metric events are written.
type ProducerConfig struct {
	ClientID    string        `yaml:"clientId,omitempty"`
	Acks        string        `yaml:"acks,omitempty"`        // all (default), leader, none
	Compression string        `yaml:"compression,omitempty"` // none, gzip, snappy, lz4, zstd
	Linger      time.Duration `yaml:"linger,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // produce request timeout
}

const defaultClientID = "tagpulse"

var (
	mechanisms   = []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"}
	acks         = []string{"", "all", "leader", "none"}
	compressions = []string{"", "none", "gzip", "snappy", "lz4", "zstd"}
)

// Validate returns every problem in the cluster settings, joined.
func (c *ClusterConfig) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("brokers are required"))
	}
	errs = append(errs, c.Auth.validate()...)
	if c.TLS.CAFile != "" && !c.TLS.Enabled {
		errs = append(errs, errors.New("tls.caFile requires tls.enabled"))
	}
	errs = append(errs, c.Producer.validate()...)
	return errors.Join(errs...)
}

func (a AuthConfig) validate() []error {
	if a.Mechanism == "" {
		return nil
	}
	var errs []error
	if !oneOf(a.Mechanism, mechanisms) {
		errs = append(errs, fmt.Errorf("auth.mechanism %q is not valid (must be PLAIN, SCRAM-SHA-256, or SCRAM-SHA-512)", a.Mechanism))
	}
	if a.Username == "" || a.Password == "" {
		errs = append(errs, fmt.Errorf("auth.username and auth.password are required for %s", a.Mechanism))
	}
	return errs
}

func (p ProducerConfig) validate() []error {
	var errs []error
	if !oneOf(p.Acks, acks) {
		errs = append(errs, fmt.Errorf("producer.acks %q is not valid (must be all, leader, or none)", p.Acks))
	}
	if !oneOf(p.Compression, compressions) {
		errs = append(errs, fmt.Errorf("producer.compression %q is not valid", p.Compression))
	}
	if p.Linger < 0 || p.Timeout < 0 {
		errs = append(errs, errors.New("producer.linger and producer.timeout must not be negative"))
	}
	return errs
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
