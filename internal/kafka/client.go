package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// ClientOptions translates cfg into kgo options. It does not validate;
// call Validate first.
func ClientOptions(cfg *ClusterConfig) ([]kgo.Opt, error) {
	clientID := cfg.Producer.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
	}

	if mech := cfg.Auth.Mechanism; mech != "" {
		m, err := saslMechanism(cfg.Auth)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(m))
	}

	if cfg.TLS.Enabled {
		tc, err := tlsConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		opts = append(opts, kgo.DialTLSConfig(tc))
	}

	return append(opts, producerOptions(cfg.Producer)...), nil
}

func saslMechanism(a AuthConfig) (sasl.Mechanism, error) {
	s := scram.Auth{User: a.Username, Pass: a.Password}
	switch a.Mechanism {
	case "PLAIN":
		return plain.Auth{User: a.Username, Pass: a.Password}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return s.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return s.AsSha512Mechanism(), nil
	}
	return nil, fmt.Errorf("unsupported SASL mechanism: %s", a.Mechanism)
}

func tlsConfig(t TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.SkipVerify, //nolint:gosec // opt-in for test clusters
	}
	if t.CAFile != "" {
		pool, err := loadCAs(t.CAFile)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

func loadCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// producerOptions maps the producer settings. Acks weaker than all need
// idempotent writes disabled or kgo refuses the client.
func producerOptions(p ProducerConfig) []kgo.Opt {
	var opts []kgo.Opt
	switch p.Acks {
	case "leader":
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	}
	switch p.Compression {
	case "none":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.NoCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	if p.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(p.Linger))
	}
	if p.Timeout > 0 {
		opts = append(opts, kgo.ProduceRequestTimeout(p.Timeout))
	}
	return opts
}
