package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const minimal = `
feed:
  auth:
    method: bearer
    bearerToken: abc
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
feed:
  url: https://feed.example.com/sample.json
  params:
    language: en
  auth:
    consumerKey: ck
    consumerSecret: cs
    token: t
    tokenSecret: ts
  stallTimeout: 30s
  backoff:
    maxAttempts: 10
    initialInterval: 2s
    maxInterval: 1m
    jitter: 0.5
filter: 'lang == "en"'
forwarder:
  eventTags: [twitter]
  ttl: 10m
  host: tagpulse-1
collector:
  type: riemann
  riemann:
    addr: riemann:5555
    timeout: 2s
    dialRate: 0.5
metricsAddr: ":9100"
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Feed.URL != "https://feed.example.com/sample.json" {
		t.Errorf("feed url: got %s", cfg.Feed.URL)
	}
	if cfg.Feed.Params["language"] != "en" {
		t.Errorf("params: got %v", cfg.Feed.Params)
	}
	if cfg.Feed.StallTimeout != 30*time.Second {
		t.Errorf("stall timeout: got %v", cfg.Feed.StallTimeout)
	}
	if cfg.Filter != `lang == "en"` {
		t.Errorf("filter: got %q", cfg.Filter)
	}

	sc := cfg.StreamConfig()
	if sc.Auth.ConsumerKey != "ck" || sc.Auth.TokenSecret != "ts" {
		t.Errorf("auth: got %+v", sc.Auth)
	}
	if sc.Backoff.MaxAttempts != 10 || sc.Backoff.InitialInterval != 2*time.Second || sc.Backoff.MaxInterval != time.Minute || sc.Backoff.Jitter != 0.5 {
		t.Errorf("backoff: got %+v", sc.Backoff)
	}

	tmpl := cfg.EventTemplate()
	if !slices.Equal(tmpl.Tags, []string{"twitter"}) || tmpl.TTL != 10*time.Minute || tmpl.Host != "tagpulse-1" {
		t.Errorf("template: got %+v", tmpl)
	}

	rc := cfg.RiemannConfig()
	if rc.Addr != "riemann:5555" || rc.Timeout != 2*time.Second || rc.DialRate != 0.5 {
		t.Errorf("riemann: got %+v", rc)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("metrics addr: got %s", cfg.MetricsAddr)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("feed url: got %s", cfg.Feed.URL)
	}
	if cfg.Feed.StallTimeout != DefaultStallTimeout {
		t.Errorf("stall timeout: got %v", cfg.Feed.StallTimeout)
	}
	if cfg.Feed.Backoff.InitialInterval != time.Second || cfg.Feed.Backoff.MaxInterval != 2*time.Minute {
		t.Errorf("backoff: got %+v", cfg.Feed.Backoff)
	}
	if !slices.Equal(cfg.Forwarder.EventTags, []string{"source-tag"}) {
		t.Errorf("event tags: got %v", cfg.Forwarder.EventTags)
	}
	if cfg.Forwarder.TTL != time.Hour {
		t.Errorf("ttl: got %v", cfg.Forwarder.TTL)
	}
	if cfg.Collector.Type != CollectorRiemann {
		t.Errorf("collector type: got %s", cfg.Collector.Type)
	}
	rc := cfg.RiemannConfig()
	if rc.Addr != DefaultRiemannAddr || rc.Timeout != DefaultRiemannTimeout || rc.DialRate != DefaultDialRate {
		t.Errorf("riemann: got %+v", rc)
	}
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("metrics addr: got %s", cfg.MetricsAddr)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_FEED_TOKEN", "s3cret")
	t.Setenv("TEST_RIEMANN_HOST", "metrics.internal")

	cfg, err := Parse([]byte(`
feed:
  auth:
    method: bearer
    bearerToken: ${TEST_FEED_TOKEN}
collector:
  riemann:
    addr: ${TEST_RIEMANN_HOST}:5555
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Feed.Auth.BearerToken != "s3cret" {
		t.Errorf("bearer token: got %q", cfg.Feed.Auth.BearerToken)
	}
	if cfg.Collector.Riemann.Addr != "metrics.internal:5555" {
		t.Errorf("riemann addr: got %q", cfg.Collector.Riemann.Addr)
	}
}

func TestParse_Kafka(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
collector:
  type: kafka
  kafka:
    brokers: [b1:9092, b2:9092]
    topic: tags
    sendTimeout: 3s
    auth:
      mechanism: SCRAM-SHA-256
      username: u
      password: p
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	kc := cfg.KafkaConfig()
	if kc.Topic != "tags" || !slices.Equal(kc.Cluster.Brokers, []string{"b1:9092", "b2:9092"}) {
		t.Errorf("kafka: got %+v", kc)
	}
	if kc.Cluster.Auth.Mechanism != "SCRAM-SHA-256" || kc.Cluster.Auth.Username != "u" {
		t.Errorf("kafka auth: got %+v", kc.Cluster.Auth)
	}
	if kc.SendTimeout != 3*time.Second {
		t.Errorf("kafka send timeout: got %v", kc.SendTimeout)
	}
}

func TestParse_ExplicitZeroes(t *testing.T) {
	cfg, err := Parse([]byte(`
feed:
  auth: {method: bearer, bearerToken: t}
  backoff: {jitter: 0}
collector:
  riemann: {dialRate: 0}
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if j := cfg.StreamConfig().Backoff.Jitter; j != 0 {
		t.Errorf("jitter: got %v, want 0", j)
	}
	if r := cfg.RiemannConfig().DialRate; r != 0 {
		t.Errorf("dial rate: got %v, want 0", r)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing oauth1 credentials",
			yaml:    "feed:\n  url: https://x\n",
			wantErr: []string{"auth.consumerKey is required", "auth.tokenSecret is required"},
		},
		{
			name:    "bad feed url",
			yaml:    "feed:\n  url: ftp://x\n  auth: {method: bearer, bearerToken: t}\n",
			wantErr: []string{"must be http or https"},
		},
		{
			name:    "unknown collector",
			yaml:    minimal + "collector:\n  type: statsd\n",
			wantErr: []string{`collector.type "statsd" is not valid`},
		},
		{
			name:    "kafka without brokers or topic",
			yaml:    minimal + "collector:\n  type: kafka\n",
			wantErr: []string{"brokers are required", "collector.kafka.topic is required"},
		},
		{
			name:    "bad backoff",
			yaml:    "feed:\n  auth: {method: bearer, bearerToken: t}\n  backoff: {initialInterval: 1m, maxInterval: 1s, jitter: 2}\n",
			wantErr: []string{"initialInterval <= maxInterval", "jitter must be between 0 and 1"},
		},
		{
			name:    "negative dial rate",
			yaml:    minimal + "collector:\n  riemann: {dialRate: -1}\n",
			wantErr: []string{"dialRate must not be negative"},
		},
		{
			name:    "negative kafka send timeout",
			yaml:    minimal + "collector:\n  type: kafka\n  kafka: {brokers: [b:9092], topic: t, sendTimeout: -1s}\n",
			wantErr: []string{"sendTimeout must not be negative"},
		},
		{
			name:    "unknown key",
			yaml:    minimal + "colector:\n  type: riemann\n",
			wantErr: []string{"parse yaml"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected %q in error, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tagpulse.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feed.Auth.BearerToken != "abc" {
		t.Errorf("bearer token: got %q", cfg.Feed.Auth.BearerToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(PathEnv, "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("default: got %s", got)
	}
	t.Setenv(PathEnv, "/env/tagpulse.yaml")
	if got := ResolvePath(""); got != "/env/tagpulse.yaml" {
		t.Errorf("env: got %s", got)
	}
	if got := ResolvePath("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("flag: got %s", got)
	}
}

func TestLoad_DeployExample(t *testing.T) {
	for _, k := range []string{"TAGPULSE_CONSUMER_KEY", "TAGPULSE_CONSUMER_SECRET", "TAGPULSE_ACCESS_TOKEN", "TAGPULSE_ACCESS_TOKEN_SECRET"} {
		t.Setenv(k, "x")
	}
	cfg, err := Load(filepath.Join("..", "..", "deploy", "tagpulse.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Collector.Type != CollectorRiemann || cfg.Filter == "" {
		t.Errorf("unexpected example config: %+v", cfg)
	}
	if cfg.Collector.Kafka.Producer.Compression != "zstd" {
		t.Errorf("kafka producer: got %+v", cfg.Collector.Kafka.Producer)
	}
}
