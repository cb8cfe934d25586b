package kafka

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

func TestClusterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClusterConfig
		wantErr string
	}{
		{
			name: "brokers only",
			cfg:  ClusterConfig{Brokers: []string{"localhost:9092"}},
		},
		{
			name:    "missing brokers",
			cfg:     ClusterConfig{},
			wantErr: "brokers are required",
		},
		{
			name: "scram with credentials",
			cfg: ClusterConfig{
				Brokers: []string{"b:9092"},
				Auth:    AuthConfig{Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"},
			},
		},
		{
			name: "unknown mechanism",
			cfg: ClusterConfig{
				Brokers: []string{"b:9092"},
				Auth:    AuthConfig{Mechanism: "GSSAPI", Username: "u", Password: "p"},
			},
			wantErr: "auth.mechanism",
		},
		{
			name: "mechanism without password",
			cfg: ClusterConfig{
				Brokers: []string{"b:9092"},
				Auth:    AuthConfig{Mechanism: "PLAIN", Username: "u"},
			},
			wantErr: "auth.password",
		},
		{
			name: "ca file without tls",
			cfg: ClusterConfig{
				Brokers: []string{"b:9092"},
				TLS:     TLSConfig{CAFile: "/etc/ca.pem"},
			},
			wantErr: "tls.enabled",
		},
		{
			name:    "bad acks",
			cfg:     ClusterConfig{Brokers: []string{"b:9092"}, Producer: ProducerConfig{Acks: "two"}},
			wantErr: "producer.acks",
		},
		{
			name:    "bad compression",
			cfg:     ClusterConfig{Brokers: []string{"b:9092"}, Producer: ProducerConfig{Compression: "brotli"}},
			wantErr: "producer.compression",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ClusterConfig
		wantOpts int
	}{
		{"plain brokers", ClusterConfig{Brokers: []string{"b:9092"}}, 2},
		{"sasl plain", ClusterConfig{Brokers: []string{"b:9092"}, Auth: AuthConfig{Mechanism: "PLAIN", Username: "u", Password: "p"}}, 3},
		{"scram 256", ClusterConfig{Brokers: []string{"b:9092"}, Auth: AuthConfig{Mechanism: "SCRAM-SHA-256", Username: "u", Password: "p"}}, 3},
		{"tls", ClusterConfig{Brokers: []string{"b:9092"}, TLS: TLSConfig{Enabled: true}}, 3},
		{"leader acks", ClusterConfig{Brokers: []string{"b:9092"}, Producer: ProducerConfig{Acks: "leader"}}, 4},
		{"tuned producer", ClusterConfig{Brokers: []string{"b:9092"}, Producer: ProducerConfig{Compression: "zstd", Linger: 5 * time.Millisecond, Timeout: time.Second}}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ClientOptions(&tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(opts) != tt.wantOpts {
				t.Errorf("expected %d options, got %d", tt.wantOpts, len(opts))
			}
		})
	}
}

func TestClientOptions_UnsupportedMechanism(t *testing.T) {
	_, err := ClientOptions(&ClusterConfig{Brokers: []string{"b:9092"}, Auth: AuthConfig{Mechanism: "OAUTHBEARER"}})
	if err == nil || !strings.Contains(err.Error(), "unsupported SASL mechanism") {
		t.Fatalf("expected unsupported mechanism error, got %v", err)
	}
}

func TestClientOptions_BadCAFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.pem")
	if _, err := ClientOptions(&ClusterConfig{Brokers: []string{"b"}, TLS: TLSConfig{Enabled: true, CAFile: missing}}); err == nil {
		t.Fatal("expected error for missing CA file")
	}

	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := ClientOptions(&ClusterConfig{Brokers: []string{"b"}, TLS: TLSConfig{Enabled: true, CAFile: garbage}})
	if err == nil || !strings.Contains(err.Error(), "no certificates found") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestClientOptions_AcceptedByKgo(t *testing.T) {
	for _, acks := range []string{"", "all", "leader", "none"} {
		t.Run("acks="+acks, func(t *testing.T) {
			opts, err := ClientOptions(&ClusterConfig{
				Brokers:  []string{"127.0.0.1:1"},
				Producer: ProducerConfig{Acks: acks, Compression: "lz4"},
			})
			if err != nil {
				t.Fatalf("options: %v", err)
			}
			client, err := kgo.NewClient(opts...)
			if err != nil {
				t.Fatalf("kgo rejected options: %v", err)
			}
			client.Close()
		})
	}
}
