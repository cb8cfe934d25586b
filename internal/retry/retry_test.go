package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoff_ResetStartsOver(t *testing.T) {
	b := NewBackoff(Config{InitialInterval: 100 * time.Millisecond, MaxInterval: 10 * time.Second})
	if d := b.Next(); d != 100*time.Millisecond {
		t.Errorf("first delay: expected 100ms, got %v", d)
	}
	if d := b.Next(); d != 200*time.Millisecond {
		t.Errorf("second delay: expected 200ms, got %v", d)
	}
	if b.Attempt() != 2 {
		t.Errorf("expected attempt 2, got %d", b.Attempt())
	}
	b.Reset()
	if d := b.Next(); d != 100*time.Millisecond {
		t.Errorf("after reset: expected 100ms, got %v", d)
	}
}

func TestBackoff_NeverExhaustedWhenUnbounded(t *testing.T) {
	b := NewBackoff(Config{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	for i := 0; i < 1000; i++ {
		b.Next()
	}
	if b.Exhausted() {
		t.Fatal("unbounded backoff reported exhausted")
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	pe := Permanent(inner)
	if !errors.Is(pe, inner) {
		t.Fatal("expected PermanentError to unwrap to inner")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("regular"), false},
		{"permanent", Permanent(errors.New("x")), true},
		{"wrapped permanent", fmt.Errorf("outer: %w", Permanent(errors.New("x"))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalcBackoff_CapsAtMaxInterval(t *testing.T) {
	cfg := Config{InitialInterval: 100 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
	b := calcBackoff(10, cfg) // 100ms * 2^10 = 102.4s, should be capped
	if b != 500*time.Millisecond {
		t.Errorf("expected cap at 500ms, got %v", b)
	}
}

func TestCalcBackoff_JitterBounds(t *testing.T) {
	cfg := Config{InitialInterval: 100 * time.Millisecond, MaxInterval: 10 * time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		b := calcBackoff(0, cfg)
		if b < 80*time.Millisecond || b > 120*time.Millisecond {
			t.Errorf("backoff %v out of jitter bounds [80ms, 120ms]", b)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 0 {
		t.Errorf("expected unbounded MaxAttempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialInterval != time.Second {
		t.Errorf("expected InitialInterval 1s, got %v", cfg.InitialInterval)
	}
	if cfg.MaxInterval != 2*time.Minute {
		t.Errorf("expected MaxInterval 2m, got %v", cfg.MaxInterval)
	}
}
