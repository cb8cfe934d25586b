// Package riemann implements a collector that sends events to a Riemann
// server over TCP.
package riemann

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lsm/tagpulse/internal/event"
	"github.com/lsm/tagpulse/internal/riemann"
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("riemann client closed")
	// ErrThrottled is returned when a reconnect is needed but the dial
	// budget is spent.
	ErrThrottled = errors.New("riemann reconnect throttled")
)

// RemoteError is a message rejected by the server.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return "riemann rejected message"
	}
	return "riemann rejected message: " + e.Reason
}

// State is the lifecycle state of the client's connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds Riemann client configuration.
type Config struct {
	Addr      string
	Timeout   time.Duration // dial and per-send I/O deadline (default 5s)
	DialRate  float64       // dials per second; 0 disables throttling
	DialBurst int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStateHook registers fn to be called on every state transition.
// fn runs with the client lock held and must not call back into the client.
func WithStateHook(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// Client sends events to Riemann. The connection is opened on the first
// Send, reused while healthy, and dropped on any I/O error; the next Send
// dials again. Safe for concurrent use, though sends are serialized.
type Client struct {
	mu      sync.Mutex
	addr    string
	timeout time.Duration
	conn    net.Conn
	state   atomic.Int32 // State; written under mu
	closed  bool
	limiter *rate.Limiter
	dialer  net.Dialer
	logger  *slog.Logger
	onState func(State)
}

// NewClient creates a Riemann client. No connection is made until Send.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("riemann address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	c := &Client{
		addr:    cfg.Addr,
		timeout: cfg.Timeout,
		dialer:  net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second},
		logger:  slog.Default(),
	}
	if cfg.DialRate > 0 {
		burst := cfg.DialBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.DialRate), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current connection state. It does not wait for an
// in-flight Send.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Send delivers evt and waits for the server's acknowledgement.
func (c *Client) Send(ctx context.Context, evt event.MetricEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.disconnect(err)
		return fmt.Errorf("set deadline: %w", err)
	}

	msg := riemann.Msg{Events: []riemann.Event{toRiemann(evt)}}
	if err := riemann.WriteMsg(c.conn, msg); err != nil {
		c.disconnect(err)
		return err
	}
	resp, err := riemann.ReadMsg(c.conn)
	if err != nil {
		c.disconnect(err)
		return err
	}
	if !resp.OK {
		return &RemoteError{Reason: resp.Error}
	}
	return nil
}

// Close closes the connection. Subsequent sends fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.setState(Disconnected)
	return err
}

func (c *Client) connect(ctx context.Context) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return ErrThrottled
	}

	c.setState(Connecting)
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.setState(Connected)
	c.logger.Info("connected to riemann", "addr", c.addr)
	return nil
}

func (c *Client) disconnect(cause error) {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(Disconnected)
	c.logger.Warn("riemann connection lost", "addr", c.addr, "error", cause)
}

func (c *Client) setState(s State) {
	if State(c.state.Load()) == s {
		return
	}
	c.state.Store(int32(s))
	if c.onState != nil {
		c.onState(s)
	}
}

func toRiemann(evt event.MetricEvent) riemann.Event {
	e := riemann.Event{
		Service: evt.Service,
		Host:    evt.Host,
		Tags:    evt.Tags,
		TTL:     evt.TTLSeconds(),
		Metric:  evt.Metric,
	}
	if !evt.Time.IsZero() {
		e.Time = evt.Time.Unix()
		e.TimeMicros = evt.Time.UnixMicro()
	}
	return e
}
