// Package stream implements a source that consumes a long-lived HTTP
// streaming endpoint delivering newline-delimited JSON statuses.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lsm/tagpulse/internal/retry"
	"github.com/lsm/tagpulse/internal/source"
)

const (
	defaultStallTimeout = 90 * time.Second
	defaultMaxLineBytes = 1 << 20
)

var (
	// ErrAuth is returned by Start when the feed rejects the credentials.
	// It is never retried.
	ErrAuth = errors.New("feed rejected credentials")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("stream source closed")

	errStalled = errors.New("feed stalled")
)

// StatusError is a non-2xx response to the subscribe request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("feed http status %d", e.Code)
	}
	return fmt.Sprintf("feed http status %d: %s", e.Code, e.Body)
}

// Config holds stream source configuration.
type Config struct {
	URL          string
	Params       map[string]string // extra query parameters, e.g. language=en
	Auth         AuthConfig
	StallTimeout time.Duration // drop the connection after this long without data
	MaxLineBytes int
	Backoff      retry.Config
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient sets the client that authenticated requests go through.
// It must not set a Timeout, which would cut the stream.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.base = c }
}

// WithReconnectHook registers fn to be called before every reconnect with
// a short cause: "network", "eof", "stall", "status" or "read".
func WithReconnectHook(fn func(reason string)) Option {
	return func(s *Source) { s.onReconnect = fn }
}

// Source consumes a streaming feed. After a dropped connection it
// reconnects with backoff; statuses published during the gap are lost.
type Source struct {
	url         string
	client      *http.Client
	base        *http.Client
	stall       time.Duration
	maxLine     int
	backoff     retry.Config
	logger      *slog.Logger
	onReconnect func(string)

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewSource creates a stream source. No connection is made until Start.
func NewSource(cfg Config, logger *slog.Logger, opts ...Option) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed url must be http or https, got %q", u.Scheme)
	}
	if len(cfg.Params) > 0 {
		q := u.Query()
		for k, v := range cfg.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = defaultMaxLineBytes
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = retry.DefaultConfig()
	}

	s := &Source{
		url:     u.String(),
		stall:   cfg.StallTimeout,
		maxLine: cfg.MaxLineBytes,
		backoff: cfg.Backoff,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base == nil {
		s.base = defaultClient()
	}

	s.client, err = authClient(cfg.Auth, s.base)
	if err != nil {
		return nil, fmt.Errorf("feed auth: %w", err)
	}
	return s, nil
}

func defaultClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// handlerError carries an error returned by the caller's handler so Start
// can tell it apart from feed errors.
type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Start subscribes to the feed and delivers statuses until ctx is
// cancelled, Close is called, the handler fails, or the feed rejects the
// credentials (ErrAuth).
func (s *Source) Start(ctx context.Context, handler func(context.Context, source.Status) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("starting feed subscription", "url", redact(s.url))

	b := retry.NewBackoff(s.backoff)
	for {
		progressed, err := s.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var he *handlerError
		if errors.As(err, &he) {
			return he.err
		}
		if retry.IsPermanent(err) {
			s.logger.Error("feed subscription rejected", "error", err)
			return err
		}
		if progressed {
			b.Reset()
		}
		if b.Exhausted() {
			return fmt.Errorf("feed reconnect attempts exhausted: %w", err)
		}

		delay := b.Next()
		reason := reconnectReason(err)
		s.logger.Warn("feed connection lost, reconnecting",
			"reason", reason,
			"attempt", b.Attempt(),
			"backoff", delay,
			"error", err,
		)
		if s.onReconnect != nil {
			s.onReconnect(reason)
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// consume runs one connection until it fails. progressed reports whether
// any line arrived, which resets the backoff.
func (s *Source) consume(ctx context.Context, handler func(context.Context, source.Status) error) (progressed bool, err error) {
	session := uuid.NewString()
	logger := s.logger.With("session_id", session)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return false, retry.Permanent(fmt.Errorf("%w: %w", ErrAuth, se))
		}
		return false, se
	}
	logger.Info("connected to feed")

	var stalled atomic.Bool
	watchdog := time.AfterFunc(s.stall, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)
	for scanner.Scan() {
		watchdog.Reset(s.stall)
		progressed = true

		line := scanner.Bytes()
		status, ok := s.decode(logger, line)
		if !ok {
			continue
		}

		// The handler may block on the collector; that is not a stall.
		watchdog.Stop()
		if err := handler(ctx, status); err != nil {
			return progressed, &handlerError{err: err}
		}
		watchdog.Reset(s.stall)
	}

	switch err := scanner.Err(); {
	case stalled.Load():
		return progressed, fmt.Errorf("%w: no data for %s", errStalled, s.stall)
	case err == nil:
		return progressed, fmt.Errorf("feed closed stream: %w", io.EOF)
	default:
		return progressed, fmt.Errorf("read stream: %w", err)
	}
}

// wireStatus is the subset of the feed's JSON status object that tagpulse
// reads. Messages without text (delete, limit, warning notices) are skipped.
type wireStatus struct {
	IDStr string  `json:"id_str"`
	Text  *string `json:"text"`
	Lang  string  `json:"lang"`
	User  struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	ExtendedTweet *struct {
		FullText string `json:"full_text"`
	} `json:"extended_tweet"`
}

func (s *Source) decode(logger *slog.Logger, line []byte) (source.Status, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return source.Status{}, false // keep-alive
	}

	var ws wireStatus
	if err := json.Unmarshal([]byte(trimmed), &ws); err != nil {
		logger.Warn("skipping malformed feed message", "error", err, "bytes", len(line))
		return source.Status{}, false
	}
	if ws.Text == nil {
		logger.Debug("skipping non-status feed message")
		return source.Status{}, false
	}

	text := *ws.Text
	if ws.ExtendedTweet != nil && ws.ExtendedTweet.FullText != "" {
		text = ws.ExtendedTweet.FullText
	}
	return source.Status{
		ID:   ws.IDStr,
		Text: text,
		Lang: ws.Lang,
		User: ws.User.ScreenName,
	}, true
}

// Close stops a running Start and releases idle connections.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.base.CloseIdleConnections()
	return nil
}

func reconnectReason(err error) string {
	var se *StatusError
	var ne net.Error
	switch {
	case errors.Is(err, errStalled):
		return "stall"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.As(err, &ne):
		return "network"
	default:
		return "read"
	}
}

// redact drops the query string, which may carry tokens, from logged URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}
