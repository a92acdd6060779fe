// Package hyperliquid reads liquidation vaults and their fills from the
// venue's unauthenticated info endpoint.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	appconfig "liqfeed/config"
	ratemetrics "liqfeed/internal/metrics/rate"
	"liqfeed/logger"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 32 << 20

// failureKind is how a single /info request went wrong.
type failureKind int

const (
	failureTransport failureKind = iota + 1
	failureTimeout
	failureStatus
	failureDecode
)

type requestError struct {
	kind failureKind
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// Stats are cumulative request counters.
type Stats struct {
	Requests       int64
	Failures       int64
	SkippedEntries int64
}

// Client issues POST requests against the info endpoint. It is safe for
// concurrent use.
type Client struct {
	endpoint string
	localIP  string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Log

	requests atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithLimiter overrides the request limiter. A nil limiter disables limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient builds a client for cfg.URL.
func NewClient(cfg appconfig.VenueConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid venue url %q", cfg.URL)
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	if cfg.LocalIP != "" {
		ip := net.ParseIP(cfg.LocalIP)
		if ip == nil {
			return nil, fmt.Errorf("invalid local ip %q", cfg.LocalIP)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	if cfg.ConnectionPool.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.ConnectionPool.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.ConnectionPool.MaxIdleConns
	}
	if cfg.ConnectionPool.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = cfg.ConnectionPool.MaxConnsPerHost
	}
	if cfg.ConnectionPool.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.ConnectionPool.IdleConnTimeout
	}

	c := &Client{
		endpoint: u.String(),
		localIP:  cfg.LocalIP,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: userAgentTransport{agent: cfg.UserAgent, base: transport},
		},
		log: logger.GetLogger(),
	}
	if rps := cfg.RateLimit.RequestsPerSecond; rps > 0 {
		burst := cfg.RateLimit.BurstSize
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stats returns the request counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:       c.requests.Load(),
		Failures:       c.failures.Load(),
		SkippedEntries: c.skipped.Load(),
	}
}

// info posts body to the endpoint and returns the raw JSON response.
func (c *Client) info(ctx context.Context, body infoRequest) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// the limiter refuses waits that would overrun the deadline
			return nil, c.fail(failureTimeout, fmt.Errorf("rate limiter: %w", err))
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(failureTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, c.fail(failureTimeout, err)
		}
		return nil, c.fail(failureTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, c.fail(failureTimeout, err)
		}
		return nil, c.fail(failureTransport, fmt.Errorf("read info response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		ratemetrics.ReportLimitFromResponse(c.log, "hyperliquid", body.Type, c.localIP, resp.StatusCode, string(data))
		return nil, c.fail(failureStatus, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if !json.Valid(data) {
		return nil, c.fail(failureDecode, fmt.Errorf("info response is not valid json"))
	}
	return json.RawMessage(data), nil
}

func (c *Client) fail(kind failureKind, err error) error {
	c.failures.Add(1)
	return &requestError{kind: kind, err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func failureOf(err error) failureKind {
	var re *requestError
	if errors.As(err, &re) {
		return re.kind
	}
	return failureTransport
}

// userAgentTransport sets a custom User-Agent header on all outgoing requests.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}
