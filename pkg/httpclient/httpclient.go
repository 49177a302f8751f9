// Package httpclient provides a shared, pre-configured HTTP client factory.
// It enables connection pooling and reuse across all packages, and never
// follows redirects: the OAuth2 flow driver must see the redirect response
// itself to extract the authorization code.
package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mcptester/mcptester/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout (default: 5s)
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections across all
	// hosts (default: 100)
	MaxIdleConns int

	// MaxConnsPerHost is the maximum connections per host (default: 10)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay in pool (default: 90s)
	IdleConnTimeout time.Duration

	// DialTimeout is the timeout for establishing connections (default: 2s)
	DialTimeout time.Duration
}

// DefaultConfig returns defaults tuned for driving local services under test:
// short dial timeout so a dead port fails fast, pooling for probe loops.
func DefaultConfig() Config {
	return Config{
		Timeout:         duration.HTTPCase,
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialTimeout:     duration.ProbeAttempt,
	}
}

// ProbeConfig returns a config for readiness probes: every phase of the
// request is bounded by the per-attempt probe budget.
func ProbeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = duration.ProbeAttempt
	return cfg
}

// FlowConfig returns a config for OAuth2 flow steps.
func FlowConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = duration.HTTPFlow
	return cfg
}

var (
	defaultClient *http.Client
	defaultOnce   sync.Once
)

// Default returns a shared, pre-configured HTTP client.
// This client is safe for concurrent use and employs connection pooling.
// All packages should prefer Default() over creating their own clients.
func Default() *http.Client {
	defaultOnce.Do(func() {
		defaultClient = New(DefaultConfig())
	})
	return defaultClient
}

// New creates a new HTTP client with the given configuration.
// Use this when you need a client with non-default settings.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.HTTPCase
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = duration.ProbeAttempt
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,

		DialContext: dialer.DialContext,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// The flow driver needs to see the redirect response itself.
			return http.ErrUseLastResponse
		},
	}
}
