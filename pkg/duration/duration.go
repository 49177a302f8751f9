// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.SuiteDefault)
//	Interval: duration.HealthPoll,
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// ProbeAttempt bounds a single readiness probe so one hung connection
	// cannot stall the whole gate (2s)
	ProbeAttempt = 2 * time.Second

	// HTTPCase is the per-request timeout for conformance cases (5s)
	HTTPCase = 5 * time.Second

	// HTTPFlow is the timeout for OAuth2 flow steps, which may touch the
	// authorization server's signing path (10s)
	HTTPFlow = 10 * time.Second

	// FetchRetry is the pause between attempts when fetching supporting
	// artifacts from a freshly gated service (500ms)
	FetchRetry = 500 * time.Millisecond
)

// ============================================================================
// PROCESS LIFECYCLE
// ============================================================================

const (
	// StopGrace is how long a service gets to exit after SIGTERM before
	// escalation to SIGKILL (5s)
	StopGrace = 5 * time.Second

	// EvictSettle is the pause after killing a port's previous owner,
	// letting the kernel release the socket (1s)
	EvictSettle = 1 * time.Second

	// BuildTimeout bounds the service build command (5min)
	BuildTimeout = 5 * time.Minute
)

// ============================================================================
// HEALTH GATE INTERVALS
// ============================================================================

const (
	// HealthPoll is the interval between readiness probes (1s)
	HealthPoll = 1 * time.Second

	// GateDefault is the overall readiness budget per service (30s)
	GateDefault = 30 * time.Second
)

// ============================================================================
// SUITE / OPERATION TIMEOUTS
// ============================================================================

const (
	// SuiteDefault bounds a single suite end to end (5min)
	SuiteDefault = 5 * time.Minute

	// SuiteAll bounds a full `all` run (15min)
	SuiteAll = 15 * time.Minute
)
