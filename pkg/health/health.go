// Package health gates test execution on service readiness. A gate polls an
// endpoint until it answers with an expected status, the probe budget runs
// out, or the supervised process dies.
//
// Protected endpoints signal readiness by rejecting: an MCP server behind
// auth is up once it answers 401, 403 or 405. Only unprotected endpoints
// gate on 200.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/duration"
	"github.com/mcptester/mcptester/pkg/httpclient"
	"github.com/mcptester/mcptester/pkg/iohelper"
	"github.com/mcptester/mcptester/pkg/retry"
	"github.com/mcptester/mcptester/pkg/supervisor"
)

// ReadyAuth are the statuses that mean "up and enforcing auth".
func ReadyAuth() []int {
	return []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusMethodNotAllowed}
}

// ReadyOK is for unprotected endpoints like the JWKS document.
func ReadyOK() []int {
	return []int{http.StatusOK}
}

// Outcome classifies how a gate ended.
type Outcome int

const (
	// Ready means the endpoint answered with an expected status.
	Ready Outcome = iota
	// TimedOut means the probe budget ran out without a ready answer.
	TimedOut
	// Died means the supervised process exited while the gate was waiting.
	Died
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed out"
	case Died:
		return "died"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the gate verdict.
type Result struct {
	Outcome    Outcome
	LastStatus int           // last HTTP status observed, 0 if none
	Attempts   int           // probes actually sent
	Elapsed    time.Duration // wall time spent gating
	OutputTail string        // last service output lines, set when Died
	Err        error         // terminal error for TimedOut and Died
}

// Gate polls one endpoint. Zero-value fields get defaults in Wait.
type Gate struct {
	// Name labels the gate in logs (default: the URL)
	Name string

	// URL is the endpoint to probe.
	URL string

	// ReadyStatuses are the statuses meaning ready (default ReadyAuth())
	ReadyStatuses []int

	// Attempts is the probe budget (default defaults.GateAttempts)
	Attempts int

	// Interval is the pause between probes (default 1s)
	Interval time.Duration

	// HTTPClient overrides the shared probe client.
	HTTPClient *http.Client

	// Logger receives progress output (default slog.Default())
	Logger *slog.Logger
}

var errNotReady = errors.New("endpoint not ready")

// ErrTimeout means the probe budget ran out without a ready answer.
var ErrTimeout = errors.New("health gate timed out")

// ErrProcessDied means the supervised process exited while the gate was
// still waiting.
var ErrProcessDied = errors.New("process exited during health gate")

// Wait blocks until the gate resolves. A nil handle gates an externally
// managed service; death detection is then disabled.
func (g Gate) Wait(ctx context.Context, h *supervisor.Handle) Result {
	if g.Name == "" {
		g.Name = g.URL
	}
	if len(g.ReadyStatuses) == 0 {
		g.ReadyStatuses = ReadyAuth()
	}
	if g.Attempts == 0 {
		g.Attempts = defaults.GateAttempts
	}
	if g.Interval == 0 {
		g.Interval = duration.HealthPoll
	}
	if g.HTTPClient == nil {
		g.HTTPClient = httpclient.New(httpclient.ProbeConfig())
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}

	start := time.Now()
	res := Result{}

	err := retry.Do(ctx, retry.Config{
		MaxAttempts: g.Attempts,
		InitDelay:   g.Interval,
		Strategy:    retry.Constant,
	}, func() error {
		if h != nil {
			select {
			case <-h.Done():
				return retry.Stop(ErrProcessDied)
			default:
			}
		}

		res.Attempts++
		status, err := g.probe(ctx)
		if err != nil {
			g.Logger.Debug("probe failed",
				slog.String("gate", g.Name),
				slog.Int("attempt", res.Attempts),
				slog.String("error", err.Error()))
			return errNotReady
		}
		res.LastStatus = status
		if slices.Contains(g.ReadyStatuses, status) {
			return nil
		}
		g.Logger.Debug("probe status not ready",
			slog.String("gate", g.Name),
			slog.Int("attempt", res.Attempts),
			slog.Int("status", status))
		return errNotReady
	})

	res.Elapsed = time.Since(start)

	switch {
	case err == nil:
		res.Outcome = Ready
		g.Logger.Info("service ready",
			slog.String("gate", g.Name),
			slog.Int("status", res.LastStatus),
			slog.Int("attempts", res.Attempts))
	case errors.Is(err, ErrProcessDied):
		res.Outcome = Died
		res.Err = fmt.Errorf("%s: %w", g.Name, ErrProcessDied)
		if h != nil {
			res.OutputTail = h.Output().Tail(20)
		}
	default:
		res.Outcome = TimedOut
		res.Err = fmt.Errorf("%s: %w: not ready after %d attempts (last status %d)",
			g.Name, ErrTimeout, res.Attempts, res.LastStatus)
	}
	return res
}

func (g Gate) probe(ctx context.Context) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, duration.ProbeAttempt)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, g.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", defaults.UserAgent)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer iohelper.DrainAndClose(resp.Body)
	return resp.StatusCode, nil
}
