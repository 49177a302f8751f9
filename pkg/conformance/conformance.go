// Package conformance runs protocol conformance cases against live services
// and classifies the responses. A case builds one HTTP request and declares
// what a correct server may answer; everything else is a failure.
package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcptester/mcptester/pkg/duration"
	"github.com/mcptester/mcptester/pkg/httpclient"
	"github.com/mcptester/mcptester/pkg/iohelper"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

// Case is one conformance check.
type Case struct {
	// Name identifies the case in results. Stable across runs.
	Name string

	// Description says what the case verifies.
	Description string

	// Build constructs the request. Called once per run.
	Build func(ctx context.Context) (*http.Request, error)

	// ExpectStatuses are the acceptable HTTP statuses. Empty accepts any.
	ExpectStatuses []int

	// ExpectRPCCode, when non-zero, requires a JSON-RPC error with this code
	// whenever the server answers 200 instead of rejecting at the HTTP layer.
	ExpectRPCCode int

	// MustNotContain are substrings that must not appear in the response
	// body, compared case-insensitively. Used to catch leaked internals.
	MustNotContain []string

	// AllowNetworkReject treats a transport-level failure as a pass. Set it
	// on cases whose payloads may be refused before an HTTP response exists.
	AllowNetworkReject bool
}

// Result is the classified outcome of one case.
type Result struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Passed      bool          `json:"passed"`
	Status      int           `json:"status,omitempty"`
	RPCCode     int           `json:"rpc_code,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// rpcEnvelope is the part of a JSON-RPC response the classifier reads.
type rpcEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Config holds runner settings.
type Config struct {
	// HTTPClient overrides the shared case client.
	HTTPClient *http.Client

	// Logger receives per-case progress (default slog.Default())
	Logger *slog.Logger

	// Limiter throttles case execution. Nil runs unthrottled.
	Limiter *rate.Limiter

	// OnResult is called after each case, before the next starts.
	OnResult func(Result)
}

// Runner executes cases sequentially in declaration order.
type Runner struct {
	cfg Config
}

// NewRunner creates a runner. Missing config fields get defaults.
func NewRunner(cfg Config) *Runner {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}
}

// Run executes every case and returns the results in order. Cancellation
// stops between cases; the in-flight case finishes or times out first.
func (r *Runner) Run(ctx context.Context, cases []Case) []Result {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		if r.cfg.Limiter != nil {
			if err := r.cfg.Limiter.Wait(ctx); err != nil {
				break
			}
		}

		res := r.runCase(ctx, c)
		results = append(results, res)

		if res.Passed {
			r.cfg.Logger.Debug("case passed", slog.String("case", c.Name))
		} else {
			r.cfg.Logger.Warn("case failed",
				slog.String("case", c.Name),
				slog.String("detail", res.Detail))
		}
		if r.cfg.OnResult != nil {
			r.cfg.OnResult(res)
		}
	}
	return results
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	start := time.Now()
	res := Result{Name: c.Name, Description: c.Description}
	defer func() { res.Duration = time.Since(start) }()

	caseCtx, cancel := context.WithTimeout(ctx, duration.HTTPCase)
	defer cancel()

	req, err := c.Build(caseCtx)
	if err != nil {
		res.Detail = fmt.Sprintf("building request: %v", err)
		return res
	}

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		if c.AllowNetworkReject {
			res.Passed = true
			res.Detail = "rejected at transport level"
			return res
		}
		res.Detail = fmt.Sprintf("request failed: %v", err)
		return res
	}
	defer iohelper.DrainAndClose(resp.Body)

	res.Status = resp.StatusCode
	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		res.Detail = fmt.Sprintf("reading response: %v", err)
		return res
	}

	res.Passed, res.Detail, res.RPCCode = classify(c, resp.StatusCode, body)
	return res
}

// classify applies the case expectations to a response.
func classify(c Case, status int, body []byte) (bool, string, int) {
	if len(c.ExpectStatuses) > 0 && !slices.Contains(c.ExpectStatuses, status) {
		return false, fmt.Sprintf("unexpected status %d, want one of %v", status, c.ExpectStatuses), 0
	}

	rpcCode := 0
	if c.ExpectRPCCode != 0 && status == http.StatusOK {
		var env rpcEnvelope
		if err := jsonutil.Unmarshal(body, &env); err != nil || env.Error == nil {
			return false, fmt.Sprintf("200 response without JSON-RPC error, want code %d", c.ExpectRPCCode), 0
		}
		rpcCode = env.Error.Code
		if rpcCode != c.ExpectRPCCode {
			return false, fmt.Sprintf("wrong JSON-RPC error code %d, want %d", rpcCode, c.ExpectRPCCode), rpcCode
		}
	}

	lower := strings.ToLower(string(body))
	for _, banned := range c.MustNotContain {
		if strings.Contains(lower, strings.ToLower(banned)) {
			return false, fmt.Sprintf("response leaks %q", banned), rpcCode
		}
	}

	return true, "", rpcCode
}
