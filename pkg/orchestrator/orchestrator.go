// Package orchestrator ties the run together: build and launch the service
// inventory, gate on readiness, execute the selected suites, and tear the
// stack down again in reverse order no matter how the run ends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/duration"
	"github.com/mcptester/mcptester/pkg/health"
	"github.com/mcptester/mcptester/pkg/report"
	"github.com/mcptester/mcptester/pkg/suites"
	"github.com/mcptester/mcptester/pkg/supervisor"
)

// ErrGateFailed wraps readiness failures during stack bring-up.
var ErrGateFailed = errors.New("health gate failed")

// Config carries orchestrator collaborators. Zero values get defaults.
type Config struct {
	// Supervisor manages service processes (default supervisor.New).
	Supervisor *supervisor.Supervisor

	// Logger receives progress output (default slog.Default())
	Logger *slog.Logger

	// NoCleanup leaves services running after the run and logs their
	// endpoints instead of stopping them.
	NoCleanup bool

	// GateInterval overrides the pause between readiness probes.
	GateInterval time.Duration

	// OnSuiteStart, when set, is called before each suite runs.
	OnSuiteStart func(s suites.Suite)

	// OnSuiteDone, when set, is called with each suite's results,
	// including the synthesized setup failure when the suite could not
	// run.
	OnSuiteDone func(s suites.Suite, results []conformance.Result)
}

// Orchestrator runs conformance suites against a supervised service stack.
type Orchestrator struct {
	cfg Config
}

// New applies defaults and returns a ready orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Supervisor == nil {
		cfg.Supervisor = supervisor.New(supervisor.Config{Logger: cfg.Logger})
	}
	return &Orchestrator{cfg: cfg}
}

// Stack is a set of started services, torn down in reverse start order.
type Stack struct {
	handles []*supervisor.Handle
	logger  *slog.Logger
}

// Down stops every service, last started first. Safe to call twice.
func (st *Stack) Down(ctx context.Context) {
	for i := len(st.handles) - 1; i >= 0; i-- {
		h := st.handles[i]
		st.logger.Info("stopping service", slog.String("service", h.Name()))
		if err := h.Stop(ctx); err != nil {
			st.logger.Warn("stop failed",
				slog.String("service", h.Name()),
				slog.String("error", err.Error()))
		}
	}
}

// Handles exposes the started services in start order.
func (st *Stack) Handles() []*supervisor.Handle {
	return st.handles
}

// Up builds every spec, then starts and gates them in declared order. The
// build phase runs to completion before any process is spawned, so a broken
// build never leaves half a stack behind. A start or gate failure tears down
// everything already running before returning.
func (o *Orchestrator) Up(ctx context.Context, specs []supervisor.ServiceSpec) (*Stack, error) {
	for _, spec := range specs {
		if err := o.cfg.Supervisor.Build(ctx, spec); err != nil {
			return nil, err
		}
	}

	st := &Stack{logger: o.cfg.Logger}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			st.Down(context.WithoutCancel(ctx))
			return nil, err
		}

		h, err := o.cfg.Supervisor.Start(ctx, spec)
		if err != nil {
			st.Down(context.WithoutCancel(ctx))
			return nil, err
		}
		st.handles = append(st.handles, h)

		if err := o.gate(ctx, spec, h); err != nil {
			st.Down(context.WithoutCancel(ctx))
			return nil, err
		}
		if err := h.MarkReady(); err != nil {
			st.Down(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("%s became unready after its gate: %w", spec.Name, err)
		}
	}
	return st, nil
}

// gateAttempts resolves the probe budget for a spec. Auxiliary services,
// the ones gated on a plain ok body, get the smaller budget; the rest fall
// through to the gate's own default.
func gateAttempts(spec supervisor.ServiceSpec) int {
	if spec.GateAttempts > 0 {
		return spec.GateAttempts
	}
	if spec.Ready == "ok" {
		return defaults.GateAttemptsAux
	}
	return 0
}

// gate waits for the service's health endpoint, when it declares one. The
// whole wait is bounded by the per-service readiness budget regardless of
// the attempt count.
func (o *Orchestrator) gate(ctx context.Context, spec supervisor.ServiceSpec, h *supervisor.Handle) error {
	if spec.HealthPath == "" {
		return nil
	}

	ready := health.ReadyAuth()
	if spec.Ready == "ok" {
		ready = health.ReadyOK()
	}
	g := health.Gate{
		Name:          spec.Name,
		URL:           fmt.Sprintf("http://localhost:%d%s", spec.Port, spec.HealthPath),
		ReadyStatuses: ready,
		Attempts:      gateAttempts(spec),
		Interval:      o.cfg.GateInterval,
		Logger:        o.cfg.Logger,
	}

	gateCtx, cancel := context.WithTimeout(ctx, duration.GateDefault)
	defer cancel()

	res := g.Wait(gateCtx, h)
	if res.Outcome == health.Ready {
		return nil
	}
	if res.OutputTail != "" {
		o.cfg.Logger.Error("service output before death",
			slog.String("service", spec.Name),
			slog.String("tail", res.OutputTail))
	}
	return fmt.Errorf("%w: %s: %v", ErrGateFailed, spec.Name, res.Err)
}

// RunSuites brings the stack up, runs the selected suites against the target
// and returns the aggregated report. With no specs the stack phase is skipped
// and the suites run against whatever already listens on the target URLs.
// A suite-level setup failure is recorded as a failed result named "setup"
// and the remaining suites still run.
func (o *Orchestrator) RunSuites(ctx context.Context, specs []supervisor.ServiceSpec, selected []suites.Suite, target suites.Target, runner *conformance.Runner) (*report.Report, error) {
	var st *Stack
	if len(specs) > 0 {
		var err error
		st, err = o.Up(ctx, specs)
		if err != nil {
			return nil, err
		}
		defer func() {
			if o.cfg.NoCleanup {
				o.logRunning(st, specs)
				return
			}
			st.Down(context.WithoutCancel(ctx))
		}()
	}

	target = target.WithDefaults()
	rep := report.New(target.MCPURL)
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			rep.Finish()
			return rep, err
		}
		if o.cfg.OnSuiteStart != nil {
			o.cfg.OnSuiteStart(s)
		}

		results, err := s.Run(ctx, target, runner)
		if err != nil {
			if ctx.Err() != nil {
				rep.Finish()
				return rep, ctx.Err()
			}
			o.cfg.Logger.Error("suite setup failed",
				slog.String("suite", s.Name),
				slog.String("error", err.Error()))
			results = append(results, conformance.Result{
				Name:        "setup",
				Description: "suite prerequisites",
				Detail:      err.Error(),
			})
		}
		rep.AddSuite(s.Name, results)
		if o.cfg.OnSuiteDone != nil {
			o.cfg.OnSuiteDone(s, results)
		}
	}
	rep.Finish()
	return rep, nil
}

func (o *Orchestrator) logRunning(st *Stack, specs []supervisor.ServiceSpec) {
	for i, h := range st.handles {
		spec := specs[i]
		attrs := []any{
			slog.String("service", h.Name()),
			slog.Int("pid", h.Pid()),
		}
		if spec.Port != 0 {
			attrs = append(attrs, slog.String("endpoint", fmt.Sprintf("http://localhost:%d", spec.Port)))
		}
		o.cfg.Logger.Info("service left running", attrs...)
	}
}
