// mcptester drives conformance suites against an MCP OAuth2 deployment:
// a protected MCP endpoint, its proxy, an OAuth2 authorization server and
// a JWKS key server. It can supervise the services itself from a YAML
// inventory or test whatever already listens on the target URLs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/mcptester/mcptester/pkg/config"
	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/orchestrator"
	"github.com/mcptester/mcptester/pkg/report"
	"github.com/mcptester/mcptester/pkg/suites"
	"github.com/mcptester/mcptester/pkg/supervisor"
	"github.com/mcptester/mcptester/pkg/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return defaults.ExitUserError
	}
	applyEnv(cfg)

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	selected, err := suites.Select(cfg.Suites)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return defaults.ExitUserError
	}

	var specs []supervisor.ServiceSpec
	if cfg.ServicesFile != "" {
		specs, err = supervisor.LoadSpecs(cfg.ServicesFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return defaults.ExitUserError
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	formatter := ui.NewFormatter(cfg.Verbose, !cfg.NoColor)
	target := cfg.Target()
	fmt.Println(formatter.Banner(defaults.Version, target.MCPURL))

	if len(selected) < len(suites.Catalog()) {
		chosen := make(map[string]bool, len(selected))
		for _, s := range selected {
			chosen[s.Name] = true
		}
		for _, s := range suites.Catalog() {
			if !chosen[s.Name] {
				fmt.Println(formatter.SuiteSkipped(s.Name))
			}
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	runner := conformance.NewRunner(conformance.Config{Limiter: limiter})

	orch := orchestrator.New(orchestrator.Config{
		NoCleanup: cfg.NoCleanup,
		OnSuiteStart: func(s suites.Suite) {
			fmt.Println()
			fmt.Println(formatter.SuiteHeader(s.Name, 0))
		},
		OnSuiteDone: func(s suites.Suite, results []conformance.Result) {
			for _, res := range results {
				fmt.Println(formatter.Result(res))
			}
		},
	})

	rep, err := orch.RunSuites(ctx, specs, selected, target, runner)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		switch {
		case errors.Is(err, supervisor.ErrBuildFailed),
			errors.Is(err, supervisor.ErrStartFailed),
			errors.Is(err, orchestrator.ErrGateFailed):
			return defaults.ExitStartupError
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return defaults.ExitInternalError
		default:
			return defaults.ExitInternalError
		}
	}

	fmt.Print(formatter.Summary(rep))

	if cfg.JSONFile != "" {
		if err := exportJSON(rep, cfg.JSONFile); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return defaults.ExitInternalError
		}
		slog.Info("report written", slog.String("path", cfg.JSONFile))
	}

	if !rep.Passed() {
		return defaults.ExitCasesFailed
	}
	return defaults.ExitSuccess
}

// applyEnv fills configuration from the environment where no flag was given.
func applyEnv(cfg *config.Config) {
	if cfg.TargetURL == "" {
		cfg.TargetURL = os.Getenv("MCPTESTER_TARGET")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = os.Getenv("MCPTESTER_AUTHSERVER")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = os.Getenv("MCPTESTER_JWKS")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("MCPTESTER_API_KEY")
	}
	if v := os.Getenv("MCPTESTER_TIMEOUT"); v != "" && !flagGiven("timeout") {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}
}

func flagGiven(name string) bool {
	given := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			given = true
		}
	})
	return given
}

func exportJSON(rep *report.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := rep.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}
