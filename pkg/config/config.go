// Package config registers and parses all CLI configuration. Every flag the
// binary understands lives here; cmd/cli resolves environment overrides and
// threads the result through the rest of the program.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/duration"
	"github.com/mcptester/mcptester/pkg/suites"
)

// Config holds all CLI configuration options.
type Config struct {
	// Target settings
	TargetURL string // MCP endpoint under test
	AuthURL   string // OAuth2 authorization server base
	JWKSURL   string // JWKS key server base
	APIKey    string // optional API key for credential-delivery cases

	// Service management
	ServicesFile string // YAML inventory of services to build/start/stop
	NoCleanup    bool   // leave services running after the run

	// Suite selection, from positional arguments
	Suites []string

	// Execution settings
	Timeout   time.Duration // overall run budget
	RateLimit int           // max requests per second, 0 = unlimited

	// Output settings
	JSONFile string // write the JSON report here (empty = no export)
	Debug    bool   // debug-level logging
	Verbose  bool   // show per-case detail even on pass
	NoColor  bool   // disable colored output
}

// ParseFlags parses command line arguments and returns Config.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	// === TARGET ===
	flag.StringVar(&cfg.TargetURL, "target", "", "MCP endpoint URL (default http://localhost:3002/mcp)")
	flag.StringVar(&cfg.TargetURL, "t", "", "MCP endpoint URL (alias)")
	flag.StringVar(&cfg.AuthURL, "authserver", "", "OAuth2 server base URL (default http://localhost:3003)")
	flag.StringVar(&cfg.JWKSURL, "jwks", "", "JWKS server base URL (default http://localhost:3004)")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key for credential-delivery cases")

	// === SERVICES ===
	flag.StringVar(&cfg.ServicesFile, "services", "", "YAML service inventory to supervise")
	flag.BoolVar(&cfg.NoCleanup, "no-cleanup", false, "Leave supervised services running afterwards")

	// === EXECUTION ===
	timeout := flag.Int("timeout", 0, "Overall run budget in seconds (default 300, 900 for all)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", 0, "Max requests per second (0 = unlimited)")
	flag.IntVar(&cfg.RateLimit, "rl", 0, "Rate limit (alias)")

	// === OUTPUT ===
	flag.StringVar(&cfg.JSONFile, "json", "", "Write JSON report to file")
	flag.BoolVar(&cfg.Debug, "debug", false, "Debug-level logging")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Show detail for passing cases too")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose (alias)")
	flag.BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&cfg.NoColor, "nc", false, "No color (alias)")

	flag.Usage = usage
	flag.Parse()

	cfg.Suites = flag.Args()
	if _, err := suites.Select(cfg.Suites); err != nil {
		return nil, err
	}

	if *timeout < 0 {
		return nil, fmt.Errorf("timeout must be positive, got %d", *timeout)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit)
	}
	cfg.Timeout = time.Duration(*timeout) * time.Second
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.SuiteDefault
		if cfg.runsEverything() {
			cfg.Timeout = duration.SuiteAll
		}
	}
	return cfg, nil
}

// runsEverything reports whether the selection expands to the full catalog.
func (c *Config) runsEverything() bool {
	if len(c.Suites) == 0 {
		return true
	}
	for _, name := range c.Suites {
		if name == "all" {
			return true
		}
	}
	return false
}

// Target assembles the suite target from the resolved configuration.
func (c *Config) Target() suites.Target {
	return suites.Target{
		MCPURL:      c.TargetURL,
		AuthBaseURL: c.AuthURL,
		JWKSBaseURL: c.JWKSURL,
		APIKey:      c.APIKey,
	}.WithDefaults()
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "mcptester %s - MCP OAuth2 conformance tester\n\n", defaults.Version)
	fmt.Fprintf(out, "Usage: mcptester [flags] [suite ...]\n\nSuites:\n")
	for _, s := range suites.Catalog() {
		fmt.Fprintf(out, "  %-15s %s\n", s.Name, s.Description)
	}
	fmt.Fprintf(out, "  %-15s every suite above\n\nFlags:\n", "all")
	flag.PrintDefaults()
}
