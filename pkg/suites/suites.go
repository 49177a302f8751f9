// Package suites holds the conformance suite catalog. Each suite turns a
// target description into cases, runs them, and returns classified results;
// multi-step suites (the OAuth2 flow) drive protocol steps directly and
// synthesize results per step.
package suites

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/defaults"
)

// Target describes the services under test.
type Target struct {
	// MCPURL is the MCP endpoint, usually through the proxy
	// (default http://localhost:3002/mcp)
	MCPURL string

	// AuthBaseURL is the OAuth2 authorization server base
	// (default http://localhost:3003)
	AuthBaseURL string

	// JWKSBaseURL is the key server base (default http://localhost:3004)
	JWKSBaseURL string

	// APIKey, when set, is exercised by the credential-delivery cases in
	// the comprehensive suite.
	APIKey string
}

// WithDefaults fills in the standard localhost layout.
func (t Target) WithDefaults() Target {
	if t.MCPURL == "" {
		t.MCPURL = fmt.Sprintf("http://localhost:%d/mcp", defaults.PortProxy)
	}
	if t.AuthBaseURL == "" {
		t.AuthBaseURL = fmt.Sprintf("http://localhost:%d", defaults.PortAuth)
	}
	if t.JWKSBaseURL == "" {
		t.JWKSBaseURL = fmt.Sprintf("http://localhost:%d", defaults.PortJWKS)
	}
	return t
}

// Suite is one named group of conformance checks.
type Suite struct {
	Name        string
	Description string

	// Run executes the suite. A returned error means the suite could not
	// run at all (setup failure), distinct from cases failing.
	Run func(ctx context.Context, t Target, r *conformance.Runner) ([]conformance.Result, error)
}

// Catalog returns every suite in execution order.
func Catalog() []Suite {
	return []Suite{
		{
			Name:        "basic",
			Description: "service reachability, dev tokens and MCP initialize",
			Run:         runBasic,
		},
		{
			Name:        "comprehensive",
			Description: "basic plus credential delivery variants",
			Run:         runComprehensive,
		},
		{
			Name:        "flow",
			Description: "full OAuth2 authorization code flow with PKCE",
			Run:         runFlow,
		},
		{
			Name:        "edge",
			Description: "JWT and authorization header malformation matrix",
			Run:         runEdge,
		},
		{
			Name:        "jsonrpc",
			Description: "JSON-RPC 2.0 structure and parse error matrix",
			Run:         runJSONRPC,
		},
	}
}

// Select resolves suite names. "all" expands to the full catalog.
func Select(names []string) ([]Suite, error) {
	catalog := Catalog()
	if len(names) == 0 || slices.Contains(names, "all") {
		return catalog, nil
	}

	byName := make(map[string]Suite, len(catalog))
	for _, s := range catalog {
		byName[s.Name] = s
	}

	var out []Suite
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown suite %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// Names returns the valid suite names, including the "all" alias.
func Names() []string {
	catalog := Catalog()
	names := make([]string, 0, len(catalog)+1)
	for _, s := range catalog {
		names = append(names, s.Name)
	}
	return append(names, "all")
}

// postCase builds a JSON POST case against the MCP endpoint. An empty auth
// string sends no Authorization header at all.
func postCase(name, desc, url string, body []byte, auth string) conformance.Case {
	return conformance.Case{
		Name:        name,
		Description: desc,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", defaults.ContentTypeJSON)
			req.Header.Set("User-Agent", defaults.UserAgent)
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			return req, nil
		},
	}
}

// getCase builds a GET case.
func getCase(name, desc, url string) conformance.Case {
	return conformance.Case{
		Name:        name,
		Description: desc,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", defaults.UserAgent)
			return req, nil
		},
	}
}

// step runs one programmatic protocol step and wraps it as a result.
func step(name, desc string, fn func() error) conformance.Result {
	start := time.Now()
	err := fn()
	res := conformance.Result{
		Name:        name,
		Description: desc,
		Passed:      err == nil,
		Duration:    time.Since(start),
	}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}
