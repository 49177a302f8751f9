package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcptester/mcptester/pkg/duration"
)

// resetFlags resets the flag package for each test.
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
}

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	resetFlags()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = append([]string{"mcptester"}, args...)
	return ParseFlags()
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Empty(t, cfg.TargetURL)
	assert.Empty(t, cfg.Suites)
	assert.Equal(t, duration.SuiteAll, cfg.Timeout)
	assert.Zero(t, cfg.RateLimit)
	assert.False(t, cfg.NoCleanup)
	assert.False(t, cfg.Debug)
}

func TestSuiteSelection(t *testing.T) {
	cfg, err := parse(t, "-verbose", "edge", "jsonrpc")
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "jsonrpc"}, cfg.Suites)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, duration.SuiteDefault, cfg.Timeout)
}

func TestUnknownSuiteRejected(t *testing.T) {
	_, err := parse(t, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown suite")
}

func TestAllSuiteGetsLongerBudget(t *testing.T) {
	cfg, err := parse(t, "all")
	require.NoError(t, err)
	assert.Equal(t, duration.SuiteAll, cfg.Timeout)
}

func TestExplicitTimeout(t *testing.T) {
	cfg, err := parse(t, "-timeout", "42", "basic")
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, cfg.Timeout)
}

func TestNegativeTimeoutRejected(t *testing.T) {
	_, err := parse(t, "-timeout", "-1")
	require.Error(t, err)
}

func TestTargetAssembly(t *testing.T) {
	cfg, err := parse(t, "-target", "http://10.0.0.5:8080/mcp", "-api-key", "k1")
	require.NoError(t, err)

	target := cfg.Target()
	assert.Equal(t, "http://10.0.0.5:8080/mcp", target.MCPURL)
	assert.Equal(t, "http://localhost:3003", target.AuthBaseURL)
	assert.Equal(t, "http://localhost:3004", target.JWKSBaseURL)
	assert.Equal(t, "k1", target.APIKey)
}

func TestServiceAndOutputFlags(t *testing.T) {
	cfg, err := parse(t,
		"-services", "services.yaml",
		"-no-cleanup",
		"-json", "report.json",
		"-no-color",
		"-debug",
		"flow")
	require.NoError(t, err)

	assert.Equal(t, "services.yaml", cfg.ServicesFile)
	assert.True(t, cfg.NoCleanup)
	assert.Equal(t, "report.json", cfg.JSONFile)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Debug)
}
