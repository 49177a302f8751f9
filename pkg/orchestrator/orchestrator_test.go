package orchestrator

import (
	"context"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/defaults"
	"github.com/mcptester/mcptester/pkg/suites"
	"github.com/mcptester/mcptester/pkg/supervisor"
)

func sleepSpec(name string) supervisor.ServiceSpec {
	return supervisor.ServiceSpec{
		Name:    name,
		Command: []string{"/bin/sleep", "60"},
	}
}

// trapSpec writes marker when the service receives SIGTERM.
func trapSpec(name, marker string) supervisor.ServiceSpec {
	return supervisor.ServiceSpec{
		Name:    name,
		Command: []string{"/bin/sh", "-c", "trap 'touch " + marker + "' TERM; sleep 60 & wait"},
	}
}

// closedPort returns a TCP port that nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	u, err := url.Parse("http://" + l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestGateAttemptsDefaults(t *testing.T) {
	// An explicit budget always wins.
	explicit := supervisor.ServiceSpec{GateAttempts: 5, Ready: "ok"}
	assert.Equal(t, 5, gateAttempts(explicit))

	// Plain-ok services are the auxiliary ones and get the short budget.
	aux := supervisor.ServiceSpec{Ready: "ok"}
	assert.Equal(t, defaults.GateAttemptsAux, gateAttempts(aux))

	// Everything else defers to the gate's own default.
	primary := supervisor.ServiceSpec{}
	assert.Equal(t, 0, gateAttempts(primary))
}

func TestUpStartsAndDownStops(t *testing.T) {
	o := New(Config{})
	st, err := o.Up(context.Background(), []supervisor.ServiceSpec{
		sleepSpec("one"),
		sleepSpec("two"),
	})
	require.NoError(t, err)
	require.Len(t, st.Handles(), 2)

	for _, h := range st.Handles() {
		assert.Equal(t, supervisor.StateReady, h.State())
	}

	st.Down(context.Background())
	for _, h := range st.Handles() {
		assert.Equal(t, supervisor.StateStopped, h.State())
	}
}

func TestUpBuildFailureAbortsBeforeSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	o := New(Config{})

	_, err := o.Up(context.Background(), []supervisor.ServiceSpec{
		{
			Name:         "broken",
			Command:      []string{"/bin/sleep", "60"},
			BuildCommand: []string{"/bin/sh", "-c", "exit 1"},
		},
		{
			Name:    "bystander",
			Command: []string{"/bin/sh", "-c", "touch " + marker + "; sleep 60"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, supervisor.ErrBuildFailed)
	assert.NoFileExists(t, marker)
}

func TestUpGateFailureTearsDownEarlierServices(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "stopped")
	o := New(Config{GateInterval: 10 * time.Millisecond})

	gated := sleepSpec("gated")
	gated.Port = closedPort(t)
	gated.HealthPath = "/health"
	gated.Ready = "ok"
	gated.GateAttempts = 2

	_, err := o.Up(context.Background(), []supervisor.ServiceSpec{
		trapSpec("first", marker),
		gated,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGateFailed)

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "first service was not torn down")
}

func passingSuite(name string) suites.Suite {
	return suites.Suite{
		Name:        name,
		Description: "stub",
		Run: func(ctx context.Context, t suites.Target, r *conformance.Runner) ([]conformance.Result, error) {
			return []conformance.Result{{Name: "stub_case", Passed: true}}, nil
		},
	}
}

func TestRunSuitesWithoutSpecs(t *testing.T) {
	var started, finished []string
	o := New(Config{
		OnSuiteStart: func(s suites.Suite) { started = append(started, s.Name) },
		OnSuiteDone: func(s suites.Suite, results []conformance.Result) {
			finished = append(finished, s.Name)
			assert.Len(t, results, 1)
		},
	})

	rep, err := o.RunSuites(context.Background(), nil,
		[]suites.Suite{passingSuite("alpha"), passingSuite("beta")},
		suites.Target{MCPURL: "http://localhost:9/mcp"},
		conformance.NewRunner(conformance.Config{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, started)
	assert.Equal(t, []string{"alpha", "beta"}, finished)
	passed, failed, total := rep.Totals()
	assert.Equal(t, 2, passed)
	assert.Zero(t, failed)
	assert.Equal(t, 2, total)
	assert.True(t, rep.Passed())
	assert.Equal(t, "http://localhost:9/mcp", rep.Target)
}

func TestRunSuitesRecordsSetupFailure(t *testing.T) {
	broken := suites.Suite{
		Name: "broken",
		Run: func(ctx context.Context, t suites.Target, r *conformance.Runner) ([]conformance.Result, error) {
			return nil, assert.AnError
		},
	}

	rep, err := o2().RunSuites(context.Background(), nil,
		[]suites.Suite{broken, passingSuite("after")},
		suites.Target{},
		conformance.NewRunner(conformance.Config{}))
	require.NoError(t, err)

	passed, failed, total := rep.Totals()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, total)

	require.Len(t, rep.Failures(), 1)
	assert.Contains(t, rep.Failures()[0].Name, "setup")
	assert.Equal(t, assert.AnError.Error(), rep.Failures()[0].Detail)
}

func o2() *Orchestrator { return New(Config{}) }

func TestRunSuitesTearsDownStack(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "stopped")

	rep, err := o2().RunSuites(context.Background(),
		[]supervisor.ServiceSpec{trapSpec("svc", marker)},
		[]suites.Suite{passingSuite("alpha")},
		suites.Target{},
		conformance.NewRunner(conformance.Config{}))
	require.NoError(t, err)
	assert.True(t, rep.Passed())

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "stack was not torn down")
}

func TestRunSuitesNoCleanupLeavesServicesRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	spec := supervisor.ServiceSpec{
		Name:    "persistent",
		Command: []string{"/bin/sh", "-c", "echo $$ > " + pidFile + "; exec sleep 60"},
	}

	o := New(Config{NoCleanup: true})
	_, err := o.RunSuites(context.Background(),
		[]supervisor.ServiceSpec{spec},
		[]suites.Suite{passingSuite("alpha")},
		suites.Target{},
		conformance.NewRunner(conformance.Config{}))
	require.NoError(t, err)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	assert.NoError(t, unix.Kill(pid, 0), "service should still be running")
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func TestRunSuitesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := o2().RunSuites(ctx, nil,
		[]suites.Suite{passingSuite("alpha")},
		suites.Target{},
		conformance.NewRunner(conformance.Config{}))
	require.Error(t, err)
	require.NotNil(t, rep)
	_, _, total := rep.Totals()
	assert.Zero(t, total)
}
