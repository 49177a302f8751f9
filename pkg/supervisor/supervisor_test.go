package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSupervisor() *Supervisor {
	return New(Config{Grace: 2 * time.Second})
}

func sleepSpec(name string) ServiceSpec {
	return ServiceSpec{Name: name, Command: []string{"/bin/sleep", "60"}}
}

func TestStartAndStop(t *testing.T) {
	sup := testSupervisor()
	h, err := sup.Start(context.Background(), sleepSpec("sleeper"))
	require.NoError(t, err)

	assert.Equal(t, StateStarting, h.State())
	assert.Greater(t, h.Pid(), 0)

	require.NoError(t, h.MarkReady())
	assert.Equal(t, StateReady, h.State())

	require.NoError(t, h.Stop(context.Background()))
	assert.Equal(t, StateStopped, h.State())

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sup := testSupervisor()
	h, err := sup.Start(context.Background(), sleepSpec("sleeper"))
	require.NoError(t, err)

	require.NoError(t, h.Stop(context.Background()))
	require.NoError(t, h.Stop(context.Background()))
	assert.Equal(t, StateStopped, h.State())
}

func TestExitBecomesDead(t *testing.T) {
	sup := testSupervisor()
	h, err := sup.Start(context.Background(), ServiceSpec{
		Name:    "shortlived",
		Command: []string{"/bin/sh", "-c", "exit 3"},
	})
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.Equal(t, StateDead, h.State())
	assert.Error(t, h.ExitErr())
	assert.ErrorIs(t, h.MarkReady(), ErrNotStarting)
}

func TestStopOnDeadServiceIsNoop(t *testing.T) {
	sup := testSupervisor()
	h, err := sup.Start(context.Background(), ServiceSpec{
		Name:    "shortlived",
		Command: []string{"/bin/true"},
	})
	require.NoError(t, err)

	<-h.Done()
	require.NoError(t, h.Stop(context.Background()))
	assert.Equal(t, StateDead, h.State())
}

func TestOutputCaptured(t *testing.T) {
	sup := testSupervisor()
	h, err := sup.Start(context.Background(), ServiceSpec{
		Name:    "echoer",
		Command: []string{"/bin/sh", "-c", "echo hello-stdout; echo hello-stderr >&2"},
	})
	require.NoError(t, err)
	<-h.Done()

	out := h.Output().String()
	assert.Contains(t, out, "hello-stdout")
	assert.Contains(t, out, "hello-stderr")
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	sup := testSupervisor()
	_, err := sup.Start(context.Background(), ServiceSpec{Name: "nocmd"})
	require.Error(t, err)

	_, err = sup.Start(context.Background(), ServiceSpec{Command: []string{"/bin/true"}})
	require.Error(t, err)
}

func TestEvictFailsWhenHolderSurvives(t *testing.T) {
	sup := testSupervisor()
	// A pid nothing owns: the kill fails and the holder shows up again
	// on the confirmation pass.
	sup.portPids = func(ctx context.Context, port int) []int {
		return []int{999999}
	}

	err := sup.Evict(context.Background(), ServiceSpec{Name: "svc", Port: 4001})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortHeld)
	assert.Contains(t, err.Error(), "999999")
}

func TestEvictConfirmsPortFree(t *testing.T) {
	sup := testSupervisor()
	calls := 0
	sup.portPids = func(ctx context.Context, port int) []int {
		calls++
		if calls == 1 {
			return []int{999999}
		}
		return nil
	}

	require.NoError(t, sup.Evict(context.Background(), ServiceSpec{Name: "svc", Port: 4001}))
	assert.Equal(t, 2, calls, "eviction re-checks the port after settling")
}

func TestEvictWithFreePortIsNoop(t *testing.T) {
	sup := testSupervisor()
	calls := 0
	sup.portPids = func(ctx context.Context, port int) []int {
		calls++
		return nil
	}

	require.NoError(t, sup.Evict(context.Background(), ServiceSpec{Name: "svc", Port: 4001}))
	assert.Equal(t, 1, calls, "nothing to evict, nothing to confirm")
}

func TestBuildRunsCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "built")

	sup := testSupervisor()
	err := sup.Build(context.Background(), ServiceSpec{
		Name:         "buildable",
		Command:      []string{"/bin/true"},
		BuildCommand: []string{"/bin/sh", "-c", "touch " + marker},
	})
	require.NoError(t, err)
	assert.FileExists(t, marker)
}

func TestBuildFailureIncludesOutput(t *testing.T) {
	sup := testSupervisor()
	err := sup.Build(context.Background(), ServiceSpec{
		Name:         "broken",
		Command:      []string{"/bin/true"},
		BuildCommand: []string{"/bin/sh", "-c", "echo compile error >&2; exit 1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, err.Error(), "compile error")
}

func TestBuildWithoutCommandIsNoop(t *testing.T) {
	sup := testSupervisor()
	require.NoError(t, sup.Build(context.Background(), sleepSpec("plain")))
}

func TestOutputSinkCap(t *testing.T) {
	sink := NewOutputSink(10)
	n, err := sink.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, "0123456789", sink.String())
	assert.Equal(t, 6, sink.Dropped())

	n, err = sink.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 10, sink.Dropped())
}

func TestOutputSinkTail(t *testing.T) {
	sink := NewOutputSink(0)
	_, err := sink.Write([]byte("one\ntwo\nthree\nfour\n"))
	require.NoError(t, err)

	assert.Equal(t, "three\nfour", sink.Tail(2))
	assert.Equal(t, "one\ntwo\nthree\nfour", sink.Tail(10))
	assert.Empty(t, sink.Tail(0))
}

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := strings.TrimSpace(`
services:
  - name: mcp-server
    command: ["./target/debug/http-oauth2-server"]
    build_command: ["cargo", "build", "--bin", "http-oauth2-server"]
    dir: ..
    port: 3001
    kill_pattern: http-oauth2-server
    env:
      - RUST_LOG=info
  - name: jwks-server
    command: ["./jwks"]
    port: 3004
    health_path: /.well-known/jwks.json
    ready: ok
    gate_attempts: 10
`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "mcp-server", specs[0].Name)
	assert.Equal(t, 3001, specs[0].Port)
	assert.Equal(t, "http-oauth2-server", specs[0].KillPattern)
	assert.Equal(t, []string{"RUST_LOG=info"}, specs[0].Env)
	assert.Equal(t, []string{"cargo", "build", "--bin", "http-oauth2-server"}, specs[0].BuildCommand)

	assert.Equal(t, "/.well-known/jwks.json", specs[1].HealthPath)
	assert.Equal(t, "ok", specs[1].Ready)
	assert.Equal(t, 10, specs[1].GateAttempts)
}

func TestLoadSpecsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("services: []\n"), 0o644))
	_, err := LoadSpecs(empty)
	require.Error(t, err)

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("services:\n  - command: [\"/bin/true\"]\n"), 0o644))
	_, err = LoadSpecs(unnamed)
	require.Error(t, err)

	badReady := filepath.Join(dir, "ready.yaml")
	require.NoError(t, os.WriteFile(badReady,
		[]byte("services:\n  - name: x\n    command: [\"/bin/true\"]\n    ready: maybe\n"), 0o644))
	_, err = LoadSpecs(badReady)
	require.Error(t, err)

	gateless := filepath.Join(dir, "gateless.yaml")
	require.NoError(t, os.WriteFile(gateless,
		[]byte("services:\n  - name: x\n    command: [\"/bin/true\"]\n    health_path: /\n"), 0o644))
	_, err = LoadSpecs(gateless)
	require.Error(t, err)

	_, err = LoadSpecs(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
