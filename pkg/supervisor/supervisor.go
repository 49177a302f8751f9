// Package supervisor starts, tracks and tears down the service processes
// under test. Each service runs in its own process group so that teardown
// reaches helper children, not just the spawned binary.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mcptester/mcptester/pkg/duration"
)

// State is a handle's lifecycle position.
type State int

const (
	// StateStarting means the process is running but not yet confirmed ready.
	StateStarting State = iota
	// StateReady means a health gate confirmed the service is serving.
	StateReady
	// StateStopped means the supervisor shut the service down.
	StateStopped
	// StateDead means the process exited on its own.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotStarting is returned by MarkReady when the handle already left the
// starting state. The usual cause is the process dying mid-gate.
var ErrNotStarting = errors.New("service is not in starting state")

// ErrBuildFailed wraps build command failures.
var ErrBuildFailed = errors.New("build failed")

// ErrStartFailed wraps process launch failures.
var ErrStartFailed = errors.New("start failed")

// ErrPortHeld means a stale port holder survived eviction.
var ErrPortHeld = errors.New("port still held after eviction")

// Handle tracks one running service.
type Handle struct {
	spec   ServiceSpec
	cmd    *exec.Cmd
	sink   *OutputSink
	logger *slog.Logger
	grace  time.Duration

	mu       sync.Mutex
	state    State
	stopping bool
	exitErr  error
	done     chan struct{}
}

// Name returns the service name.
func (h *Handle) Name() string { return h.spec.Name }

// Pid returns the process id.
func (h *Handle) Pid() int { return h.cmd.Process.Pid }

// Output returns the sink capturing combined stdout and stderr.
func (h *Handle) Output() *OutputSink { return h.sink }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed when the process has exited for any reason.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the process exit error, valid once Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// MarkReady moves the handle from starting to ready. It fails with
// ErrNotStarting if the process already died or was stopped.
func (h *Handle) MarkReady() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateStarting {
		return fmt.Errorf("%w: %s is %s", ErrNotStarting, h.spec.Name, h.state)
	}
	h.state = StateReady
	return nil
}

// Stop shuts the service down: SIGTERM to the process group, a grace period,
// then SIGKILL. It is idempotent and safe to call on a dead service.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateStopped, StateDead:
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	h.mu.Unlock()

	pid := h.cmd.Process.Pid
	h.logger.Debug("stopping service", slog.String("service", h.spec.Name), slog.Int("pid", pid))

	// Negative pid targets the whole process group.
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		// Group may already be gone; fall back to the parent alone.
		_ = h.cmd.Process.Signal(unix.SIGTERM)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(h.grace):
	case <-ctx.Done():
	}

	h.logger.Warn("service did not exit in grace period, killing",
		slog.String("service", h.spec.Name), slog.Int("pid", pid))
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		_ = h.cmd.Process.Kill()
	}
	<-h.done
	return nil
}

// wait runs in its own goroutine for the life of the process.
func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	if h.stopping {
		h.state = StateStopped
	} else {
		h.state = StateDead
	}
	h.mu.Unlock()
	close(h.done)
}

// Config holds supervisor settings.
type Config struct {
	// Logger receives lifecycle events (default slog.Default())
	Logger *slog.Logger

	// Grace is how long Stop waits between SIGTERM and SIGKILL
	// (default 5s)
	Grace time.Duration

	// SinkCap bounds per-service captured output in bytes (default 1MB)
	SinkCap int
}

// Supervisor builds, starts and evicts service processes.
type Supervisor struct {
	cfg Config

	// portPids is swappable in tests.
	portPids func(ctx context.Context, port int) []int
}

// New creates a supervisor. Missing config fields get defaults.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Grace == 0 {
		cfg.Grace = duration.StopGrace
	}
	return &Supervisor{cfg: cfg, portPids: pidsOnPort}
}

// Build runs the spec's build command to completion. Specs without one are
// a no-op. Build output is returned inside the error on failure.
func (s *Supervisor) Build(ctx context.Context, spec ServiceSpec) error {
	if len(spec.BuildCommand) == 0 {
		return nil
	}
	buildCtx, cancel := context.WithTimeout(ctx, duration.BuildTimeout)
	defer cancel()

	s.cfg.Logger.Info("building service",
		slog.String("service", spec.Name),
		slog.String("command", strings.Join(spec.BuildCommand, " ")))

	cmd := exec.CommandContext(buildCtx, spec.BuildCommand[0], spec.BuildCommand[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	sink := NewOutputSink(s.cfg.SinkCap)
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("building %s: %w: %v\n%s", spec.Name, ErrBuildFailed, err, sink.Tail(20))
	}
	return nil
}

// Start evicts stale instances, launches the service in a fresh process
// group and returns a handle in the starting state.
func (s *Supervisor) Start(ctx context.Context, spec ServiceSpec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := s.Evict(ctx, spec); err != nil {
		return nil, err
	}

	sink := NewOutputSink(s.cfg.SinkCap)
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = sink
	cmd.Stderr = sink
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w: %v", spec.Name, ErrStartFailed, err)
	}

	h := &Handle{
		spec:   spec,
		cmd:    cmd,
		sink:   sink,
		logger: s.cfg.Logger,
		grace:  s.cfg.Grace,
		state:  StateStarting,
		done:   make(chan struct{}),
	}
	go h.wait()

	s.cfg.Logger.Info("service started",
		slog.String("service", spec.Name),
		slog.Int("pid", cmd.Process.Pid))
	return h, nil
}

// Evict kills stale processes that would collide with the spec: anything
// matching the kill pattern, then anything still bound to the port. After
// killing it waits for the kernel to release the socket and confirms the
// port is actually free; a holder that survives is an error, not a warning.
func (s *Supervisor) Evict(ctx context.Context, spec ServiceSpec) error {
	evicted := false

	if spec.KillPattern != "" {
		if err := exec.CommandContext(ctx, "pkill", "-f", spec.KillPattern).Run(); err == nil {
			s.cfg.Logger.Debug("evicted stale processes",
				slog.String("service", spec.Name),
				slog.String("pattern", spec.KillPattern))
			evicted = true
		}
	}

	if spec.Port > 0 {
		for _, pid := range s.portPids(ctx, spec.Port) {
			if err := unix.Kill(pid, unix.SIGKILL); err == nil {
				s.cfg.Logger.Debug("evicted port holder",
					slog.Int("port", spec.Port), slog.Int("pid", pid))
			}
			evicted = true
		}
	}

	if evicted {
		select {
		case <-time.After(duration.EvictSettle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if spec.Port > 0 && evicted {
		if held := s.portPids(ctx, spec.Port); len(held) > 0 {
			return fmt.Errorf("evicting %s: %w: port %d held by pids %v",
				spec.Name, ErrPortHeld, spec.Port, held)
		}
	}
	return nil
}

// pidsOnPort asks lsof which processes hold a listening socket on the port.
func pidsOnPort(ctx context.Context, port int) []int {
	out, err := exec.CommandContext(ctx, "lsof", "-ti", fmt.Sprintf(":%d", port)).Output()
	if err != nil {
		return nil
	}
	var pids []int
	for _, line := range strings.Fields(string(out)) {
		if pid, err := strconv.Atoi(line); err == nil && pid > 1 {
			pids = append(pids, pid)
		}
	}
	return pids
}
