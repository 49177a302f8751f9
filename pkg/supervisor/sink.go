package supervisor

import (
	"strings"
	"sync"

	"github.com/mcptester/mcptester/pkg/defaults"
)

// OutputSink captures combined service output up to a byte cap. Once full it
// drops further writes, so a log-spamming service cannot exhaust memory. The
// early output is kept because startup failures live there.
type OutputSink struct {
	mu      sync.Mutex
	buf     strings.Builder
	cap     int
	dropped int
}

// NewOutputSink creates a sink with the given cap; zero means 1MB.
func NewOutputSink(capBytes int) *OutputSink {
	if capBytes <= 0 {
		capBytes = defaults.MaxBodySize
	}
	return &OutputSink{cap: capBytes}
}

// Write implements io.Writer. It never returns an error; dropped bytes are
// counted instead.
func (s *OutputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.cap - s.buf.Len()
	if room <= 0 {
		s.dropped += len(p)
		return len(p), nil
	}
	if len(p) > room {
		s.dropped += len(p) - room
		p = p[:room]
	}
	s.buf.Write(p)
	return len(p), nil
}

// String returns everything captured so far.
func (s *OutputSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Dropped returns the number of bytes discarded after the cap was reached.
func (s *OutputSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Tail returns the last n lines of captured output, for failure diagnostics.
func (s *OutputSink) Tail(n int) string {
	s.mu.Lock()
	out := s.buf.String()
	s.mu.Unlock()

	if n <= 0 || out == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
