package render

import (
	"fmt"
	"strings"
	"time"
)

// StageTimer measures one named stage of a render, the Go counterpart of
// stats.py's Timer context manager.
type StageTimer struct {
	name    string
	start   time.Time
	elapsed time.Duration
}

func (t *StageTimer) Stop() {
	t.elapsed = time.Since(t.start)
}

// Stats accumulates per-stage timings for a single render, surfaced to
// callers as a Server-Timing header per spec.md §5's observability section.
type Stats struct {
	stages []*StageTimer
}

func NewStats() *Stats { return &Stats{} }

// Start begins timing a named stage and records it for later reporting.
func (s *Stats) Start(name string) *StageTimer {
	t := &StageTimer{name: name, start: time.Now()}
	s.stages = append(s.stages, t)
	return t
}

// ServerTiming renders accumulated stage timings as a Server-Timing header
// value: "op0;desc=\"expand\";dur=1.200, op1;desc=\"composite\";dur=40.500".
func (s *Stats) ServerTiming() string {
	parts := make([]string, 0, len(s.stages))
	for i, t := range s.stages {
		ms := float64(t.elapsed) / float64(time.Millisecond)
		parts = append(parts, fmt.Sprintf("op%d;desc=%q;dur=%.3f", i, t.name, ms))
	}
	return strings.Join(parts, ", ")
}

// SourceTiming renders the list of sources that contributed pixels as
// Server-Timing entries of the form "srcN;desc=\"name\"". The desc carries
// the source name only; source URLs are not included.
func SourceTiming(sources []string) string {
	parts := make([]string, 0, len(sources))
	for i, name := range sources {
		parts = append(parts, fmt.Sprintf("src%d;desc=%q", i, name))
	}
	return strings.Join(parts, ", ")
}
