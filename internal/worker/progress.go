package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Progress renders a one-line progress bar for a pool run.
type Progress struct {
	clock     clock.Clock
	startTime time.Time
	output    io.Writer
	unit      string
	total     int
	completed int
	failed    int
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a tracker for total items named unit ("tiles",
// "frames"). Output goes to stderr when enabled.
func NewProgress(total int, unit string, enabled bool) *Progress {
	return newProgress(clock.New(), os.Stderr, total, unit, enabled)
}

func newProgress(clk clock.Clock, out io.Writer, total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "items"
	}
	return &Progress{
		clock:     clk,
		startTime: clk.Now(),
		output:    out,
		unit:      unit,
		total:     total,
		enabled:   enabled,
	}
}

// Update records progress and redraws the bar when enabled.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback adapts Update to a pool Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

type snapshot struct {
	completed, total, failed int
	elapsed                  time.Duration
}

func (p *Progress) snapshot() snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return snapshot{p.completed, p.total, p.failed, p.clock.Since(p.startTime)}
}

func (s snapshot) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.completed) / s.elapsed.Seconds()
}

// Print writes the current progress line.
func (p *Progress) Print() {
	s := p.snapshot()
	rate := s.rate()

	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(s.total-s.completed)/rate) * time.Second
	}

	const barWidth = 30
	filled := 0
	if s.total > 0 {
		filled = min(barWidth, s.completed*barWidth/s.total)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %d/%d %s", bar, s.completed, s.total, p.unit)
	if s.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", s.failed)
	}
	line += fmt.Sprintf(" - %.1f %s/sec", rate, p.unit)
	if eta > 0 && s.completed < s.total {
		line += " - ETA: " + formatDuration(eta)
	}
	if s.completed == s.total {
		line += " - Done in " + formatDuration(s.elapsed)
	}

	// pad to clear the previous line
	fmt.Fprint(p.output, line+"          ")
}

// Done prints the final line and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.output)
	}
}

// Summary describes the finished run.
func (p *Progress) Summary() string {
	s := p.snapshot()
	return fmt.Sprintf("Rendered %d/%d %s (%d failed) in %s (%.1f %s/sec)",
		s.completed-s.failed, s.total, p.unit, s.failed, formatDuration(s.elapsed), s.rate(), p.unit)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
