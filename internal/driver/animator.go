// Package driver advances a depth coordinate over time and samples one 3D
// slice of the field per frame, the way an interactive display would.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MeKo-Tech/noisefield/internal/noise"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultSpeed    = 0.5
	DefaultSize     = 64
)

// Config configures an Animator.
type Config struct {
	Params noise.Params
	Size   int
	// Speed is the depth advance per second.
	Speed float64
	// Interval is the frame cadence used by Run.
	Interval time.Duration
	// OriginX and OriginY select the window of the plane being shown.
	OriginX, OriginY float64
	StartDepth       float64
	Alpha            bool
	Clock            clock.Clock
	Logger           *slog.Logger
}

// Frame is one sampled slice.
type Frame struct {
	Index int
	Size  int
	Depth float64
	// Elapsed is the time since the animator started.
	Elapsed time.Duration
	// Duration is the time spent sampling this frame.
	Duration time.Duration
	Params   noise.Params
	Pixels   []noise.Color
}

// Intensities returns the red channel of every pixel.
func (f Frame) Intensities() []float64 {
	out := make([]float64, len(f.Pixels))
	for i, c := range f.Pixels {
		out[i] = c.R
	}
	return out
}

// Animator produces frames. Step and Run must not be called concurrently;
// Resize and SetParams may be called from any goroutine.
type Animator struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	field   *noise.Field
	size    int
	depth   float64
	start   time.Time
	last    time.Time
	index   int
	skipped int
}

// NewAnimator validates cfg and fills defaults.
func NewAnimator(cfg Config) (*Animator, error) {
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if err := checkSize(cfg.Size); err != nil {
		return nil, err
	}
	field, err := noise.New(cfg.Params)
	if err != nil {
		return nil, err
	}

	now := cfg.Clock.Now()
	return &Animator{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		field:  field,
		size:   cfg.Size,
		depth:  cfg.StartDepth,
		start:  now,
		last:   now,
	}, nil
}

func checkSize(size int) error {
	if size < 1 || size > noise.MaxGridSize {
		return fmt.Errorf("%w: frame size must be within [1,%d], got %d", noise.ErrInvalidParameter, noise.MaxGridSize, size)
	}
	return nil
}

func (a *Animator) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// Resize changes the slice size used by the next frame.
func (a *Animator) Resize(size int) error {
	if err := checkSize(size); err != nil {
		return err
	}
	a.mu.Lock()
	a.size = size
	a.mu.Unlock()
	return nil
}

// SetParams swaps the noise parameters used by the next frame.
func (a *Animator) SetParams(p noise.Params) error {
	field, err := noise.New(p)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.field = field
	a.mu.Unlock()
	return nil
}

// Params returns the current noise parameters.
func (a *Animator) Params() noise.Params {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.field.Params()
}

// Skipped returns the number of ticks Run dropped because frames were late.
func (a *Animator) Skipped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped
}

// Step advances depth by Speed times the time since the previous step and
// samples a slice at the new depth.
func (a *Animator) Step(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	now := a.clock.Now()
	a.mu.Lock()
	a.depth += a.cfg.Speed * now.Sub(a.last).Seconds()
	a.last = now
	f := Frame{
		Index:   a.index,
		Size:    a.size,
		Depth:   a.depth,
		Elapsed: now.Sub(a.start),
	}
	field := a.field
	a.index++
	a.mu.Unlock()

	pixels, err := field.SampleGrid3(a.cfg.OriginX, a.cfg.OriginY, f.Depth, f.Size, a.cfg.Alpha)
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w", f.Index, err)
	}
	f.Pixels = pixels
	f.Params = field.Params()
	f.Duration = a.clock.Since(now)
	return f, nil
}

// Run produces a frame on every tick of the configured interval and hands it
// to sink until ctx is cancelled or sink fails. Ticks that arrive while a
// frame is late are dropped instead of queued.
func (a *Animator) Run(ctx context.Context, sink func(Frame) error) error {
	ticker := a.clock.Ticker(a.cfg.Interval)
	defer ticker.Stop()
	return a.run(ctx, ticker.C, sink)
}

func (a *Animator) run(ctx context.Context, ticks <-chan time.Time, sink func(Frame) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticks:
			if lag := a.clock.Since(tick); lag >= a.cfg.Interval {
				a.mu.Lock()
				a.skipped++
				a.mu.Unlock()
				a.log().Debug("dropping late tick", "lag", lag)
				continue
			}
		}

		frame, err := a.Step(ctx)
		if err != nil {
			return err
		}
		if err := sink(frame); err != nil {
			return err
		}
	}
}
