package sshview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/noisefield/internal/driver"
	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/terminal"
)

var errQuit = errors.New("viewer quit")

type window struct {
	width, height int
}

// sliceSize fits a square slice into the window, keeping one text row for
// the status line. Each text row shows two pixel rows.
func sliceSize(w window, maxSize int) int {
	size := min(w.width, 2*(w.height-1), maxSize)
	return max(size, 1)
}

type action int

const (
	actionQuit action = iota
	actionNextKind
	actionMoreOctaves
	actionFewerOctaves
	actionHigherFrequency
	actionLowerFrequency
	actionToggleLegacy
)

// parseInput maps key presses to viewer actions.
func parseInput(data []byte) []action {
	var actions []action
	for i := 0; i < len(data); {
		// arrow keys
		if i+2 < len(data) && data[i] == 0x1b && data[i+1] == '[' {
			switch data[i+2] {
			case 'A':
				actions = append(actions, actionMoreOctaves)
			case 'B':
				actions = append(actions, actionFewerOctaves)
			case 'C':
				actions = append(actions, actionHigherFrequency)
			case 'D':
				actions = append(actions, actionLowerFrequency)
			}
			i += 3
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		switch r {
		case 'q', 'Q', 3: // 3 is Ctrl-C
			actions = append(actions, actionQuit)
		case 'n', 'N', 't', 'T':
			actions = append(actions, actionNextKind)
		case '+', '=':
			actions = append(actions, actionMoreOctaves)
		case '-', '_':
			actions = append(actions, actionFewerOctaves)
		case ']':
			actions = append(actions, actionHigherFrequency)
		case '[':
			actions = append(actions, actionLowerFrequency)
		case 'l', 'L':
			actions = append(actions, actionToggleLegacy)
		}
		i += size
	}
	return actions
}

const (
	minOctaves   = 1
	maxOctaves   = 16
	maxFrequency = 1.0
	freqStep     = 1.25
)

// apply returns p changed by a. Limits follow the interactive slider ranges.
func apply(p noise.Params, a action) noise.Params {
	switch a {
	case actionNextKind:
		p.Kind = (p.Kind + 1) % (noise.Simplex + 1)
	case actionMoreOctaves:
		p.Octaves = min(p.Octaves+1, maxOctaves)
	case actionFewerOctaves:
		p.Octaves = max(p.Octaves-1, minOctaves)
	case actionHigherFrequency:
		p.Frequency = min(p.Frequency*freqStep, maxFrequency)
	case actionLowerFrequency:
		p.Frequency /= freqStep
	case actionToggleLegacy:
		p.Legacy = !p.Legacy
	}
	return p
}

func statusLine(f driver.Frame) string {
	p := f.Params
	s := fmt.Sprintf(" %s oct=%d freq=%.3g lac=%.3g pers=%.3g gain=%.3g  depth=%.2f  t=%.1fs  frame=%s  [n]type [+/-]oct [[/]]freq [q]uit",
		p.Kind, p.Octaves, p.Frequency, p.Lacunarity, p.Persistence, p.Gain,
		f.Depth, f.Elapsed.Seconds(), f.Duration.Round(100*time.Microsecond))
	if p.Legacy {
		s += " legacy"
	}
	return s
}

// stream runs an animator sized to the terminal and writes frames to out
// until ctx ends, the input closes, or the viewer presses q.
func (s *Server) stream(ctx context.Context, out io.Writer, in io.Reader, win window, windows <-chan window) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	anim, err := driver.NewAnimator(driver.Config{
		Params:   s.cfg.Params,
		Size:     sliceSize(win, s.cfg.MaxSize),
		Speed:    s.cfg.Speed,
		Interval: s.cfg.Interval,
		Clock:    s.cfg.Clock,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	enc := terminal.NewEncoder(s.cfg.Ramp, s.cfg.Params.Gain)

	io.WriteString(out, terminal.EnableAltScreen()+terminal.HideCursor()+terminal.ClearScreen())
	defer io.WriteString(out, terminal.Reset+terminal.ShowCursor()+terminal.DisableAltScreen())

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			if err != nil {
				cancel(err)
				return
			}
			for _, a := range parseInput(buf[:n]) {
				if a == actionQuit {
					cancel(errQuit)
					return
				}
				if err := anim.SetParams(apply(anim.Params(), a)); err != nil {
					s.log().Debug("ignoring parameter change", "error", err)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case w, ok := <-windows:
				if !ok {
					return
				}
				_ = anim.Resize(sliceSize(w, s.cfg.MaxSize))
			}
		}
	}()

	lastSize := 0
	err = anim.Run(ctx, func(f driver.Frame) error {
		var sb strings.Builder
		if f.Size != lastSize {
			sb.WriteString(terminal.ClearScreen())
			lastSize = f.Size
		}
		sb.WriteString(terminal.MoveTo(1, 1))
		enc.SetGain(f.Params.Gain)
		body, err := enc.Encode(f.Intensities(), f.Size)
		if err != nil {
			return err
		}
		sb.WriteString(body)
		sb.WriteString(terminal.ClearLine())
		sb.WriteString(statusLine(f))
		_, err = io.WriteString(out, sb.String())
		return err
	})
	if cause := context.Cause(ctx); cause != nil && errors.Is(err, context.Canceled) {
		return cause
	}
	return err
}
