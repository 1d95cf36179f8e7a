package noise

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrInvalidParameter reports a configuration or call argument the engine
	// refuses to evaluate.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNumericOverflow reports non-finite coordinates or results.
	ErrNumericOverflow = errors.New("numeric overflow")
)

// Kind selects the base noise evaluator.
type Kind int

const (
	Value Kind = iota
	Perlin
	Simplex
)

func (k Kind) String() string {
	switch k {
	case Value:
		return "value"
	case Perlin:
		return "perlin"
	case Simplex:
		return "simplex"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "value", "perlin" or "simplex" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "value":
		return Value, nil
	case "perlin":
		return Perlin, nil
	case "simplex":
		return Simplex, nil
	}
	return 0, fmt.Errorf("%w: unknown noise type %q (want value, perlin or simplex)", ErrInvalidParameter, s)
}

// Params configures fractal noise.
type Params struct {
	Kind        Kind
	Octaves     int
	Frequency   float64
	Lacunarity  float64
	Persistence float64
	Gain        float64
	// Legacy divides coordinates by Lacunarity between octaves and normalises
	// by the octave count instead of the accumulated amplitude.
	Legacy bool
}

// DefaultParams returns the parameters the reference driver starts with.
func DefaultParams() Params {
	return Params{
		Kind:        Simplex,
		Octaves:     4,
		Frequency:   0.2,
		Lacunarity:  1.9,
		Persistence: 1.8,
		Gain:        0.33,
	}
}

// Validate returns every problem with p, each wrapping ErrInvalidParameter.
func (p Params) Validate() error {
	var err error
	if p.Kind < Value || p.Kind > Simplex {
		err = multierr.Append(err, fmt.Errorf("%w: unknown noise type %d", ErrInvalidParameter, int(p.Kind)))
	}
	if p.Octaves < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: octaves must be >= 1, got %d", ErrInvalidParameter, p.Octaves))
	}
	err = multierr.Append(err, positive("frequency", p.Frequency))
	err = multierr.Append(err, positive("lacunarity", p.Lacunarity))
	err = multierr.Append(err, positive("persistence", p.Persistence))
	if !finite(p.Gain) {
		err = multierr.Append(err, fmt.Errorf("%w: gain must be finite, got %v", ErrInvalidParameter, p.Gain))
	}
	return err
}

func positive(name string, v float64) error {
	if !finite(v) || v <= 0 {
		return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidParameter, name, v)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (p Params) String() string {
	s := fmt.Sprintf("%s octaves=%d frequency=%g lacunarity=%g persistence=%g gain=%g",
		p.Kind, p.Octaves, p.Frequency, p.Lacunarity, p.Persistence, p.Gain)
	if p.Legacy {
		s += " legacy"
	}
	return s
}
