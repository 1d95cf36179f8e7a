package noise

import (
	"fmt"
	"math"
)

// CoordinateOffset is added to every coordinate before scaling. It keeps
// sampling away from the origin, where the lattice mirrors around zero.
const CoordinateOffset = 1_000_000.0

// maxLattice bounds scaled coordinates so lattice indices stay exact integers.
const maxLattice = 1 << 52

// Color is one sampled pixel. Channels are in [0, Gain].
type Color struct {
	R, G, B, A float64
}

// Field evaluates fractal noise for a fixed parameter set. A Field holds no
// mutable state and is safe for concurrent use.
type Field struct {
	params Params
	eval2  func(x, y float64) float64
	eval3  func(x, y, z float64) float64
}

// New validates p and returns a Field for it.
func New(p Params) (*Field, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	Initialize()

	f := &Field{params: p}
	switch p.Kind {
	case Value:
		f.eval2, f.eval3 = Value2, Value3
	case Perlin:
		f.eval2, f.eval3 = Perlin2, Perlin3
	case Simplex:
		f.eval2, f.eval3 = Simplex2, Simplex3
	}
	return f, nil
}

// MustNew is like New but panics on invalid parameters.
func MustNew(p Params) *Field {
	f, err := New(p)
	if err != nil {
		panic(err)
	}
	return f
}

// Params returns the parameters the field was built with.
func (f *Field) Params() Params { return f.params }

// Intensity returns the normalised fractal value at (x, y).
func (f *Field) Intensity(x, y float64) (float64, error) {
	if !finite(x) || !finite(y) {
		return 0, fmt.Errorf("%w: coordinate (%v, %v)", ErrNumericOverflow, x, y)
	}
	p := f.params
	x = (x + CoordinateOffset) * p.Frequency
	y = (y + CoordinateOffset) * p.Frequency

	var sum, weight float64
	amp := 1.0
	for o := 0; o < p.Octaves; o++ {
		if outOfRange(x) || outOfRange(y) {
			return 0, fmt.Errorf("%w: octave %d coordinate (%v, %v) out of range", ErrNumericOverflow, o, x, y)
		}
		sum += amp * remap(f.eval2(x, y))
		weight += amp
		amp *= p.Persistence
		x, y = f.step(x), f.step(y)
	}
	return f.finish(sum, weight)
}

// Intensity3 returns the normalised fractal value at (x, y, z).
func (f *Field) Intensity3(x, y, z float64) (float64, error) {
	if !finite(x) || !finite(y) || !finite(z) {
		return 0, fmt.Errorf("%w: coordinate (%v, %v, %v)", ErrNumericOverflow, x, y, z)
	}
	p := f.params
	x = (x + CoordinateOffset) * p.Frequency
	y = (y + CoordinateOffset) * p.Frequency
	z = (z + CoordinateOffset) * p.Frequency

	var sum, weight float64
	amp := 1.0
	for o := 0; o < p.Octaves; o++ {
		if outOfRange(x) || outOfRange(y) || outOfRange(z) {
			return 0, fmt.Errorf("%w: octave %d coordinate (%v, %v, %v) out of range", ErrNumericOverflow, o, x, y, z)
		}
		sum += amp * remap(f.eval3(x, y, z))
		weight += amp
		amp *= p.Persistence
		x, y, z = f.step(x), f.step(y), f.step(z)
	}
	return f.finish(sum, weight)
}

// Sample returns the intensity at (x, y) packaged as a color. With alpha the
// intensity is written to all four channels, otherwise alpha is opaque.
func (f *Field) Sample(x, y float64, alpha bool) (Color, error) {
	v, err := f.Intensity(x, y)
	if err != nil {
		return Color{}, err
	}
	return pack(v, alpha), nil
}

// Sample3 is Sample for a 3D coordinate.
func (f *Field) Sample3(x, y, z float64, alpha bool) (Color, error) {
	v, err := f.Intensity3(x, y, z)
	if err != nil {
		return Color{}, err
	}
	return pack(v, alpha), nil
}

func (f *Field) step(c float64) float64 {
	if f.params.Legacy {
		return c / f.params.Lacunarity
	}
	return c * f.params.Lacunarity
}

func (f *Field) finish(sum, weight float64) (float64, error) {
	norm := weight
	if f.params.Legacy {
		norm = float64(f.params.Octaves)
	}
	v := sum / norm * f.params.Gain
	if !finite(v) {
		return 0, fmt.Errorf("%w: fractal sum diverged (%s)", ErrNumericOverflow, f.params)
	}
	return v, nil
}

func outOfRange(c float64) bool { return !(math.Abs(c) < maxLattice) }

// remap moves a base evaluator result from [-1, 1] to [0, 1] as (v+1)/2,
// clamping rounding overshoot at the lattice extremes.
func remap(v float64) float64 {
	return math.Max(0, math.Min(1, (v+1)*0.5))
}

func pack(v float64, alpha bool) Color {
	if alpha {
		return Color{R: v, G: v, B: v, A: v}
	}
	return Color{R: v, G: v, B: v, A: 1}
}
