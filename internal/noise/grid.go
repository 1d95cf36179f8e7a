package noise

import (
	"fmt"
	"math"
)

// MaxGridSize is the largest edge length accepted by the grid samplers.
const MaxGridSize = 4096

// SampleGrid samples a size×size window whose top-left cell is
// (floor(x), floor(y)). The result is row-major: entry row*size+col holds
// the sample at (floor(x)+col, floor(y)+row).
func (f *Field) SampleGrid(x, y float64, size int, alpha bool) ([]Color, error) {
	ox, oy, err := gridOrigin(x, y, size)
	if err != nil {
		return nil, err
	}
	out := make([]Color, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			c, err := f.Sample(ox+float64(col), oy+float64(row), alpha)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// SampleGrid3 samples a size×size slice of the 3D field at depth z.
func (f *Field) SampleGrid3(x, y, z float64, size int, alpha bool) ([]Color, error) {
	ox, oy, err := gridOrigin(x, y, size)
	if err != nil {
		return nil, err
	}
	out := make([]Color, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			c, err := f.Sample3(ox+float64(col), oy+float64(row), z, alpha)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// IntensityGrid is SampleGrid without color packaging.
func (f *Field) IntensityGrid(x, y float64, size int) ([]float64, error) {
	ox, oy, err := gridOrigin(x, y, size)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			v, err := f.Intensity(ox+float64(col), oy+float64(row))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// IntensityGrid3 is SampleGrid3 without color packaging.
func (f *Field) IntensityGrid3(x, y, z float64, size int) ([]float64, error) {
	ox, oy, err := gridOrigin(x, y, size)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			v, err := f.Intensity3(ox+float64(col), oy+float64(row), z)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func gridOrigin(x, y float64, size int) (float64, float64, error) {
	if size < 1 || size > MaxGridSize {
		return 0, 0, fmt.Errorf("%w: grid size must be within [1,%d], got %d", ErrInvalidParameter, MaxGridSize, size)
	}
	if !finite(x) || !finite(y) {
		return 0, 0, fmt.Errorf("%w: grid origin (%v, %v)", ErrNumericOverflow, x, y)
	}
	return math.Floor(x), math.Floor(y), nil
}
