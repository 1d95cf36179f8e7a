// Package palette maps normalised intensities to colours.
package palette

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Stop is one colour anchor of a ramp.
type Stop struct {
	Pos   float64
	Color colorful.Color
}

// Ramp is a piecewise gradient blended in CIE Lab space.
type Ramp struct {
	Name  string
	stops []Stop
}

var builtin = map[string][]string{
	"gray":    {"#000000", "#ffffff"},
	"terrain": {"#0b2e59", "#2f6fa6", "#e3d9a6", "#5e8c3a", "#7a6a55", "#ffffff"},
	"ocean":   {"#02111f", "#06304f", "#0f6b8f", "#5fb3c9", "#d8f0f2"},
	"heat":    {"#000000", "#5a0b0b", "#c0301b", "#f28c28", "#ffe66b", "#ffffff"},
}

// Names lists the built-in ramps in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the built-in ramp with the given name.
func Lookup(name string) (*Ramp, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	hexes, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("unknown palette %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return FromHex(key, hexes...)
}

// FromHex builds an evenly spaced ramp from hex colour strings.
func FromHex(name string, hexes ...string) (*Ramp, error) {
	if len(hexes) < 2 {
		return nil, fmt.Errorf("palette %q needs at least two colours, got %d", name, len(hexes))
	}
	stops := make([]Stop, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("palette %q stop %d: %w", name, i, err)
		}
		stops[i] = Stop{Pos: float64(i) / float64(len(hexes)-1), Color: c}
	}
	return &Ramp{Name: name, stops: stops}, nil
}

// At returns the ramp colour for t, clamped to [0,1].
func (r *Ramp) At(t float64) color.NRGBA {
	c := r.colorAt(t)
	cr, cg, cb := c.Clamped().RGB255()
	return color.NRGBA{R: cr, G: cg, B: cb, A: 255}
}

func (r *Ramp) colorAt(t float64) colorful.Color {
	switch {
	case t != t || t <= 0:
		return r.stops[0].Color
	case t >= 1:
		return r.stops[len(r.stops)-1].Color
	}
	i := sort.Search(len(r.stops), func(i int) bool { return r.stops[i].Pos >= t })
	lo, hi := r.stops[i-1], r.stops[i]
	return lo.Color.BlendLab(hi.Color, (t-lo.Pos)/(hi.Pos-lo.Pos))
}

// Table precomputes n evenly spaced ramp colours.
func (r *Ramp) Table(n int) []color.NRGBA {
	if n < 2 {
		n = 2
	}
	out := make([]color.NRGBA, n)
	for i := range out {
		out[i] = r.At(float64(i) / float64(n-1))
	}
	return out
}
