// Package terminal draws intensity grids with ANSI truecolor half blocks.
package terminal

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/noisefield/internal/palette"
)

const (
	ESC   = "\x1b"
	CSI   = ESC + "["
	Reset = CSI + "0m"

	upperHalf = '▀'
)

// MoveTo positions the cursor at row, col (1-based).
func MoveTo(row, col int) string {
	return fmt.Sprintf("%s%d;%dH", CSI, row, col)
}

func ClearScreen() string      { return CSI + "2J" }
func ClearLine() string        { return CSI + "2K" }
func HideCursor() string       { return CSI + "?25l" }
func ShowCursor() string       { return CSI + "?25h" }
func EnableAltScreen() string  { return CSI + "?1049h" }
func DisableAltScreen() string { return CSI + "?1049l" }

// Encoder turns a row-major size×size grid into text. Each text row holds two
// pixel rows: the upper pixel is the foreground of '▀', the lower one the
// background.
type Encoder struct {
	lut  []color.NRGBA
	gain float64
}

// NewEncoder colours values through ramp after dividing by gain. A nil ramp
// uses grayscale.
func NewEncoder(ramp *palette.Ramp, gain float64) *Encoder {
	if ramp == nil {
		ramp, _ = palette.Lookup("gray")
	}
	e := &Encoder{lut: ramp.Table(256)}
	e.SetGain(gain)
	return e
}

// SetGain changes the divisor applied before colouring. Non-positive or
// non-finite values mean 1.
func (e *Encoder) SetGain(gain float64) {
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		gain = 1
	}
	e.gain = gain
}

// Rows returns the number of text rows needed for size pixel rows.
func Rows(size int) int { return (size + 1) / 2 }

// Encode writes the grid starting at the cursor's current row, one line per
// text row, each line ending with a reset and "\r\n".
func (e *Encoder) Encode(values []float64, size int) (string, error) {
	if size < 1 || len(values) != size*size {
		return "", fmt.Errorf("grid has %d cells, want %d×%d", len(values), size, size)
	}

	var sb strings.Builder
	sb.Grow(Rows(size) * size * 40)
	for row := 0; row < size; row += 2 {
		for col := 0; col < size; col++ {
			top := e.color(values[row*size+col])
			bottom := color.NRGBA{A: 255}
			if row+1 < size {
				bottom = e.color(values[(row+1)*size+col])
			}
			writeCell(&sb, top, bottom)
		}
		sb.WriteString(Reset)
		sb.WriteString("\r\n")
	}
	return sb.String(), nil
}

func (e *Encoder) color(v float64) color.NRGBA {
	t := v / e.gain
	switch {
	case t != t || t <= 0:
		return e.lut[0]
	case t >= 1:
		return e.lut[len(e.lut)-1]
	}
	return e.lut[int(t*float64(len(e.lut)-1)+0.5)]
}

func writeCell(sb *strings.Builder, fg, bg color.NRGBA) {
	sb.WriteString(CSI + "38;2;")
	writeRGB(sb, fg)
	sb.WriteString(";48;2;")
	writeRGB(sb, bg)
	sb.WriteByte('m')
	sb.WriteRune(upperHalf)
}

func writeRGB(sb *strings.Builder, c color.NRGBA) {
	sb.WriteString(strconv.Itoa(int(c.R)))
	sb.WriteByte(';')
	sb.WriteString(strconv.Itoa(int(c.G)))
	sb.WriteByte(';')
	sb.WriteString(strconv.Itoa(int(c.B)))
}
