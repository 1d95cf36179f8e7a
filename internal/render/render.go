// Package render turns sampled noise grids into images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/gift"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
)

// ToImage uploads a row-major color grid verbatim, one pixel per cell.
func ToImage(grid []noise.Color, size int) (*image.NRGBA, error) {
	if err := checkLen(len(grid), size); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i, c := range grid {
		o := i * 4
		img.Pix[o+0] = channel(c.R)
		img.Pix[o+1] = channel(c.G)
		img.Pix[o+2] = channel(c.B)
		img.Pix[o+3] = channel(c.A)
	}
	return img, nil
}

// ToImageWithRamp colours intensities through a ramp. Values are divided by
// gain first so the full ramp is used regardless of the field's output range.
func ToImageWithRamp(values []float64, size int, ramp *palette.Ramp, gain float64) (*image.NRGBA, error) {
	if err := checkLen(len(values), size); err != nil {
		return nil, err
	}
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		gain = 1
	}
	lut := ramp.Table(256)
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i, v := range values {
		c := lut[channel(v/gain)]
		o := i * 4
		img.Pix[o+0] = c.R
		img.Pix[o+1] = c.G
		img.Pix[o+2] = c.B
		img.Pix[o+3] = c.A
	}
	return img, nil
}

func checkLen(n, size int) error {
	if size < 1 || n != size*size {
		return fmt.Errorf("grid has %d cells, want %d×%d", n, size, size)
	}
	return nil
}

func channel(v float64) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// Options controls post-processing. Zero values disable each step.
type Options struct {
	BlurSigma float32
	Contrast  float32 // percentage in [-100, 100]
	Scale     int     // integer upscale factor, nearest neighbour
}

func (o Options) empty() bool {
	return o.BlurSigma <= 0 && o.Contrast == 0 && o.Scale <= 1
}

// PostProcess applies the configured filters and returns a new image.
func PostProcess(img *image.NRGBA, opts Options) *image.NRGBA {
	if opts.empty() {
		return img
	}
	var filters []gift.Filter
	if opts.Scale > 1 {
		b := img.Bounds()
		filters = append(filters, gift.Resize(b.Dx()*opts.Scale, b.Dy()*opts.Scale, gift.NearestNeighborResampling))
	}
	if opts.BlurSigma > 0 {
		filters = append(filters, gift.GaussianBlur(opts.BlurSigma))
	}
	if opts.Contrast != 0 {
		filters = append(filters, gift.Contrast(opts.Contrast))
	}
	g := gift.New(filters...)
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// DrawLabel writes text in the top-left corner over a dark backing strip.
func DrawLabel(img draw.Image, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2
	strip := image.Rect(0, 0, width, height).Intersect(img.Bounds())
	draw.Draw(img, strip, image.NewUniform(color.NRGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(2, face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
