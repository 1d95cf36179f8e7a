package cmd

import (
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
	"github.com/MeKo-Tech/noisefield/internal/render"
)

type flagBinding struct {
	key  string
	flag string
}

func bindFlags(cmd *cobra.Command, bindings []flagBinding) {
	for _, bf := range bindings {
		if err := viper.BindPFlag(bf.key, cmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// addImageFlags registers the colouring and post-processing flags shared by
// commands that write PNGs, bound below section.
func addImageFlags(cmd *cobra.Command, section string) {
	cmd.Flags().String("ramp", "", "Colour ramp ("+strings.Join(palette.Names(), ", ")+"); empty writes raw grey/alpha")
	cmd.Flags().Float32("blur", 0, "Gaussian blur sigma applied after rendering")
	cmd.Flags().Float32("contrast", 0, "Contrast adjustment in percent (-100..100)")
	cmd.Flags().Int("scale", 1, "Integer nearest-neighbour upscale factor")
	cmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")

	bindFlags(cmd, []flagBinding{
		{section + ".ramp", "ramp"},
		{section + ".blur", "blur"},
		{section + ".contrast", "contrast"},
		{section + ".scale", "scale"},
		{section + ".png_compression", "png-compression"},
	})
}

type imageSettings struct {
	ramp        *palette.Ramp
	post        render.Options
	compression png.CompressionLevel
}

func imageSettingsFrom(section string) (imageSettings, error) {
	var s imageSettings
	if name := viper.GetString(section + ".ramp"); name != "" {
		ramp, err := palette.Lookup(name)
		if err != nil {
			return s, err
		}
		s.ramp = ramp
	}

	level, err := render.ParseCompression(viper.GetString(section + ".png_compression"))
	if err != nil {
		return s, err
	}
	s.compression = level

	s.post = render.Options{
		BlurSigma: float32(viper.GetFloat64(section + ".blur")),
		Contrast:  float32(viper.GetFloat64(section + ".contrast")),
		Scale:     viper.GetInt(section + ".scale"),
	}
	if s.post.Contrast < -100 || s.post.Contrast > 100 {
		return s, fmt.Errorf("contrast must be within [-100,100], got %v", s.post.Contrast)
	}
	if s.post.Scale < 1 || s.post.Scale > 16 {
		return s, fmt.Errorf("scale must be within [1,16], got %d", s.post.Scale)
	}
	return s, nil
}

// draw colours pixels (through the ramp when one is set) and post-processes
// the result.
func (s imageSettings) draw(pixels []noise.Color, size int, gain float64) (*image.NRGBA, error) {
	var (
		img *image.NRGBA
		err error
	)
	if s.ramp != nil {
		img, err = render.ToImageWithRamp(intensities(pixels), size, s.ramp, gain)
	} else {
		img, err = render.ToImage(pixels, size)
	}
	if err != nil {
		return nil, err
	}
	return render.PostProcess(img, s.post), nil
}

func intensities(pixels []noise.Color) []float64 {
	out := make([]float64, len(pixels))
	for i, c := range pixels {
		out[i] = c.R
	}
	return out
}
