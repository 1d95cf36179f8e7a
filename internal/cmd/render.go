package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/analysis"
	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a square noise image",
	Long: `Render samples a size x size window of the field starting at (x, y) and
writes it as a PNG. With --3d the window is a slice of the 3D field at
--depth. Large sizes (for example 1920) produce wallpapers.`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().Int("size", 256, fmt.Sprintf("Image edge in pixels (1..%d)", noise.MaxGridSize))
	renderCmd.Flags().Float64("x", 0, "X coordinate of the top-left pixel")
	renderCmd.Flags().Float64("y", 0, "Y coordinate of the top-left pixel")
	renderCmd.Flags().Bool("3d", false, "Render a slice of the 3D field")
	renderCmd.Flags().Float64("depth", 0, "Z coordinate of the slice (with --3d)")
	renderCmd.Flags().Bool("alpha", false, "Copy the intensity into the alpha channel")
	renderCmd.Flags().Bool("label", false, "Stamp the noise parameters into the image")
	renderCmd.Flags().Bool("stats", false, "Print intensity statistics after rendering")
	renderCmd.Flags().StringP("output", "o", "", "Output PNG path (default: <output-dir>/noise.png)")
	addImageFlags(renderCmd, "render")

	bindFlags(renderCmd, []flagBinding{
		{"render.size", "size"},
		{"render.x", "x"},
		{"render.y", "y"},
		{"render.3d", "3d"},
		{"render.depth", "depth"},
		{"render.alpha", "alpha"},
		{"render.label", "label"},
		{"render.stats", "stats"},
		{"render.output", "output"},
	})
}

func runRender(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := noiseParams()
	if err != nil {
		return err
	}
	settings, err := imageSettingsFrom("render")
	if err != nil {
		return err
	}
	field, err := noise.New(params)
	if err != nil {
		return err
	}

	size := viper.GetInt("render.size")
	x := viper.GetFloat64("render.x")
	y := viper.GetFloat64("render.y")
	alpha := viper.GetBool("render.alpha")

	var pixels []noise.Color
	if viper.GetBool("render.3d") {
		pixels, err = field.SampleGrid3(x, y, viper.GetFloat64("render.depth"), size, alpha)
	} else {
		pixels, err = field.SampleGrid(x, y, size, alpha)
	}
	if err != nil {
		return fmt.Errorf("failed to sample: %w", err)
	}

	img, err := settings.draw(pixels, size, params.Gain)
	if err != nil {
		return err
	}
	if viper.GetBool("render.label") {
		render.DrawLabel(img, params.String())
	}

	output := viper.GetString("render.output")
	if output == "" {
		output = filepath.Join(viper.GetString("output-dir"), "noise.png")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := render.WritePNG(output, img, settings.compression); err != nil {
		return err
	}
	logger.Info("Image written", "path", output, "size", img.Bounds().Dx(), "params", params.String())

	if viper.GetBool("render.stats") {
		summary, err := analysis.Summarize(intensities(pixels))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), summary.String())
	}
	return nil
}
