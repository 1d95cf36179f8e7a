package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/analysis"
	"github.com/MeKo-Tech/noisefield/internal/noise"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print intensity statistics for a window of the field",
	Long: `Stats samples a size x size window and prints min, max, mean, standard
deviation, median, the 5th and 95th percentiles and a histogram. With
--all-kinds every noise kind is summarised using the same parameters.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Int("size", 128, "Window edge in samples")
	statsCmd.Flags().Float64("x", 0, "X coordinate of the window")
	statsCmd.Flags().Float64("y", 0, "Y coordinate of the window")
	statsCmd.Flags().Bool("3d", false, "Sample a slice of the 3D field")
	statsCmd.Flags().Float64("depth", 0, "Z coordinate of the slice (with --3d)")
	statsCmd.Flags().Bool("all-kinds", false, "Summarise value, perlin and simplex noise")

	bindFlags(statsCmd, []flagBinding{
		{"stats.size", "size"},
		{"stats.x", "x"},
		{"stats.y", "y"},
		{"stats.3d", "3d"},
		{"stats.depth", "depth"},
		{"stats.all_kinds", "all-kinds"},
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := noiseParams()
	if err != nil {
		return err
	}

	kinds := []noise.Kind{params.Kind}
	if viper.GetBool("stats.all_kinds") {
		kinds = []noise.Kind{noise.Value, noise.Perlin, noise.Simplex}
	}

	w := cmd.OutOrStdout()
	for _, kind := range kinds {
		p := params
		p.Kind = kind
		summary, err := summarizeWindow(p)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		fmt.Fprintf(w, "# %s\n%s\n", p, summary)
	}
	return nil
}

func summarizeWindow(p noise.Params) (analysis.Summary, error) {
	field, err := noise.New(p)
	if err != nil {
		return analysis.Summary{}, err
	}
	size := viper.GetInt("stats.size")
	x := viper.GetFloat64("stats.x")
	y := viper.GetFloat64("stats.y")

	var values []float64
	if viper.GetBool("stats.3d") {
		values, err = field.IntensityGrid3(x, y, viper.GetFloat64("stats.depth"), size)
	} else {
		values, err = field.IntensityGrid(x, y, size)
	}
	if err != nil {
		return analysis.Summary{}, err
	}
	return analysis.Summarize(values)
}
