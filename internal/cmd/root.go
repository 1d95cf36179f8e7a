package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/noise"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "noisefield",
	Short: "A fractal noise generator",
	Long: `Noisefield samples fractal Value, Perlin and Simplex noise in two and
three dimensions.

It renders still images, animated slices through the 3D field, map tiles
(to a folder or an MBTiles archive), and can serve tiles over HTTP or an
animated terminal view over SSH.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := noise.DefaultParams()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.String("output-dir", "./out", "Output directory for generated images and tiles")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.String("log-format", "text", "Log format: text or json")

	flags.String("noise-type", defaults.Kind.String(), "Noise kind: value, perlin or simplex")
	flags.Int("octaves", defaults.Octaves, "Number of octaves (>= 1)")
	flags.Float64("frequency", defaults.Frequency, "Base sampling frequency (> 0)")
	flags.Float64("lacunarity", defaults.Lacunarity, "Frequency factor between octaves (> 0)")
	flags.Float64("persistence", defaults.Persistence, "Amplitude factor between octaves (> 0)")
	flags.Float64("gain", defaults.Gain, "Output scale applied after normalisation")
	flags.Bool("legacy", defaults.Legacy, "Divide coordinates by lacunarity and average octaves equally")

	bindings := []struct {
		key  string
		flag string
	}{
		{"output-dir", "output-dir"},
		{"verbose", "verbose"},
		{"log_format", "log-format"},
		{"noise.type", "noise-type"},
		{"noise.octaves", "octaves"},
		{"noise.frequency", "frequency"},
		{"noise.lacunarity", "lacunarity"},
		{"noise.persistence", "persistence"},
		{"noise.gain", "gain"},
		{"noise.legacy", "legacy"},
	}

	for _, bf := range bindings {
		if err := viper.BindPFlag(bf.key, flags.Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// NOISEFIELD_NOISE_OCTAVES overrides noise.octaves.
	viper.SetEnvPrefix("NOISEFIELD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log_format"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// noiseParams reads the noise.* keys and validates them.
func noiseParams() (noise.Params, error) {
	kind, err := noise.ParseKind(viper.GetString("noise.type"))
	if err != nil {
		return noise.Params{}, err
	}
	p := noise.Params{
		Kind:        kind,
		Octaves:     viper.GetInt("noise.octaves"),
		Frequency:   viper.GetFloat64("noise.frequency"),
		Lacunarity:  viper.GetFloat64("noise.lacunarity"),
		Persistence: viper.GetFloat64("noise.persistence"),
		Gain:        viper.GetFloat64("noise.gain"),
		Legacy:      viper.GetBool("noise.legacy"),
	}
	if err := p.Validate(); err != nil {
		return noise.Params{}, err
	}
	return p, nil
}
