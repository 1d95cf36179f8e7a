package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/pipeline"
	"github.com/MeKo-Tech/noisefield/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve noise tiles over HTTP (rendering missing tiles on demand)",
	Long: `Serve exposes the field as slippy-map tiles under /tiles/z{z}_x{x}_y{y}.png
(and @2x). Tiles at the configured depth are cached on disk; ?t=<depth>
renders an uncached slice at any depth, which lets clients animate.

Other endpoints: /sample?x=&y=[&z=] returns one sample as JSON, /status and
/status/stream report render activity, /healthz answers ok. With --mbtiles
tiles are read from an archive instead of being rendered.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("tiles-dir", "", "Directory caching rendered tiles (defaults to --output-dir)")
	serveCmd.Flags().String("mbtiles", "", "Serve tiles from this MBTiles archive instead of rendering")

	serveCmd.Flags().Bool("generate-missing", true, "Render missing tiles on-demand and cache them to disk")
	serveCmd.Flags().Bool("disable-cache", false, "Always re-render tiles (still writes to disk)")
	serveCmd.Flags().Int("max-concurrent-generations", runtime.NumCPU(), "Max concurrent tile renders (default: number of CPUs)")
	serveCmd.Flags().Duration("generation-timeout", 30*time.Second, "Timeout per tile render")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")
	serveCmd.Flags().Duration("status-interval", time.Second, "Interval of /status/stream events")

	serveCmd.Flags().Int("tile-size", 256, "Base tile size in pixels (256; @2x requests render 512)")
	serveCmd.Flags().Float64("depth", 0, "Z coordinate of the cached 3D slice")
	serveCmd.Flags().Bool("flat", false, "Serve the 2D field instead of a 3D slice")
	serveCmd.Flags().Bool("alpha", false, "Copy the intensity into the alpha channel")
	addImageFlags(serveCmd, "serve")

	bindFlags(serveCmd, []flagBinding{
		{"serve.addr", "addr"},
		{"serve.tiles_dir", "tiles-dir"},
		{"serve.mbtiles", "mbtiles"},
		{"serve.generate_missing", "generate-missing"},
		{"serve.disable_cache", "disable-cache"},
		{"serve.max_concurrent_generations", "max-concurrent-generations"},
		{"serve.generation_timeout", "generation-timeout"},
		{"serve.cache_control", "cache-control"},
		{"serve.status_interval", "status-interval"},
		{"serve.tile_size", "tile-size"},
		{"serve.depth", "depth"},
		{"serve.flat", "flat"},
		{"serve.alpha", "alpha"},
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := noiseParams()
	if err != nil {
		return err
	}
	field, err := noise.New(params)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", server.HealthHandler())
	mux.Handle("/sample", withCORS(server.SampleHandler(field)))

	addr := viper.GetString("serve.addr")
	if archive := viper.GetString("serve.mbtiles"); archive != "" {
		h, err := server.NewMBTilesHandler(server.MBTilesConfig{
			MBTilesPath:  archive,
			CacheControl: viper.GetString("serve.cache_control"),
		}, logger)
		if err != nil {
			return err
		}
		defer h.Close()
		mux.Handle("/tiles/", withCORS(h.Handler()))
		mux.Handle("/metadata", withCORS(h.MetadataHandler()))
		logger.Info("serving MBTiles archive", "addr", addr, "mbtiles", archive)
	} else {
		od, err := onDemandFromConfig(params)
		if err != nil {
			return err
		}
		mux.Handle("/tiles/", od.Handler())
		mux.Handle("/status", withCORS(od.StatusHandler()))
		mux.Handle("/status/stream", withCORS(od.StatusStreamHandler(viper.GetDuration("serve.status_interval"))))
		logger.Info("tile server listening",
			"addr", addr,
			"tiles_dir", tilesDir(),
			"generate_missing", viper.GetBool("serve.generate_missing"),
			"max_concurrent_generations", viper.GetInt("serve.max_concurrent_generations"),
			"params", params.String(),
		)
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("tile server stopped")
	return nil
}

func tilesDir() string {
	if dir := viper.GetString("serve.tiles_dir"); dir != "" {
		return dir
	}
	return viper.GetString("output-dir")
}

func onDemandFromConfig(params noise.Params) (*server.OnDemandTiles, error) {
	settings, err := imageSettingsFrom("serve")
	if err != nil {
		return nil, err
	}
	dir := tilesDir()
	gen, err := pipeline.NewGenerator(dir, nil, pipeline.Options{
		Params:      params,
		TileSize:    viper.GetInt("serve.tile_size"),
		Depth:       viper.GetFloat64("serve.depth"),
		Flat:        viper.GetBool("serve.flat"),
		Alpha:       viper.GetBool("serve.alpha"),
		Ramp:        settings.ramp,
		Post:        settings.post,
		Compression: settings.compression,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init generator: %w", err)
	}
	return server.NewOnDemandTiles(gen, server.OnDemandTilesConfig{
		TilesDir:                 dir,
		CacheControl:             viper.GetString("serve.cache_control"),
		MaxConcurrentGenerations: viper.GetInt("serve.max_concurrent_generations"),
		GenerationTimeout:        viper.GetDuration("serve.generation_timeout"),
		GenerateMissing:          viper.GetBool("serve.generate_missing"),
		DisableCache:             viper.GetBool("serve.disable_cache"),
	}, logger)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
