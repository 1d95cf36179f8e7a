package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/mbtiles"
	"github.com/MeKo-Tech/noisefield/internal/pipeline"
	"github.com/MeKo-Tech/noisefield/internal/tile"
	"github.com/MeKo-Tech/noisefield/internal/worker"
)

// maxLatitude is the edge of the Web Mercator tile grid.
const maxLatitude = 85.0511

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export noise map tiles",
	Long: `Export renders the noise field as XYZ map tiles. Every zoom level samples
the same underlying field, so tiles line up when zooming.

Without --bbox a single tile (--zoom, --x, --y) is rendered. With --bbox all
tiles between --zoom-min and --zoom-max are rendered in parallel, either
into a folder or into an MBTiles archive.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	// Single tile flags
	exportCmd.Flags().IntP("zoom", "z", 0, "Zoom level (for single tile mode)")
	exportCmd.Flags().IntP("x", "x", 0, "X tile coordinate (for single tile mode)")
	exportCmd.Flags().IntP("y", "y", 0, "Y tile coordinate (for single tile mode)")

	// Batch flags
	exportCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat or \"world\"")
	exportCmd.Flags().Int("zoom-min", 0, "Minimum zoom level for batch export")
	exportCmd.Flags().Int("zoom-max", 3, "Maximum zoom level for batch export")
	exportCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	exportCmd.Flags().Bool("progress", true, "Show progress bar during batch export")
	exportCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some tiles fail")

	// Common flags
	exportCmd.Flags().Bool("force", false, "Overwrite tiles that already exist")
	exportCmd.Flags().Int("tile-size", 256, "Tile size in pixels")
	exportCmd.Flags().Bool("hidpi", false, "Also export 2x (@2x) tiles")
	exportCmd.Flags().Float64("depth", 0, "Z coordinate of the 3D slice that is tiled")
	exportCmd.Flags().Bool("flat", false, "Tile the 2D field instead of a 3D slice")
	exportCmd.Flags().Bool("alpha", false, "Copy the intensity into the alpha channel")
	exportCmd.Flags().Bool("label", false, "Stamp tile coordinates into each tile")
	addImageFlags(exportCmd, "export")

	// Output format flags
	exportCmd.Flags().String("format", "folder", "Output format: folder or mbtiles")
	exportCmd.Flags().String("output-file", "", "Output file path for MBTiles format (e.g., noise.mbtiles)")
	exportCmd.Flags().String("folder-structure", "flat", "Folder structure: flat (z{z}_x{x}_y{y}.png) or nested ({z}/{x}/{y}.png)")

	bindFlags(exportCmd, []flagBinding{
		{"export.zoom", "zoom"},
		{"export.x", "x"},
		{"export.y", "y"},
		{"export.bbox", "bbox"},
		{"export.zoom_min", "zoom-min"},
		{"export.zoom_max", "zoom-max"},
		{"export.workers", "workers"},
		{"export.progress", "progress"},
		{"export.allow_failures", "allow-failures"},
		{"export.force", "force"},
		{"export.tile_size", "tile-size"},
		{"export.hidpi", "hidpi"},
		{"export.depth", "depth"},
		{"export.flat", "flat"},
		{"export.alpha", "alpha"},
		{"export.label", "label"},
		{"export.format", "format"},
		{"export.output_file", "output-file"},
		{"export.folder_structure", "folder-structure"},
	})
}

// exportJob holds everything one export run needs.
type exportJob struct {
	opts          pipeline.Options
	outputDir     string
	format        string
	outputFile    string
	force         bool
	hidpi         bool
	workers       int
	showProgress  bool
	allowFailures bool
}

func exportJobFromConfig() (exportJob, error) {
	params, err := noiseParams()
	if err != nil {
		return exportJob{}, err
	}
	settings, err := imageSettingsFrom("export")
	if err != nil {
		return exportJob{}, err
	}
	layout, err := pipeline.ParseLayout(viper.GetString("export.folder_structure"))
	if err != nil {
		return exportJob{}, err
	}

	job := exportJob{
		opts: pipeline.Options{
			Params:      params,
			TileSize:    viper.GetInt("export.tile_size"),
			Depth:       viper.GetFloat64("export.depth"),
			Flat:        viper.GetBool("export.flat"),
			Alpha:       viper.GetBool("export.alpha"),
			Ramp:        settings.ramp,
			Post:        settings.post,
			Label:       viper.GetBool("export.label"),
			Compression: settings.compression,
			Layout:      layout,
		},
		outputDir:     viper.GetString("output-dir"),
		format:        viper.GetString("export.format"),
		outputFile:    viper.GetString("export.output_file"),
		force:         viper.GetBool("export.force"),
		hidpi:         viper.GetBool("export.hidpi"),
		workers:       viper.GetInt("export.workers"),
		showProgress:  viper.GetBool("export.progress"),
		allowFailures: viper.GetBool("export.allow_failures"),
	}

	if job.format != "folder" && job.format != "mbtiles" {
		return exportJob{}, fmt.Errorf("invalid format %q: must be 'folder' or 'mbtiles'", job.format)
	}
	if job.format == "mbtiles" && job.outputFile == "" {
		return exportJob{}, fmt.Errorf("--output-file is required when format is 'mbtiles'")
	}
	if job.workers <= 0 {
		job.workers = runtime.NumCPU()
	}
	return job, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	job, err := exportJobFromConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if bbox := viper.GetString("export.bbox"); bbox != "" {
		return runBatchExport(ctx, job, bbox, viper.GetInt("export.zoom_min"), viper.GetInt("export.zoom_max"))
	}
	if job.format == "mbtiles" {
		return fmt.Errorf("mbtiles format requires --bbox")
	}
	return runSingleExport(ctx, job, viper.GetInt("export.zoom"), viper.GetInt("export.x"), viper.GetInt("export.y"))
}

func runSingleExport(ctx context.Context, job exportJob, zoom, x, y int) error {
	if zoom < 0 || x < 0 || y < 0 {
		return fmt.Errorf("tile coordinates must be non-negative, got z=%d x=%d y=%d", zoom, x, y)
	}
	coords := tile.Coords{Z: uint32(zoom), X: uint32(x), Y: uint32(y)}
	if !coords.Valid() {
		return fmt.Errorf("tile %s is outside the zoom %d grid", coords, zoom)
	}

	logger.Info("Exporting tile", "coords", coords.String(), "params", job.opts.Params.String())

	gen, err := pipeline.NewGenerator(job.outputDir, nil, job.opts, logger)
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}
	path, err := gen.Generate(ctx, coords, job.force)
	if err != nil {
		return fmt.Errorf("failed to generate tile: %w", err)
	}
	logger.Info("Tile exported", "path", path)

	if job.hidpi {
		opts2x := job.opts
		opts2x.TileSize *= 2
		opts2x.Suffix = "@2x"
		gen2x, err := pipeline.NewGenerator(job.outputDir, nil, opts2x, logger)
		if err != nil {
			return fmt.Errorf("failed to init hidpi generator: %w", err)
		}
		path2x, err := gen2x.Generate(ctx, coords, job.force)
		if err != nil {
			return fmt.Errorf("failed to generate hidpi tile: %w", err)
		}
		logger.Info("HiDPI tile exported", "coords", coords.String(), "path", path2x)
	}
	return nil
}

func runBatchExport(ctx context.Context, job exportJob, bboxStr string, zoomMin, zoomMax int) error {
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if zoomMin < 0 || zoomMax > tile.MaxZoom {
		return fmt.Errorf("zoom range must be within [0,%d], got %d-%d", tile.MaxZoom, zoomMin, zoomMax)
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", zoomMin, zoomMax)
	}

	tiles := tile.TilesInBBox(bbox, zoomMin, zoomMax)
	logger.Info("Starting batch tile export",
		"bbox", bboxStr,
		"zoom_range", fmt.Sprintf("%d-%d", zoomMin, zoomMax),
		"tiles", len(tiles),
		"hidpi", job.hidpi,
		"workers", job.workers,
		"format", job.format,
		"params", job.opts.Params.String(),
	)

	type exportPass struct {
		label  string
		scale  int
		suffix string
		file   string
	}
	passes := []exportPass{{"base", 1, "", job.outputFile}}
	if job.hidpi {
		passes = append(passes, exportPass{"hidpi", 2, "@2x", strings.TrimSuffix(job.outputFile, ".mbtiles") + "@2x.mbtiles"})
	}

	for _, pass := range passes {
		opts := job.opts
		opts.TileSize *= pass.scale
		opts.Suffix = pass.suffix

		var writer *mbtiles.Writer
		var tileWriter pipeline.TileWriter
		if job.format == "mbtiles" {
			writer, err = mbtiles.New(pass.file, exportMetadata(opts, bbox, zoomMin, zoomMax))
			if err != nil {
				return fmt.Errorf("failed to create MBTiles writer: %w", err)
			}
			tileWriter = writer
		}

		err := runExportPass(ctx, job, opts, pass.label, tileWriter, tiles)
		if writer != nil {
			if cerr := writer.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to finalise %s: %w", pass.file, cerr)
			}
			if err == nil {
				logger.Info("MBTiles export complete", "file", pass.file, "tiles", writer.Written())
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runExportPass(ctx context.Context, job exportJob, opts pipeline.Options, label string, writer pipeline.TileWriter, tiles []tile.Coords) error {
	gen, err := pipeline.NewGenerator(job.outputDir, writer, opts, logger)
	if err != nil {
		return fmt.Errorf("failed to init %s generator: %w", label, err)
	}

	tasks := gen.Tasks(tiles, job.force)
	progress := worker.NewProgress(len(tasks), "tiles", job.showProgress)
	pool := worker.New(worker.Config{
		Workers:    job.workers,
		OnProgress: progress.Callback(),
		Logger:     logger,
	})

	logger.Info("Exporting tiles", "pass", label, "count", len(tasks), "tile_size", opts.TileSize)
	results := pool.Run(ctx, tasks)
	progress.Done()

	failed := worker.Failed(results)
	for _, r := range failed {
		logger.Error("Tile export failed", "pass", label, "coords", r.Task.Name, "error", r.Err)
	}
	logger.Info(progress.Summary())

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failed) > 0 {
		if job.allowFailures {
			logger.Warn("Some tiles failed, continuing due to --allow-failures", "pass", label, "failed_count", len(failed))
			return nil
		}
		return fmt.Errorf("%d %s tiles failed to export", len(failed), label)
	}
	return nil
}

func exportMetadata(opts pipeline.Options, bbox [4]float64, zoomMin, zoomMax int) mbtiles.Metadata {
	params := opts.Params
	depth := opts.Depth
	if opts.Flat {
		depth = 0
	}
	return mbtiles.Metadata{
		Name:        "Noisefield " + params.Kind.String(),
		Format:      "png",
		Description: params.String(),
		Type:        "overlay",
		Version:     "1.0",
		Bounds:      bbox,
		Center: [3]float64{
			(bbox[0] + bbox[2]) / 2,
			(bbox[1] + bbox[3]) / 2,
			float64((zoomMin + zoomMax) / 2),
		},
		MinZoom:  zoomMin,
		MaxZoom:  zoomMax,
		Noise:    &params,
		Depth:    depth,
		TileSize: opts.TileSize,
	}
}

// parseBBox parses "minLon,minLat,maxLon,maxLat" or "world".
func parseBBox(s string) ([4]float64, error) {
	if strings.EqualFold(strings.TrimSpace(s), "world") {
		return [4]float64{-180, -maxLatitude, 180, maxLatitude}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}
	if bbox[0] < -180 || bbox[2] > 180 {
		return [4]float64{}, fmt.Errorf("longitudes must be within [-180,180]")
	}
	if bbox[1] < -maxLatitude || bbox[3] > maxLatitude {
		return [4]float64{}, fmt.Errorf("latitudes must be within [%.4f,%.4f]", -maxLatitude, maxLatitude)
	}
	return bbox, nil
}
