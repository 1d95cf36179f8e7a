package cmd

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/mbtiles"
	"github.com/MeKo-Tech/noisefield/internal/tile"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert exported folder tiles to MBTiles format",
	Long: `Convert packs tiles written by "export --format folder" (flat or nested
layout) into an MBTiles archive. Only tiles with the given --suffix are
taken, so base and @2x tiles end up in separate archives.`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("input-dir", "", "Input directory containing tiles (defaults to --output-dir)")
	convertCmd.Flags().StringP("output", "o", "", "Output MBTiles file path (required)")
	convertCmd.Flags().String("suffix", "", "Tile name suffix to pick up (\"\" or \"@2x\")")
	convertCmd.Flags().String("name", "Noisefield", "Tileset name")
	convertCmd.Flags().String("description", "", "Tileset description (defaults to the noise parameters)")
	convertCmd.Flags().Bool("record-params", true, "Store the current noise parameters in the metadata")
	convertCmd.Flags().Float64("depth", 0, "Depth to record with the parameters")
	convertCmd.Flags().Int("tile-size", 256, "Tile size to record with the parameters")

	bindFlags(convertCmd, []flagBinding{
		{"convert.input_dir", "input-dir"},
		{"convert.output", "output"},
		{"convert.suffix", "suffix"},
		{"convert.name", "name"},
		{"convert.description", "description"},
		{"convert.record_params", "record-params"},
		{"convert.depth", "depth"},
		{"convert.tile_size", "tile-size"},
	})
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputDir := viper.GetString("convert.input_dir")
	if inputDir == "" {
		inputDir = viper.GetString("output-dir")
	}
	outputFile := viper.GetString("convert.output")
	suffix := viper.GetString("convert.suffix")

	if logger == nil {
		initLogging()
	}

	if outputFile == "" {
		return fmt.Errorf("--output is required")
	}
	if _, err := os.Stat(inputDir); os.IsNotExist(err) {
		return fmt.Errorf("input directory does not exist: %s", inputDir)
	}

	logger.Info("Converting folder tiles to MBTiles", "input_dir", inputDir, "output", outputFile, "suffix", suffix)

	tiles, err := scanTilesDirectory(inputDir, suffix)
	if err != nil {
		return fmt.Errorf("failed to scan tiles directory: %w", err)
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles found in %s", inputDir)
	}

	meta := folderMetadata(tiles)
	meta.Name = viper.GetString("convert.name")
	meta.Description = viper.GetString("convert.description")
	if viper.GetBool("convert.record_params") {
		params, err := noiseParams()
		if err != nil {
			return err
		}
		meta.Noise = &params
		meta.Depth = viper.GetFloat64("convert.depth")
		meta.TileSize = viper.GetInt("convert.tile_size")
		if meta.Description == "" {
			meta.Description = params.String()
		}
	}
	logger.Info("Found tiles", "count", len(tiles), "min_zoom", meta.MinZoom, "max_zoom", meta.MaxZoom)

	writer, err := mbtiles.New(outputFile, meta)
	if err != nil {
		return fmt.Errorf("failed to create MBTiles writer: %w", err)
	}

	var failed int
	for i, ti := range tiles {
		data, err := os.ReadFile(ti.path)
		if err != nil {
			logger.Error("Failed to read tile", "path", ti.path, "error", err)
			failed++
			continue
		}
		if err := writer.WriteTile(ti.coords, data); err != nil {
			logger.Error("Failed to write tile", "coords", ti.coords.String(), "error", err)
			failed++
			continue
		}
		if (i+1)%500 == 0 {
			logger.Info("Progress", "converted", i+1, "total", len(tiles))
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalise %s: %w", outputFile, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tiles could not be converted", failed, len(tiles))
	}
	logger.Info("Conversion complete", "output", outputFile, "tiles", len(tiles))
	return nil
}

type tileFile struct {
	coords tile.Coords
	path   string
}

var (
	flatTileName   = regexp.MustCompile(`^(z\d+_x\d+_y\d+)(@2x)?\.png$`)
	nestedTileName = regexp.MustCompile(`(?:^|/)(\d+)/(\d+)/(\d+)(@2x)?\.png$`)
)

// scanTilesDirectory finds flat (z{z}_x{x}_y{y}.png) and nested
// ({z}/{x}/{y}.png) tiles below dir whose suffix matches.
func scanTilesDirectory(dir, suffix string) ([]tileFile, error) {
	var tiles []tileFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		if m := flatTileName.FindStringSubmatch(d.Name()); m != nil {
			if m[2] != suffix {
				return nil
			}
			c, err := tile.ParseCoords(m[1])
			if err != nil {
				return nil
			}
			tiles = append(tiles, tileFile{coords: c, path: path})
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if m := nestedTileName.FindStringSubmatch(filepath.ToSlash(rel)); m != nil && m[4] == suffix {
			z, errZ := strconv.ParseUint(m[1], 10, 32)
			x, errX := strconv.ParseUint(m[2], 10, 32)
			y, errY := strconv.ParseUint(m[3], 10, 32)
			c := tile.Coords{Z: uint32(z), X: uint32(x), Y: uint32(y)}
			if errZ == nil && errX == nil && errY == nil && c.Valid() {
				tiles = append(tiles, tileFile{coords: c, path: path})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// folderMetadata derives zoom range, bounds and center from the tiles.
func folderMetadata(tiles []tileFile) mbtiles.Metadata {
	meta := mbtiles.Metadata{
		Format:  "png",
		Type:    "overlay",
		Version: "1.0",
		MinZoom: math.MaxInt,
	}
	bounds := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, t := range tiles {
		z := int(t.coords.Z)
		meta.MinZoom = min(meta.MinZoom, z)
		meta.MaxZoom = max(meta.MaxZoom, z)

		b := t.coords.Bounds()
		bounds[0] = min(bounds[0], b[0])
		bounds[1] = min(bounds[1], b[1])
		bounds[2] = max(bounds[2], b[2])
		bounds[3] = max(bounds[3], b[3])
	}
	if len(tiles) == 0 {
		meta.MinZoom = 0
		return meta
	}
	meta.Bounds = bounds
	meta.Center = [3]float64{
		(bounds[0] + bounds[2]) / 2,
		(bounds[1] + bounds[3]) / 2,
		float64((meta.MinZoom + meta.MaxZoom) / 2),
	}
	return meta
}
