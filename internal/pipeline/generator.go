// Package pipeline renders noise tiles: sample a grid at the tile's origin,
// colour it, post-process it and write the PNG to disk or an archive.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
	"github.com/MeKo-Tech/noisefield/internal/render"
	"github.com/MeKo-Tech/noisefield/internal/tile"
	"github.com/MeKo-Tech/noisefield/internal/worker"
)

// TileWriter receives encoded tiles instead of the filesystem.
// *mbtiles.Writer implements it.
type TileWriter interface {
	WriteTile(coords tile.Coords, pngData []byte) error
}

// Layout selects how tile files are arranged under the output directory.
type Layout int

const (
	// LayoutFlat writes z{z}_x{x}_y{y}.png.
	LayoutFlat Layout = iota
	// LayoutNested writes {z}/{x}/{y}.png.
	LayoutNested
)

// ParseLayout parses "flat" or "nested".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return LayoutFlat, nil
	case "nested", "zxy":
		return LayoutNested, nil
	}
	return LayoutFlat, fmt.Errorf("unknown tile layout %q (want flat or nested)", s)
}

// TilePath returns the path of coords below dir for the layout. suffix
// ("@2x") is appended to the file name before the extension.
func (l Layout) TilePath(dir string, coords tile.Coords, suffix string) string {
	if l == LayoutNested {
		return filepath.Join(dir,
			strconv.FormatUint(uint64(coords.Z), 10),
			strconv.FormatUint(uint64(coords.X), 10),
			strconv.FormatUint(uint64(coords.Y), 10)+suffix+".png")
	}
	return filepath.Join(dir, coords.String()+suffix+".png")
}

// Options controls how a tile is sampled and drawn.
type Options struct {
	// Params are the zoom-0 noise parameters; the frequency is halved per zoom.
	Params   noise.Params
	TileSize int
	// Depth is the z coordinate sampled when Flat is false.
	Depth float64
	// Flat samples the 2D field instead of a slice of the 3D field.
	Flat        bool
	Alpha       bool
	Ramp        *palette.Ramp // nil uploads the raw colour grid
	Post        render.Options
	Label       bool
	Compression png.CompressionLevel
	Layout      Layout
	// Suffix marks file names of non-default tile sizes, e.g. "@2x".
	Suffix string
}

// Generator renders tiles for one parameter set.
type Generator struct {
	opts      Options
	writer    TileWriter
	logger    *slog.Logger
	outputDir string
}

// NewGenerator validates opts and prepares a generator. When writer is
// non-nil tiles go to it and outputDir is ignored.
func NewGenerator(outputDir string, writer TileWriter, opts Options, logger *slog.Logger) (*Generator, error) {
	if opts.TileSize <= 0 || opts.TileSize > noise.MaxGridSize {
		return nil, fmt.Errorf("tile size must be within [1,%d], got %d", noise.MaxGridSize, opts.TileSize)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid noise parameters: %w", err)
	}
	if writer == nil && outputDir == "" {
		return nil, fmt.Errorf("either an output directory or a tile writer is required")
	}
	return &Generator{
		opts:      opts,
		writer:    writer,
		outputDir: outputDir,
		logger:    logger,
	}, nil
}

// Options returns the generator's options.
func (g *Generator) Options() Options { return g.opts }

// FieldAt builds the field used for zoom z.
func (g *Generator) FieldAt(z uint32) (*noise.Field, error) {
	p := g.opts.Params
	p.Frequency = tile.FrequencyAt(p.Frequency, z)
	return noise.New(p)
}

// Render samples and draws one tile at the given depth.
func (g *Generator) Render(ctx context.Context, coords tile.Coords, depth float64) (*image.NRGBA, error) {
	if !coords.Valid() {
		return nil, fmt.Errorf("invalid tile %s", coords)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	field, err := g.FieldAt(coords.Z)
	if err != nil {
		return nil, err
	}

	size := g.opts.TileSize
	x, y := coords.Origin(size)
	z := tile.DepthAt(depth, coords.Z)

	var img *image.NRGBA
	if g.opts.Ramp != nil {
		var values []float64
		if g.opts.Flat {
			values, err = field.IntensityGrid(x, y, size)
		} else {
			values, err = field.IntensityGrid3(x, y, z, size)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sample tile %s: %w", coords, err)
		}
		img, err = render.ToImageWithRamp(values, size, g.opts.Ramp, g.opts.Params.Gain)
	} else {
		var grid []noise.Color
		if g.opts.Flat {
			grid, err = field.SampleGrid(x, y, size, g.opts.Alpha)
		} else {
			grid, err = field.SampleGrid3(x, y, z, size, g.opts.Alpha)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sample tile %s: %w", coords, err)
		}
		img, err = render.ToImage(grid, size)
	}
	if err != nil {
		return nil, err
	}

	img = render.PostProcess(img, g.opts.Post)
	if g.opts.Label {
		render.DrawLabel(img, coords.String())
	}
	return img, nil
}

// Encode renders a tile and returns it as PNG bytes.
func (g *Generator) Encode(ctx context.Context, coords tile.Coords, depth float64) ([]byte, error) {
	img, err := g.Render(ctx, coords, depth)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img, g.opts.Compression); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Generate renders coords at the configured depth and stores it. Existing
// files are kept unless force is set. The returned path is empty when the
// tile went to a TileWriter.
func (g *Generator) Generate(ctx context.Context, coords tile.Coords, force bool) (string, error) {
	if g.writer != nil {
		data, err := g.Encode(ctx, coords, g.opts.Depth)
		if err != nil {
			return "", err
		}
		if err := g.writer.WriteTile(coords, data); err != nil {
			return "", fmt.Errorf("failed to store tile %s: %w", coords, err)
		}
		g.log().Debug("Stored tile", "coords", coords.String(), "bytes", len(data))
		return "", nil
	}

	finalPath := g.opts.Layout.TilePath(g.outputDir, coords, g.opts.Suffix)
	if !force {
		if _, err := os.Stat(finalPath); err == nil {
			g.log().Info("Tile already exists; skipping", "coords", coords.String(), "path", finalPath)
			return finalPath, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	img, err := g.Render(ctx, coords, g.opts.Depth)
	if err != nil {
		return "", err
	}
	if err := render.WritePNG(finalPath, img, g.opts.Compression); err != nil {
		return "", err
	}
	g.log().Info("Tile written", "coords", coords.String(), "path", finalPath)
	return finalPath, nil
}

// Tasks wraps Generate calls for the worker pool.
func (g *Generator) Tasks(coords []tile.Coords, force bool) []worker.Task {
	tasks := make([]worker.Task, len(coords))
	for i, c := range coords {
		tasks[i] = worker.Task{
			Name: c.String(),
			Run: func(ctx context.Context) (string, error) {
				return g.Generate(ctx, c, force)
			},
		}
	}
	return tasks
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
