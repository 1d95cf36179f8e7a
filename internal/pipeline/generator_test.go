package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
	"github.com/MeKo-Tech/noisefield/internal/render"
	"github.com/MeKo-Tech/noisefield/internal/tile"
	"github.com/MeKo-Tech/noisefield/internal/worker"
)

type memoryWriter struct {
	mu    sync.Mutex
	tiles map[tile.Coords][]byte
}

func (m *memoryWriter) WriteTile(c tile.Coords, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tiles == nil {
		m.tiles = map[tile.Coords][]byte{}
	}
	m.tiles[c] = data
	return nil
}

func testOptions() Options {
	return Options{
		Params:   noise.DefaultParams(),
		TileSize: 16,
		Depth:    1.5,
	}
}

func newTestGenerator(t *testing.T, dir string, w TileWriter, opts Options) *Generator {
	t.Helper()
	gen, err := NewGenerator(dir, w, opts, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen
}

func TestNewGeneratorValidates(t *testing.T) {
	opts := testOptions()
	opts.TileSize = 0
	if _, err := NewGenerator(t.TempDir(), nil, opts, nil); err == nil {
		t.Error("expected error for tile size 0")
	}

	opts = testOptions()
	opts.Params.Octaves = 0
	if _, err := NewGenerator(t.TempDir(), nil, opts, nil); !errors.Is(err, noise.ErrInvalidParameter) {
		t.Errorf("octaves 0: got %v, want ErrInvalidParameter", err)
	}

	if _, err := NewGenerator("", nil, testOptions(), nil); err == nil {
		t.Error("expected error without output dir or writer")
	}
}

func TestRenderMatchesSampler(t *testing.T) {
	gen := newTestGenerator(t, t.TempDir(), nil, testOptions())

	coords := tile.Coords{Z: 2, X: 1, Y: 3}
	img, err := gen.Render(context.Background(), coords, 1.5)
	if err != nil {
		t.Fatal(err)
	}

	field, err := gen.FieldAt(2)
	if err != nil {
		t.Fatal(err)
	}
	x, y := coords.Origin(16)
	grid, err := field.SampleGrid3(x, y, tile.DepthAt(1.5, 2), 16, false)
	if err != nil {
		t.Fatal(err)
	}
	want, err := render.ToImage(grid, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(want.Pix, img.Pix) {
		t.Error("rendered tile differs from the sampled grid")
	}
}

func TestRenderSliceAlignsAcrossZooms(t *testing.T) {
	for _, flat := range []bool{true, false} {
		opts := testOptions()
		opts.Flat = flat
		gen := newTestGenerator(t, t.TempDir(), nil, opts)

		parent, err := gen.Render(context.Background(), tile.Coords{Z: 0}, 1.5)
		if err != nil {
			t.Fatal(err)
		}
		child, err := gen.Render(context.Background(), tile.Coords{Z: 1}, 1.5)
		if err != nil {
			t.Fatal(err)
		}

		// child pixel (2c, 2r) covers the same point as parent pixel (c, r)
		for r := 0; r < 8; r++ {
			for c := 0; c < 8; c++ {
				p := parent.NRGBAAt(c, r)
				ch := child.NRGBAAt(2*c, 2*r)
				if p != ch {
					t.Fatalf("flat=%v: parent (%d,%d)=%v, child (%d,%d)=%v", flat, c, r, p, 2*c, 2*r, ch)
				}
			}
		}
	}
}

func TestRenderFlatIgnoresDepth(t *testing.T) {
	opts := testOptions()
	opts.Flat = true
	gen := newTestGenerator(t, t.TempDir(), nil, opts)

	a, err := gen.Render(context.Background(), tile.Coords{Z: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := gen.Render(context.Background(), tile.Coords{Z: 1}, 99)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("flat tiles differ between depths")
	}

	opts.Flat = false
	gen = newTestGenerator(t, t.TempDir(), nil, opts)
	c, err := gen.Render(context.Background(), tile.Coords{Z: 1}, 99)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.Pix, c.Pix) {
		t.Error("3D slice equals the flat field")
	}
}

func TestRenderWithRampAndPostProcessing(t *testing.T) {
	ramp, err := palette.Lookup("terrain")
	if err != nil {
		t.Fatal(err)
	}

	opts := testOptions()
	opts.Ramp = ramp
	opts.Post = render.Options{Scale: 2, BlurSigma: 0.5}
	opts.Label = true
	gen := newTestGenerator(t, t.TempDir(), nil, opts)

	img, err := gen.Render(context.Background(), tile.Coords{Z: 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Errorf("image size = %v, want 32x32", img.Bounds().Size())
	}

	if _, err := gen.Render(context.Background(), tile.Coords{Z: 1, X: 2}, 0); err == nil {
		t.Error("expected error for tile outside the grid")
	}
}

func TestGenerateWritesAndSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	gen := newTestGenerator(t, dir, nil, testOptions())

	coords := tile.Coords{Z: 3, X: 4, Y: 5}
	path, err := gen.Generate(context.Background(), coords, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "z3_x4_y5.png"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("tile width = %d, want 16", img.Bounds().Dx())
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := gen.Generate(context.Background(), coords, false); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Error("existing tile was rewritten without force")
	}

	if _, err := gen.Generate(context.Background(), coords, true); err != nil {
		t.Fatal(err)
	}
	info, err = os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().After(old) {
		t.Error("forced tile was not rewritten")
	}
}

func TestGenerateNestedLayout(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.Layout = LayoutNested
	gen := newTestGenerator(t, dir, nil, opts)

	path, err := gen.Generate(context.Background(), tile.Coords{Z: 2, X: 1, Y: 3}, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "2", "1", "3.png"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("tile not written: %v", err)
	}
}

func TestTilePathSuffix(t *testing.T) {
	c := tile.Coords{Z: 3, X: 4, Y: 5}
	tests := []struct {
		layout Layout
		suffix string
		want   string
	}{
		{LayoutFlat, "@2x", filepath.Join("out", "z3_x4_y5@2x.png")},
		{LayoutNested, "@2x", filepath.Join("out", "3", "4", "5@2x.png")},
		{LayoutFlat, "", filepath.Join("out", "z3_x4_y5.png")},
	}
	for _, tt := range tests {
		if got := tt.layout.TilePath("out", c, tt.suffix); got != tt.want {
			t.Errorf("TilePath(%q) = %s, want %s", tt.suffix, got, tt.want)
		}
	}
}

func TestGenerateToTileWriter(t *testing.T) {
	w := &memoryWriter{}
	gen := newTestGenerator(t, "", w, testOptions())

	coords := tile.TilesInBBox([4]float64{-10, -10, 10, 10}, 0, 2)
	pool := worker.New(worker.Config{Workers: 3})
	results := pool.Run(context.Background(), gen.Tasks(coords, false))
	if failed := worker.Failed(results); len(failed) > 0 {
		t.Fatalf("%d tasks failed: %v", len(failed), failed[0].Err)
	}
	if len(w.tiles) != len(coords) {
		t.Fatalf("writer holds %d tiles, want %d", len(w.tiles), len(coords))
	}

	for _, c := range coords {
		img, err := png.Decode(bytes.NewReader(w.tiles[c]))
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if img.Bounds().Dx() != 16 {
			t.Errorf("%s width = %d, want 16", c, img.Bounds().Dx())
		}
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		input   string
		want    Layout
		wantErr bool
	}{
		{"NESTED", LayoutNested, false},
		{"", LayoutFlat, false},
		{"quadkey", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLayout(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLayout(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
