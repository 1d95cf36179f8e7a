package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/noisefield/internal/mbtiles"
	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/tile"
)

// execute runs the CLI with args after restoring every flag to its default,
// since cobra and viper keep state between runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodePNG(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func openArchive(t *testing.T, path string) *mbtiles.Reader {
	t.Helper()
	r, err := mbtiles.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSampleCommandJSON(t *testing.T) {
	out := mustExecute(t, "sample", "--x", "3.5", "--y", "-2", "--noise-type", "perlin", "--octaves", "3", "--json")

	var got sampleOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}

	p := noise.DefaultParams()
	p.Kind = noise.Perlin
	p.Octaves = 3
	want, err := noise.MustNew(p).Sample(3.5, -2, false)
	if err != nil {
		t.Fatal(err)
	}

	if got.Z != nil {
		t.Errorf("z = %v, want nil", *got.Z)
	}
	if diff := got.Color.R - want.R; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("R = %v, want %v", got.Color.R, want.R)
	}
	if got.Params != p.String() {
		t.Errorf("params = %q, want %q", got.Params, p.String())
	}
}

func TestSampleCommand3D(t *testing.T) {
	out := mustExecute(t, "sample", "--x", "1", "--y", "2", "--z", "3", "--3d", "--alpha")
	for _, want := range []string{"(1, 2, 3)", "intensity="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestSampleCommandRejectsInvalidParams(t *testing.T) {
	for _, args := range [][]string{
		{"sample", "--octaves", "0"},
		{"sample", "--noise-type", "worley"},
	} {
		if _, err := execute(t, args...); !errors.Is(err, noise.ErrInvalidParameter) {
			t.Errorf("%v: got %v, want ErrInvalidParameter", args, err)
		}
	}
}

func TestRenderCommandWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallpaper.png")
	out := mustExecute(t, "render", "--size", "24", "--ramp", "terrain", "--scale", "2",
		"--label", "--stats", "--3d", "--depth", "0.75", "-o", path)

	if w, h := decodePNG(t, path); w != 48 || h != 48 {
		t.Errorf("image size = %dx%d, want 48x48", w, h)
	}
	if !strings.Contains(out, "median") {
		t.Errorf("stats missing from output %q", out)
	}
}

func TestRenderCommandRejectsBadSettings(t *testing.T) {
	dir := t.TempDir()
	tests := [][]string{
		{"render", "--size", "8", "--ramp", "rainbow", "-o", filepath.Join(dir, "a.png")},
		{"render", "--size", "8", "--contrast", "150", "-o", filepath.Join(dir, "b.png")},
		{"render", "--size", "0", "-o", filepath.Join(dir, "c.png")},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestStatsCommandAllKinds(t *testing.T) {
	out := mustExecute(t, "stats", "--size", "16", "--all-kinds")
	for _, kind := range []string{"value", "perlin", "simplex"} {
		if !strings.Contains(out, "# "+kind) {
			t.Errorf("output missing %s section", kind)
		}
	}
}

func TestAnimateCommandWritesSequence(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, "animate", "--frames", "5", "--size", "8", "--workers", "2",
		"--progress=false", "--label", "--ramp", "ocean", "--frames-dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("wrote %d frames, want 5", len(entries))
	}
	for i, e := range entries {
		if want := fmt.Sprintf("frame_%05d.png", i); e.Name() != want {
			t.Errorf("frame %d named %s, want %s", i, e.Name(), want)
		}
		if w, _ := decodePNG(t, filepath.Join(dir, e.Name())); w != 8 {
			t.Errorf("%s width = %d, want 8", e.Name(), w)
		}
	}
}

func TestExportFolderThenConvert(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, "export", "--bbox", "world", "--zoom-min", "0", "--zoom-max", "1",
		"--tile-size", "8", "--hidpi", "--progress=false", "--workers", "2", "--output-dir", dir)

	for _, name := range []string{"z0_x0_y0.png", "z1_x1_y1.png", "z1_x0_y1@2x.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if w, _ := decodePNG(t, filepath.Join(dir, "z1_x0_y1@2x.png")); w != 16 {
		t.Errorf("@2x tile width = %d, want 16", w)
	}

	archive := filepath.Join(t.TempDir(), "base.mbtiles")
	mustExecute(t, "convert", "--input-dir", dir, "-o", archive, "--tile-size", "8")

	r := openArchive(t, archive)
	n, err := r.TileCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("archive holds %d tiles, want 5", n)
	}

	meta, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta.MinZoom != 0 || meta.MaxZoom != 1 {
		t.Errorf("zoom range = %d..%d, want 0..1", meta.MinZoom, meta.MaxZoom)
	}
	if meta.Noise == nil || *meta.Noise != noise.DefaultParams() {
		t.Errorf("noise metadata = %v, want defaults", meta.Noise)
	}
	if meta.TileSize != 8 {
		t.Errorf("tile size = %d, want 8", meta.TileSize)
	}
}

func TestExportMBTiles(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "noise.mbtiles")
	mustExecute(t, "export", "--bbox", "-10,-10,10,10", "--zoom-min", "0", "--zoom-max", "2",
		"--tile-size", "8", "--format", "mbtiles", "--output-file", archive, "--depth", "2.5",
		"--progress=false")

	r := openArchive(t, archive)
	n, err := r.TileCount()
	if err != nil {
		t.Fatal(err)
	}
	if want := tile.TileCount([4]float64{-10, -10, 10, 10}, 0, 2); n != want {
		t.Errorf("archive holds %d tiles, want %d", n, want)
	}

	data, err := r.ReadTile(tile.Coords{Z: 0})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("tile width = %d, want 8", img.Bounds().Dx())
	}

	meta, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta.Depth != 2.5 {
		t.Errorf("depth = %v, want 2.5", meta.Depth)
	}
}

func TestExportRequiresOutputFileForMBTiles(t *testing.T) {
	if _, err := execute(t, "export", "--bbox", "world", "--format", "mbtiles"); err == nil {
		t.Error("expected error without --output-file")
	}
	if _, err := execute(t, "export", "--format", "zip"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExportSingleTileNested(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, "export", "--zoom", "3", "--x", "2", "--y", "5", "--tile-size", "8",
		"--folder-structure", "nested", "--flat", "--output-dir", dir)
	if _, err := os.Stat(filepath.Join(dir, "3", "2", "5.png")); err != nil {
		t.Errorf("nested tile missing: %v", err)
	}

	if _, err := execute(t, "export", "--zoom", "1", "--x", "2", "--y", "0", "--output-dir", dir); err == nil {
		t.Error("expected error for tile outside the zoom grid")
	}
}
