package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/pipeline"
)

func TestParseTilePath(t *testing.T) {
	t.Run("base tile", func(t *testing.T) {
		coords, suffix, ok := parseTilePath("/tiles/z13_x4317_y2692.png")
		if !ok {
			t.Fatalf("expected ok")
		}
		if suffix != "" {
			t.Fatalf("expected empty suffix, got %q", suffix)
		}
		if coords.String() != "z13_x4317_y2692" {
			t.Fatalf("unexpected coords: %s", coords.String())
		}
	})

	t.Run("hidpi tile", func(t *testing.T) {
		coords, suffix, ok := parseTilePath("/tiles/z5_x1_y2@2x.png")
		if !ok {
			t.Fatalf("expected ok")
		}
		if suffix != "@2x" {
			t.Fatalf("expected @2x suffix, got %q", suffix)
		}
		if coords.String() != "z5_x1_y2" {
			t.Fatalf("unexpected coords: %s", coords.String())
		}
	})

	t.Run("reject non-png", func(t *testing.T) {
		if _, _, ok := parseTilePath("/tiles/z5_x1_y2.jpg"); ok {
			t.Fatalf("expected not ok")
		}
	})

	t.Run("reject other prefix", func(t *testing.T) {
		if _, _, ok := parseTilePath("/demo/z5_x1_y2.png"); ok {
			t.Fatalf("expected not ok")
		}
	})

	t.Run("reject tile outside zoom grid", func(t *testing.T) {
		if _, _, ok := parseTilePath("/tiles/z1_x5_y0.png"); ok {
			t.Fatalf("expected not ok")
		}
	})
}

func newTestTiles(t *testing.T, cfg OnDemandTilesConfig) *OnDemandTiles {
	t.Helper()
	gen, err := pipeline.NewGenerator(cfg.TilesDir, nil, pipeline.Options{
		Params:   noise.DefaultParams(),
		TileSize: 16,
		Depth:    0.5,
	}, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	tiles, err := NewOnDemandTiles(gen, cfg, nil)
	if err != nil {
		t.Fatalf("NewOnDemandTiles: %v", err)
	}
	return tiles
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}

func decodeSize(t *testing.T, body []byte) int {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img.Bounds().Dx()
}

func TestServeTileGeneratesAndCaches(t *testing.T) {
	dir := t.TempDir()
	tiles := newTestTiles(t, OnDemandTilesConfig{TilesDir: dir, GenerateMissing: true})
	h := tiles.Handler()

	rec := get(t, h, "/tiles/z2_x1_y3.png")
	expectStatus(t, rec, http.StatusOK)
	if size := decodeSize(t, rec.Body.Bytes()); size != 16 {
		t.Errorf("tile size = %d, want 16", size)
	}

	cached, err := os.ReadFile(filepath.Join(dir, "z2_x1_y3.png"))
	if err != nil {
		t.Fatalf("tile not cached: %v", err)
	}
	if !bytes.Equal(rec.Body.Bytes(), cached) {
		t.Error("served tile differs from cached file")
	}

	rec = get(t, h, "/tiles/z2_x1_y3.png")
	expectStatus(t, rec, http.StatusOK)
	if n := tiles.Status().Render.TotalRendered; n != 1 {
		t.Errorf("TotalRendered = %d, want 1", n)
	}

	rec = get(t, h, "/tiles/z2_x1_y3@2x.png")
	expectStatus(t, rec, http.StatusOK)
	if size := decodeSize(t, rec.Body.Bytes()); size != 32 {
		t.Errorf("@2x tile size = %d, want 32", size)
	}
}

func TestServeTileWithDepthIsNotCached(t *testing.T) {
	dir := t.TempDir()
	tiles := newTestTiles(t, OnDemandTilesConfig{TilesDir: dir})
	h := tiles.Handler()

	a := get(t, h, "/tiles/z0_x0_y0.png?t=1.5")
	expectStatus(t, a, http.StatusOK)
	if cc := a.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if _, err := os.Stat(filepath.Join(dir, "z0_x0_y0.png")); !os.IsNotExist(err) {
		t.Errorf("live tile was cached (stat err %v)", err)
	}

	b := get(t, h, "/tiles/z0_x0_y0.png?t=7")
	expectStatus(t, b, http.StatusOK)
	if bytes.Equal(a.Body.Bytes(), b.Body.Bytes()) {
		t.Error("tiles at different depths are identical")
	}
}

func TestServeTileRejectsBadDepth(t *testing.T) {
	tiles := newTestTiles(t, OnDemandTilesConfig{TilesDir: t.TempDir()})
	h := tiles.Handler()

	for _, v := range []string{"deep", "NaN", "Inf", "-Inf", "1e400"} {
		rec := get(t, h, "/tiles/z0_x0_y0.png?t="+v)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("t=%s: status = %d, want %d", v, rec.Code, http.StatusBadRequest)
		}
	}
	if n := tiles.Status().Render.TotalRendered; n != 0 {
		t.Errorf("TotalRendered = %d after rejected requests, want 0", n)
	}
}

func TestServeTileMissingWithoutGeneration(t *testing.T) {
	tiles := newTestTiles(t, OnDemandTilesConfig{TilesDir: t.TempDir()})
	h := tiles.Handler()

	expectStatus(t, get(t, h, "/tiles/z0_x0_y0.png"), http.StatusNotFound)
	expectStatus(t, get(t, h, "/tiles/nope.png"), http.StatusNotFound)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/tiles/z0_x0_y0.png", nil))
	expectStatus(t, rec, http.StatusNoContent)
}

func TestStatusHandler(t *testing.T) {
	tiles := newTestTiles(t, OnDemandTilesConfig{TilesDir: t.TempDir(), MaxConcurrentGenerations: 3})
	get(t, tiles.Handler(), "/tiles/z1_x0_y1.png?t=2")

	rec := get(t, tiles.StatusHandler(), "/status")
	expectStatus(t, rec, http.StatusOK)

	var status TileStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Render.TotalRendered != 1 {
		t.Errorf("TotalRendered = %d, want 1", status.Render.TotalRendered)
	}
	if status.Render.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", status.Render.MaxConcurrent)
	}
	if len(status.Render.CurrentTiles) != 0 {
		t.Errorf("CurrentTiles = %v, want none", status.Render.CurrentTiles)
	}
	if !strings.Contains(status.Noise, "simplex") {
		t.Errorf("Noise = %q, want simplex parameters", status.Noise)
	}
}

func TestNewOnDemandTilesRequiresGenerator(t *testing.T) {
	if _, err := NewOnDemandTiles(nil, OnDemandTilesConfig{}, nil); err == nil {
		t.Fatal("expected error without generator")
	}
}

func TestTileSizeForSuffix(t *testing.T) {
	if got := tileSizeForSuffix(256, ""); got != 256 {
		t.Errorf("base size = %d, want 256", got)
	}
	if got := tileSizeForSuffix(256, "@2x"); got != 512 {
		t.Errorf("@2x size = %d, want 512", got)
	}
}
