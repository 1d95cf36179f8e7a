// Package server exposes noise tiles and samples over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/noisefield/internal/pipeline"
	"github.com/MeKo-Tech/noisefield/internal/tile"
)

type OnDemandTilesConfig struct {
	// TilesDir caches tiles rendered at the configured depth.
	TilesDir                 string
	CacheControl             string
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	GenerateMissing          bool
	DisableCache             bool
}

// OnDemandTiles renders tiles on request. Requests for the configured depth
// are cached on disk; requests with ?t= are rendered in memory.
type OnDemandTiles struct {
	base   *pipeline.Generator
	logger *slog.Logger
	sem    chan struct{}
	locks  sync.Map
	gens   sync.Map // tile size -> *pipeline.Generator
	cfg    OnDemandTilesConfig

	activeRenders  atomic.Int32
	totalRendered  atomic.Int64
	totalFailed    atomic.Int64
	currentRenders sync.Map // tile key -> start time

	queuedRenders atomic.Int32
	queuedTiles   sync.Map // tile key -> queue time
}

// TileStatus is the JSON body of the status endpoint.
type TileStatus struct {
	Render RenderStatus `json:"render"`
	Noise  string       `json:"noise"`
}

// RenderStatus contains current render operation status.
type RenderStatus struct {
	ActiveRenders int      `json:"active_renders"`
	TotalRendered int64    `json:"total_rendered"`
	TotalFailed   int64    `json:"total_failed"`
	CurrentTiles  []string `json:"current_tiles"`
	MaxConcurrent int      `json:"max_concurrent"`
	QueuedRenders int      `json:"queued_renders"`
	QueuedTiles   []string `json:"queued_tiles"`
}

// NewOnDemandTiles serves tiles drawn by gen. @2x requests use a second
// generator with twice the tile size.
func NewOnDemandTiles(gen *pipeline.Generator, cfg OnDemandTilesConfig, logger *slog.Logger) (*OnDemandTiles, error) {
	if gen == nil {
		return nil, fmt.Errorf("a tile generator is required")
	}
	if cfg.TilesDir == "" {
		cfg.TilesDir = "./tiles"
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	t := &OnDemandTiles{
		base:   gen,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrentGenerations),
	}
	t.gens.Store(gen.Options().TileSize, gen)
	return t, nil
}

// Status returns the current render counters.
func (t *OnDemandTiles) Status() TileStatus {
	return TileStatus{
		Render: RenderStatus{
			ActiveRenders: int(t.activeRenders.Load()),
			TotalRendered: t.totalRendered.Load(),
			TotalFailed:   t.totalFailed.Load(),
			CurrentTiles:  keys(&t.currentRenders),
			MaxConcurrent: t.cfg.MaxConcurrentGenerations,
			QueuedRenders: int(t.queuedRenders.Load()),
			QueuedTiles:   keys(&t.queuedTiles),
		},
		Noise: t.base.Options().Params.String(),
	}
}

func keys(m *sync.Map) []string {
	out := []string{}
	m.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// StatusHandler serves Status as JSON.
func (t *OnDemandTiles) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-store")

		if err := json.NewEncoder(w).Encode(t.Status()); err != nil {
			t.log().Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})
}

// StatusStreamHandler pushes Status as server-sent events every interval.
func (t *OnDemandTiles) StatusStreamHandler(interval time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			data, err := json.Marshal(t.Status())
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	})
}

func (t *OnDemandTiles) Handler() http.Handler {
	return http.HandlerFunc(t.serveTile)
}

func (t *OnDemandTiles) serveTile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	coords, suffix, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	gen, err := t.generatorFor(suffix)
	if err != nil {
		t.log().Error("failed to init generator", "error", err)
		http.Error(w, "failed to init generator", http.StatusInternalServerError)
		return
	}

	depth := gen.Options().Depth
	live := false
	if v := r.URL.Query().Get("t"); v != "" {
		depth, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(depth) || math.IsInf(depth, 0) {
			http.Error(w, fmt.Sprintf("invalid depth %q", v), http.StatusBadRequest)
			return
		}
		live = true
	}

	key := coords.String() + suffix
	fullPath := filepath.Join(t.cfg.TilesDir, key+".png")
	cacheable := !live && !t.cfg.DisableCache

	if live {
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", t.cfg.CacheControl)
	}

	if cacheable && fileExists(fullPath) {
		http.ServeFile(w, r, fullPath)
		return
	}
	if !live && !t.cfg.GenerateMissing {
		http.Error(w, fmt.Sprintf("tile not found: %s.png", key), http.StatusNotFound)
		return
	}

	if cacheable {
		mu := t.getLock(key)
		mu.Lock()
		defer mu.Unlock()

		if fileExists(fullPath) {
			http.ServeFile(w, r, fullPath)
			return
		}
	}

	t.queuedRenders.Add(1)
	t.queuedTiles.Store(key, time.Now())
	select {
	case t.sem <- struct{}{}:
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		defer func() { <-t.sem }()
	case <-r.Context().Done():
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	t.activeRenders.Add(1)
	t.currentRenders.Store(key, start)
	data, err := gen.Encode(ctx, coords, depth)
	t.activeRenders.Add(-1)
	t.currentRenders.Delete(key)

	if err != nil {
		t.totalFailed.Add(1)
		t.log().Error("failed to generate tile", "coords", coords.String(), "suffix", suffix, "error", err)
		http.Error(w, fmt.Sprintf("failed to generate tile %s: %v", key, err), http.StatusInternalServerError)
		return
	}
	t.totalRendered.Add(1)
	t.log().Info("tile generated on-demand", "coords", coords.String(), "suffix", suffix, "depth", depth, "ms", time.Since(start).Milliseconds())

	if cacheable {
		if err := writeFileAtomic(fullPath, data); err != nil {
			t.log().Warn("failed to cache tile", "path", fullPath, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		t.log().Debug("failed to write tile response", "error", err)
	}
}

func (t *OnDemandTiles) generatorFor(suffix string) (*pipeline.Generator, error) {
	size := tileSizeForSuffix(t.base.Options().TileSize, suffix)
	if v, ok := t.gens.Load(size); ok {
		return v.(*pipeline.Generator), nil
	}

	opts := t.base.Options()
	opts.TileSize = size
	opts.Suffix = suffix
	g, err := pipeline.NewGenerator(t.cfg.TilesDir, nil, opts, t.logger)
	if err != nil {
		return nil, err
	}
	actual, _ := t.gens.LoadOrStore(size, g)
	return actual.(*pipeline.Generator), nil
}

func (t *OnDemandTiles) getLock(key string) *sync.Mutex {
	if v, ok := t.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := t.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (t *OnDemandTiles) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// parseTilePath accepts /tiles/z13_x4317_y2692.png and the @2x variant.
func parseTilePath(requestPath string) (tile.Coords, string, bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return tile.Coords{}, "", false
	}
	base := path.Base(requestPath)
	if !strings.HasSuffix(base, ".png") {
		return tile.Coords{}, "", false
	}
	name := strings.TrimSuffix(base, ".png")
	suffix := ""
	if strings.HasSuffix(name, "@2x") {
		suffix = "@2x"
		name = strings.TrimSuffix(name, "@2x")
	}

	coords, err := tile.ParseCoords(name)
	if err != nil {
		return tile.Coords{}, "", false
	}
	return coords, suffix, true
}

func tileSizeForSuffix(base int, suffix string) int {
	if suffix == "@2x" {
		return base * 2
	}
	return base
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !st.IsDir()
}

func writeFileAtomic(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}
