package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/noisefield/internal/mbtiles"
)

// MBTilesHandler serves tiles from an MBTiles archive.
type MBTilesHandler struct {
	reader       *mbtiles.Reader
	logger       *slog.Logger
	cacheControl string
}

// MBTilesConfig configures the MBTiles handler.
type MBTilesConfig struct {
	MBTilesPath  string
	CacheControl string
}

// NewMBTilesHandler opens the archive read-only.
func NewMBTilesHandler(cfg MBTilesConfig, logger *slog.Logger) (*MBTilesHandler, error) {
	reader, err := mbtiles.OpenReader(cfg.MBTilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MBTiles: %w", err)
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=86400"
	}
	return &MBTilesHandler{
		reader:       reader,
		logger:       logger,
		cacheControl: cfg.CacheControl,
	}, nil
}

// Handler serves /tiles/z{z}_x{x}_y{y}.png. The @2x suffix is ignored; use a
// separate archive per tile size.
func (h *MBTilesHandler) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coords, _, ok := parseTilePath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := h.reader.ReadTile(coords)
		if errors.Is(err, mbtiles.ErrTileNotFound) {
			http.Error(w, "Tile not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.log().Error("Failed to read tile", "coords", coords.String(), "error", err)
			http.Error(w, "Failed to read tile", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", h.cacheControl)
		w.Header().Set("Content-Type", "image/png")
		if _, err := w.Write(data); err != nil {
			h.log().Error("Failed to write response", "error", err)
		}
	}
}

// MetadataHandler serves the archive metadata as JSON.
func (h *MBTilesHandler) MetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, err := h.reader.Metadata()
		if err != nil {
			h.log().Error("Failed to read metadata", "error", err)
			http.Error(w, "Failed to read metadata", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(meta.ToMap()); err != nil {
			h.log().Error("Failed to encode metadata", "error", err)
		}
	}
}

// Close closes the archive.
func (h *MBTilesHandler) Close() error {
	return h.reader.Close()
}

func (h *MBTilesHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
