// Package mbtiles stores rendered noise tiles in MBTiles (SQLite) archives.
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/noisefield/internal/noise"
)

// ErrTileNotFound is returned by Reader.ReadTile for absent tiles.
var ErrTileNotFound = errors.New("tile not found")

// Metadata contains the MBTiles metadata fields written to an archive.
type Metadata struct {
	Name        string
	Format      string // png
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64
	Center      [3]float64
	MinZoom     int
	MaxZoom     int

	// Noise records how the tiles were sampled. Nil when unknown.
	Noise    *noise.Params
	Depth    float64
	TileSize int
}

// ToMap converts Metadata to name/value rows.
func (m Metadata) ToMap() map[string]string {
	result := map[string]string{
		"minzoom": strconv.Itoa(m.MinZoom),
		"maxzoom": strconv.Itoa(m.MaxZoom),
	}
	set := func(k, v string) {
		if v != "" {
			result[k] = v
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}
	if m.Center != [3]float64{} {
		result["center"] = fmt.Sprintf("%.6f,%.6f,%d",
			m.Center[0], m.Center[1], int(m.Center[2]))
	}

	if p := m.Noise; p != nil {
		result["noise_type"] = p.Kind.String()
		result["octaves"] = strconv.Itoa(p.Octaves)
		result["frequency"] = formatFloat(p.Frequency)
		result["lacunarity"] = formatFloat(p.Lacunarity)
		result["persistence"] = formatFloat(p.Persistence)
		result["gain"] = formatFloat(p.Gain)
		result["legacy"] = strconv.FormatBool(p.Legacy)
		result["depth"] = formatFloat(m.Depth)
	}
	if m.TileSize > 0 {
		result["tile_size"] = strconv.Itoa(m.TileSize)
	}
	return result
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// metadataFromMap is the inverse of ToMap. Malformed numeric values are left
// at their zero value.
func metadataFromMap(rows map[string]string) Metadata {
	m := Metadata{
		Name:        rows["name"],
		Format:      rows["format"],
		Description: rows["description"],
		Type:        rows["type"],
		Version:     rows["version"],
	}
	m.MinZoom, _ = strconv.Atoi(rows["minzoom"])
	m.MaxZoom, _ = strconv.Atoi(rows["maxzoom"])
	m.TileSize, _ = strconv.Atoi(rows["tile_size"])
	parseFloats(rows["bounds"], m.Bounds[:])
	parseFloats(rows["center"], m.Center[:])

	kind, err := noise.ParseKind(rows["noise_type"])
	if err != nil {
		return m
	}
	p := noise.Params{Kind: kind}
	p.Octaves, _ = strconv.Atoi(rows["octaves"])
	p.Frequency, _ = strconv.ParseFloat(rows["frequency"], 64)
	p.Lacunarity, _ = strconv.ParseFloat(rows["lacunarity"], 64)
	p.Persistence, _ = strconv.ParseFloat(rows["persistence"], 64)
	p.Gain, _ = strconv.ParseFloat(rows["gain"], 64)
	p.Legacy, _ = strconv.ParseBool(rows["legacy"])
	m.Depth, _ = strconv.ParseFloat(rows["depth"], 64)
	m.Noise = &p
	return m
}

func parseFloats(s string, dst []float64) {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return
	}
	for i, part := range parts {
		if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			dst[i] = f
		}
	}
}
