// Package tile addresses square noise windows with slippy-map coordinates so
// a field can be browsed and archived like a web map.
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/MeKo-Tech/noisefield/internal/noise"
)

// MaxZoom is the deepest zoom level accepted by the tile tools.
const MaxZoom = 24

// Coords is a tile address (z/x/y).
type Coords struct {
	Z uint32
	X uint32
	Y uint32
}

// String formats the coordinate as "z{zoom}_x{x}_y{y}".
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Path returns the flat file name for this tile.
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// Tile returns the maptile.Tile for this coordinate.
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Valid reports whether x and y fit the zoom level.
func (c Coords) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// Bounds returns [minLon, minLat, maxLon, maxLat] of the tile in WGS84.
func (c Coords) Bounds() [4]float64 {
	b := c.Tile().Bound()
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// Origin returns the grid origin passed to the sampler for a tile of
// size×size cells. Paired with FrequencyAt, one cell at zoom z+1 covers half
// a cell at zoom z, and all zoom levels sample the same field: the origin
// shift cancels the coordinate offset being scaled by the zoom frequency.
func (c Coords) Origin(size int) (x, y float64) {
	shift := noise.CoordinateOffset * (math.Exp2(float64(c.Z)) - 1)
	return float64(c.X)*float64(size) + shift, float64(c.Y)*float64(size) + shift
}

// DepthAt maps a depth given at zoom 0 to the z coordinate passed to the
// sampler at zoom z, so 3D slices line up across zoom levels like Origin does
// for x and y.
func DepthAt(depth float64, z uint32) float64 {
	scale := math.Exp2(float64(z))
	return depth*scale + noise.CoordinateOffset*(scale-1)
}

// FrequencyAt returns the sampling frequency for zoom z given the frequency
// used at zoom 0.
func FrequencyAt(base float64, z uint32) float64 {
	return base / math.Exp2(float64(z))
}

// ParseCoords parses a tile string like "z13_x4297_y2754".
func ParseCoords(s string) (Coords, error) {
	var c Coords
	var rest string
	n, _ := fmt.Sscanf(s, "z%d_x%d_y%d%s", &c.Z, &c.X, &c.Y, &rest)
	if n < 3 || rest != "" {
		return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	if !c.Valid() {
		return Coords{}, fmt.Errorf("tile %s is outside the zoom %d grid", c, c.Z)
	}
	return c, nil
}

// TilesInBBox returns all tiles covering a bbox ([minLon, minLat, maxLon,
// maxLat]) for every zoom in [zoomMin, zoomMax].
func TilesInBBox(bbox [4]float64, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))
	forEachZoom(bbox, zoomMin, zoomMax, func(z int, minX, maxX, minY, maxY uint32) {
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, Coords{Z: uint32(z), X: x, Y: y})
			}
		}
	})
	return tiles
}

// TileCount returns len(TilesInBBox(...)) without allocating the list.
func TileCount(bbox [4]float64, zoomMin, zoomMax int) int {
	count := 0
	forEachZoom(bbox, zoomMin, zoomMax, func(_ int, minX, maxX, minY, maxY uint32) {
		count += int(maxX-minX+1) * int(maxY-minY+1)
	})
	return count
}

func forEachZoom(bbox [4]float64, zoomMin, zoomMax int, fn func(z int, minX, maxX, minY, maxY uint32)) {
	minPoint := orb.Point{bbox[0], bbox[1]}
	maxPoint := orb.Point{bbox[2], bbox[3]}

	for z := zoomMin; z <= zoomMax; z++ {
		zoom := maptile.Zoom(z)
		minTile := maptile.At(minPoint, zoom)
		maxTile := maptile.At(maxPoint, zoom)

		// tile Y grows southwards
		minX, maxX := minTile.X, maxTile.X
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		minY, maxY := minTile.Y, maxTile.Y
		if minY > maxY {
			minY, maxY = maxY, minY
		}
		// lon 180 lands one past the last column
		last := uint32(1)<<uint(z) - 1
		fn(z, min(minX, last), min(maxX, last), min(minY, last), min(maxY, last))
	}
}
