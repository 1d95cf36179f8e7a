// Package noise evaluates deterministic Value, Perlin and Simplex noise in 2D
// and 3D and composes them into normalised fractal intensities.
package noise

import "sync"

// PermutationSeed is the reference permutation of 0..255 shared by every evaluator.
var PermutationSeed = [256]uint8{
	151, 160, 137, 91, 90, 15, 131, 13, 201, 95, 96, 53, 194, 233, 7, 225,
	140, 36, 103, 30, 69, 142, 8, 99, 37, 240, 21, 10, 23, 190, 6, 148,
	247, 120, 234, 75, 0, 26, 197, 62, 94, 252, 219, 203, 117, 35, 11, 32,
	57, 177, 33, 88, 237, 149, 56, 87, 174, 20, 125, 136, 171, 168, 68, 175,
	74, 165, 71, 134, 139, 48, 27, 166, 77, 146, 158, 231, 83, 111, 229, 122,
	60, 211, 133, 230, 220, 105, 92, 41, 55, 46, 245, 40, 244, 102, 143, 54,
	65, 25, 63, 161, 1, 216, 80, 73, 209, 76, 132, 187, 208, 89, 18, 169,
	200, 196, 135, 130, 116, 188, 159, 86, 164, 100, 109, 198, 173, 186, 3, 64,
	52, 217, 226, 250, 124, 123, 5, 202, 38, 147, 118, 126, 255, 82, 85, 212,
	207, 206, 59, 227, 47, 16, 58, 17, 182, 189, 28, 42, 223, 183, 170, 213,
	119, 248, 152, 2, 44, 154, 163, 70, 221, 153, 101, 155, 167, 43, 172, 9,
	129, 22, 39, 253, 19, 98, 108, 110, 79, 113, 224, 232, 178, 185, 112, 104,
	218, 246, 97, 228, 251, 34, 242, 193, 238, 210, 144, 12, 191, 179, 162, 241,
	81, 51, 145, 235, 249, 14, 239, 107, 49, 192, 214, 31, 181, 199, 106, 157,
	184, 84, 204, 176, 115, 121, 50, 45, 127, 4, 150, 254, 138, 236, 205, 93,
	222, 114, 67, 29, 24, 72, 243, 141, 128, 195, 78, 66, 215, 61, 156, 180,
}

// Gradients are the twelve cube-edge directions used by Perlin and Simplex noise.
var Gradients = [12][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
}

var (
	tablesOnce sync.Once
	perm       [512]uint8
)

// BuildPermutationTable doubles a 256-entry seed into a 512-entry table so that
// lattice lookups of the form perm[i+perm[j]] never need a modulo.
func BuildPermutationTable(seed [256]uint8) [512]uint8 {
	var table [512]uint8
	for i := range table {
		table[i] = seed[i&255]
	}
	return table
}

// Initialize builds the shared lookup tables on first use and returns them.
// Later calls return the same tables. Callers must not modify them.
func Initialize() (*[512]uint8, *[12][3]float64) {
	tablesOnce.Do(func() {
		perm = BuildPermutationTable(PermutationSeed)
	})
	return &perm, &Gradients
}

func permTable() *[512]uint8 {
	p, _ := Initialize()
	return p
}

func fastFloor(x float64) int {
	i := int(x)
	if x < float64(i) {
		return i - 1
	}
	return i
}

// fade is the quintic smoothstep 6t^5 - 15t^4 + 10t^3.
func fade(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func dot2(g [3]float64, x, y float64) float64 { return g[0]*x + g[1]*y }

func dot3(g [3]float64, x, y, z float64) float64 { return g[0]*x + g[1]*y + g[2]*z }
