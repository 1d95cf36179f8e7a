package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutationSeedIsPermutation(t *testing.T) {
	var seen [256]bool
	for _, v := range PermutationSeed {
		require.False(t, seen[v], "value %d appears twice in seed", v)
		seen[v] = true
	}
}

func TestBuildPermutationTable(t *testing.T) {
	table := BuildPermutationTable(PermutationSeed)
	require.Len(t, table, 512)

	counts := make(map[uint8]int)
	for i := 0; i < 256; i++ {
		assert.Equal(t, PermutationSeed[i], table[i], "index %d", i)
		assert.Equal(t, PermutationSeed[i], table[i+256], "index %d", i+256)
	}
	for _, v := range table {
		counts[v]++
	}
	require.Len(t, counts, 256)
	for v, n := range counts {
		assert.Equal(t, 2, n, "value %d", v)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	p1, g1 := Initialize()
	p2, g2 := Initialize()
	require.Same(t, p1, p2)
	require.Same(t, g1, g2)
	assert.Equal(t, BuildPermutationTable(PermutationSeed), *p1)
}

func TestGradientsAreCubeEdges(t *testing.T) {
	for i, g := range Gradients {
		zeros := 0
		for _, c := range g {
			switch c {
			case 0:
				zeros++
			case 1, -1:
			default:
				t.Fatalf("gradient %d has component %v", i, c)
			}
		}
		assert.Equal(t, 1, zeros, "gradient %d", i)
	}
}

func TestFastFloor(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.5, 0},
		{1, 1},
		{-0.5, -1},
		{-1, -1},
		{-1.0001, -2},
		{1e6 + 0.25, 1000000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fastFloor(tt.in), "fastFloor(%v)", tt.in)
	}
}
