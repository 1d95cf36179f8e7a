package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeKnownData(t *testing.T) {
	values := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	orig := append([]float64(nil), values...)

	s, err := Summarize(values)
	require.NoError(t, err)

	assert.Equal(t, 100, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.InDelta(t, 50.5, s.Mean, 1e-12)
	assert.InDelta(t, 29.011491975882016, s.StdDev, 1e-9)
	assert.Equal(t, 50.5, s.Median)
	assert.Equal(t, 5.0, s.P5)
	assert.Equal(t, 95.0, s.P95)
	assert.Equal(t, []int{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, s.Histogram)
	assert.Equal(t, orig, values)
	assert.Contains(t, s.String(), "mean    50.500000")
}

func TestSummarizeConstant(t *testing.T) {
	s, err := Summarize([]float64{0.25, 0.25, 0.25})
	require.NoError(t, err)
	assert.Zero(t, s.StdDev)
	assert.Equal(t, 3, s.Histogram[0])

	s, err = Summarize([]float64{0.5})
	require.NoError(t, err)
	assert.Zero(t, s.StdDev)
	assert.Equal(t, 0.5, s.Median)
}

func TestSummarizeRejectsBadInput(t *testing.T) {
	_, err := Summarize(nil)
	require.ErrorIs(t, err, ErrEmpty)

	_, err = Summarize([]float64{1, math.NaN()})
	require.Error(t, err)
}
