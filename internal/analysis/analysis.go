// Package analysis computes distribution statistics for sampled fields.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HistogramBins is the number of equal-width bins in Summary.Histogram.
const HistogramBins = 10

// ErrEmpty is returned when there is nothing to summarise.
var ErrEmpty = errors.New("no samples")

// Summary describes a set of intensities.
type Summary struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
	P5     float64
	P95    float64
	// Histogram counts samples over [Min, Max] in HistogramBins bins.
	Histogram []int
}

// Summarize computes a Summary. values is not modified.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmpty
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Summary{}, fmt.Errorf("sample %d is not finite: %v", i, v)
		}
	}

	s := Summary{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}

	data := stats.Float64Data(values)
	var err error
	if s.Median, err = data.Median(); err != nil {
		return Summary{}, fmt.Errorf("median: %w", err)
	}
	if s.P5, err = data.PercentileNearestRank(5); err != nil {
		return Summary{}, fmt.Errorf("p5: %w", err)
	}
	if s.P95, err = data.PercentileNearestRank(95); err != nil {
		return Summary{}, fmt.Errorf("p95: %w", err)
	}

	s.Histogram = histogram(values, s.Min, s.Max)
	return s, nil
}

func histogram(values []float64, lo, hi float64) []int {
	bins := make([]int, HistogramBins)
	width := (hi - lo) / HistogramBins
	for _, v := range values {
		i := 0
		if width > 0 {
			i = int((v - lo) / width)
		}
		if i >= HistogramBins {
			i = HistogramBins - 1
		}
		bins[i]++
	}
	return bins
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "count   %d\n", s.Count)
	fmt.Fprintf(&b, "min     %.6f\n", s.Min)
	fmt.Fprintf(&b, "max     %.6f\n", s.Max)
	fmt.Fprintf(&b, "mean    %.6f\n", s.Mean)
	fmt.Fprintf(&b, "stddev  %.6f\n", s.StdDev)
	fmt.Fprintf(&b, "median  %.6f\n", s.Median)
	fmt.Fprintf(&b, "p5      %.6f\n", s.P5)
	fmt.Fprintf(&b, "p95     %.6f\n", s.P95)

	peak := 0
	for _, n := range s.Histogram {
		peak = max(peak, n)
	}
	width := (s.Max - s.Min) / float64(len(s.Histogram))
	for i, n := range s.Histogram {
		bar := 0
		if peak > 0 {
			bar = n * 40 / peak
		}
		fmt.Fprintf(&b, "%.4f  %-40s %d\n", s.Min+float64(i)*width, strings.Repeat("#", bar), n)
	}
	return b.String()
}
