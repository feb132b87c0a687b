package util

import (
	"math"
	"sync/atomic"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, maximum and mean
// of the given values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

// DistributionStats rates how evenly keys are spread over partitions.
// DistributionQuality is 1 for a perfect spread and approaches 0 for a skewed one.
type DistributionStats struct {
	Stats
	Counts              []int   `json:"counts"`
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for the number of keys per partition
func NewDistributionStats(counts []int) DistributionStats {
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	stats := NewStats(values)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower CV and higher min/max ratio indicate better distribution
	quality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		Counts:              counts,
		DistributionQuality: quality,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// histogramBoundaries are exponential bucket limits from 16 bytes to 4 GiB
var histogramBoundaries = []int{
	16, 64, 256, 1024, 4096,
	16384, 65536, 262144, 1048576,
	4194304, 16777216, 67108864,
	268435456, 1073741824, 4294967296,
}

// SizeHistogram tracks the distribution of value sizes written to a store.
// It is updated on every write, so all counters are atomics.
//
// Thread-safe: all methods are safe for concurrent use
type SizeHistogram struct {
	buckets [16]atomic.Int64 // len(histogramBoundaries) + 1 overflow bucket
	count   atomic.Int64
	sum     atomic.Int64
}

// HistogramSnapshot is a point-in-time view of a SizeHistogram
type HistogramSnapshot struct {
	Count   int64 `json:"count"`
	Average int   `json:"average"`
	Median  int   `json:"median"`
	P99     int   `json:"p99"`
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{}
}

// AddSample adds a size sample to the histogram
func (h *SizeHistogram) AddSample(size int) {
	idx := len(histogramBoundaries)
	for i, boundary := range histogramBoundaries {
		if size <= boundary {
			idx = i
			break
		}
	}
	h.buckets[idx].Add(1)
	h.count.Add(1)
	h.sum.Add(int64(size))
}

// GetCount returns the total number of samples
func (h *SizeHistogram) GetCount() int64 {
	return h.count.Load()
}

// AverageSize returns the average size across all samples
func (h *SizeHistogram) AverageSize() int {
	count := h.count.Load()
	if count == 0 {
		return 0
	}
	return int(h.sum.Load() / count)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100).
// The estimate is the midpoint of the bucket the percentile falls into.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	count := h.count.Load()
	if count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(count) * float64(percentile) / 100.0))
	var cumulative int64
	for i := range h.buckets {
		cumulative += h.buckets[i].Load()
		if cumulative >= target {
			return bucketMidpoint(i)
		}
	}
	return h.AverageSize()
}

// MedianEstimate estimates the median size based on the histogram
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// Snapshot returns the current summary of the histogram
func (h *SizeHistogram) Snapshot() HistogramSnapshot {
	return HistogramSnapshot{
		Count:   h.GetCount(),
		Average: h.AverageSize(),
		Median:  h.MedianEstimate(),
		P99:     h.GetPercentileEstimate(99),
	}
}

// Reset clears all histogram data
func (h *SizeHistogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.count.Store(0)
	h.sum.Store(0)
}

func bucketMidpoint(i int) int {
	switch {
	case i == 0:
		return histogramBoundaries[0] / 2
	case i < len(histogramBoundaries):
		return (histogramBoundaries[i-1] + histogramBoundaries[i]) / 2
	default:
		return histogramBoundaries[len(histogramBoundaries)-1] * 2
	}
}
