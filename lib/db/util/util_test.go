package util

import (
	"sync"
	"testing"
)

func TestHashStringStable(t *testing.T) {
	// plain 64-bit FNV-1a reference values
	tests := []struct {
		input string
		want  uint64
	}{
		{"", 0xcbf29ce484222325},
		{"a", 0xaf63dc4c8601ec8c},
		{"foobar", 0x85944171f73967e8},
	}

	for _, tt := range tests {
		if got := uint64(HashString(tt.input, 0)); got != tt.want {
			t.Errorf("HashString(%q) = %#x, want %#x", tt.input, got, tt.want)
		}
		if got := uint64(HashBytes([]byte(tt.input), 0)); got != tt.want {
			t.Errorf("HashBytes(%q) = %#x, want %#x", tt.input, got, tt.want)
		}
	}
}

func TestHashSeedChangesResult(t *testing.T) {
	if HashString("key", 0) == HashString("key", 42) {
		t.Errorf("Expected different hashes for different seeds")
	}
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]int{100, 100, 100, 100})
	if even.DistributionQuality != 1.0 {
		t.Errorf("Expected perfect quality for even spread, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]int{400, 0, 0, 0})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Expected skewed spread to rate worse than even spread")
	}
	if skewed.Max != 400 || skewed.Min != 0 {
		t.Errorf("Unexpected min/max: %f/%f", skewed.Min, skewed.Max)
	}

	empty := NewDistributionStats(nil)
	if empty.Mean != 0 {
		t.Errorf("Expected zero stats for empty input")
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()

	if h.AverageSize() != 0 || h.MedianEstimate() != 0 {
		t.Errorf("Expected zero estimates on empty histogram")
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				h.AddSample(10)
			}
		}()
	}
	wg.Wait()

	if h.GetCount() != 1000 {
		t.Errorf("Expected 1000 samples, got %d", h.GetCount())
	}
	if h.AverageSize() != 10 {
		t.Errorf("Expected average 10, got %d", h.AverageSize())
	}
	if h.MedianEstimate() != 8 {
		t.Errorf("Expected median estimate 8 (first bucket midpoint), got %d", h.MedianEstimate())
	}

	h.AddSample(5 << 30) // above the largest boundary
	if h.GetPercentileEstimate(100) != histogramBoundaries[len(histogramBoundaries)-1]*2 {
		t.Errorf("Expected overflow bucket estimate for p100")
	}

	snap := h.Snapshot()
	if snap.Count != 1001 {
		t.Errorf("Expected snapshot count 1001, got %d", snap.Count)
	}

	h.Reset()
	if h.GetCount() != 0 {
		t.Errorf("Expected empty histogram after reset")
	}
}
