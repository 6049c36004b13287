// Package util provides testing, benchmarking, and utility tools for KVDB implementations.
// This file implements summary statistics and a bucketed histogram used to report
// key and value size distributions without keeping every sample.
package util

import (
	"math"
	"sort"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, standard deviation, minimum and maximum of values.
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

	var squares float64
	for _, v := range values {
		d := v - mean
		squares += d * d
	}

	// population standard deviation
	stdDev := math.Sqrt(squares / float64(len(values)))

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly values (e.g. keys per shard) are spread.
// A quality of 1 means perfectly even.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower CV and higher min/max ratio indicate a better distribution
	quality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: quality,
	}
}

// ----------------------------------------------------------------------------
// Histogram
// ----------------------------------------------------------------------------

// KeySizeBoundaries are bucket boundaries suited for key lengths.
var KeySizeBoundaries = []int{4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096}

// ValueSizeBoundaries are bucket boundaries from bytes to gigabytes.
var ValueSizeBoundaries = []int{
	16, 64, 256, 1024, 4096, // 16B to 4KB
	16384, 65536, 262144, 1048576, // 16KB to 1MB
	4194304, 16777216, 67108864, // 4MB to 64MB
	268435456, 1073741824, 4294967296, // 256MB to 4GB
}

// Histogram counts samples in buckets. Bucket i holds samples in
// (boundaries[i-1], boundaries[i]]; one extra bucket takes everything larger.
//
// Thread-safe: all methods are safe for concurrent use.
type Histogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewHistogram creates a histogram with the given ascending boundaries.
func NewHistogram(boundaries []int) *Histogram {
	return &Histogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample adds one sample.
func (h *Histogram) AddSample(size int) {
	i := sort.SearchInts(h.boundaries, size)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += int64(size)
}

// Merge adds all samples of other to h. Both must share boundaries.
func (h *Histogram) Merge(other *Histogram) {
	other.mutex.RLock()
	buckets := append([]int64(nil), other.buckets...)
	count, sum := other.count, other.sum
	other.mutex.RUnlock()

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for i, c := range buckets {
		h.buckets[i] += c
	}
	h.count += count
	h.sum += sum
}

// Count returns the number of samples.
func (h *Histogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples.
func (h *Histogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Average returns the exact mean of all samples.
func (h *Histogram) Average() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile estimates the given percentile (0-100) from the bucket counts.
func (h *Histogram) Percentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var seen int64
	for i, c := range h.buckets {
		seen += c
		if seen >= target && c > 0 {
			return h.estimate(i)
		}
	}
	return int(h.sum / h.count)
}

// estimate returns a representative value for bucket i.
func (h *Histogram) estimate(i int) int {
	switch {
	case i == 0:
		return h.boundaries[0] / 2
	case i < len(h.boundaries):
		return (h.boundaries[i-1] + h.boundaries[i]) / 2
	default:
		return h.boundaries[len(h.boundaries)-1] * 2
	}
}

// Distribution returns the boundaries and the percentage of samples per bucket.
func (h *Histogram) Distribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}
	for i, c := range h.buckets {
		percentages[i] = float64(c) * 100.0 / float64(h.count)
	}
	return h.boundaries, percentages
}

// HistogramSummary is the JSON friendly form of a Histogram.
type HistogramSummary struct {
	Count   int64 `json:"count"`
	Average int   `json:"average"`
	P50     int   `json:"p50"`
	P90     int   `json:"p90"`
	P99     int   `json:"p99"`
}

// Summary returns count, mean and common percentiles.
func (h *Histogram) Summary() HistogramSummary {
	return HistogramSummary{
		Count:   h.Count(),
		Average: h.Average(),
		P50:     h.Percentile(50),
		P90:     h.Percentile(90),
		P99:     h.Percentile(99),
	}
}
