package monitor

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Default buckets for response times (microseconds)
var defaultBuckets = []float64{
	0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0, 7.5,
	10, 15, 22.5, 33.75, 50.625, 75.9375, 113.90625, 170.859375,
	256.2890625, 384.43359375, 576.650390625, 864.9755859375, 1297.46337890625,
	1946.195068359375, 2919.2926025390625, 4378.93890380859375, 6568.408355712891,
	9852.612533569336, 14778.918800354004, 22168.378200531006, 33252.5673007965,
	49878.85095119475, 74818.27642679212, 112227.41464018819, 168341.12196028227,
	252511.6829404234, 378767.5244106351, 568151.2866159527, 852226.9299239291,
	1278340.3948858936, 1917510.5923288405, 2876265.888493261, 4314398.832739891,
	6471598.249109836, 9707397.373664754, 14561096.060497131, 21841644.090745698,
	32762466.136118546, 49143699.20417782, 73715548.80626673,
}

// DefaultBuckets returns a copy of the default bucket upper bounds.
func DefaultBuckets() []float64 {
	return append([]float64(nil), defaultBuckets...)
}

// Histogram facet names, in export order.
const (
	FacetSum = "sum"
	FacetMin = "min"
	FacetMax = "max"
	FacetP50 = "p50"
	FacetP75 = "p75"
	FacetP95 = "p95"
	FacetP99 = "p99"
)

// Histogram records a distribution of values into fixed buckets.
type Histogram struct {
	buckets []float64
	counts  []atomic.Int64 // len(buckets)+1, the last one is the overflow bucket
	count   atomic.Int64

	mu  sync.Mutex
	sum float64
	min float64
	max float64
}

// NewHistogram creates a histogram with the given bucket upper bounds.
// Nil or empty buckets select DefaultBuckets.
func NewHistogram(buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{
		buckets: b,
		counts:  make([]atomic.Int64, len(b)+1),
	}
}

// Observe records a value in the histogram
func (h *Histogram) Observe(value float64) {
	i := sort.SearchFloat64s(h.buckets, value)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count.Load() == 0 || value < h.min {
		h.min = value
	}
	if h.count.Load() == 0 || value > h.max {
		h.max = value
	}
	h.sum += value
	h.count.Add(1)
	h.counts[i].Add(1)
}

// Snapshot returns a copy of the histogram state.
func (h *Histogram) Snapshot() HistogramSnapshot {
	counts := make([]int64, len(h.counts))

	// Count, Counts and the aggregates move together.
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.counts {
		counts[i] = h.counts[i].Load()
	}
	return HistogramSnapshot{
		Count:   h.count.Load(),
		Sum:     h.sum,
		Min:     h.min,
		Max:     h.max,
		Buckets: h.buckets,
		Counts:  counts,
	}
}

// Export implements Metric.
func (h *Histogram) Export() ExportedValue {
	return h.Snapshot()
}

// HistogramSnapshot is a point-in-time copy of a Histogram. Counts has one
// entry per bucket plus a trailing overflow bucket. Buckets is shared with
// the histogram and must not be modified.
type HistogramSnapshot struct {
	Count   int64
	Sum     float64
	Min     float64
	Max     float64
	Buckets []float64
	Counts  []int64
}

// Mean returns Sum/Count, or 0 for an empty histogram.
func (s HistogramSnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Percentile returns an estimate of the q-th quantile (0 < q <= 1): the
// upper bound of the bucket holding that rank, clamped to the observed
// range.
func (s HistogramSnapshot) Percentile(q float64) float64 {
	if s.Count == 0 {
		return 0
	}
	rank := int64(math.Ceil(q * float64(s.Count)))
	if rank < 1 {
		rank = 1
	}

	var seen int64
	for i, c := range s.Counts {
		seen += c
		if seen < rank {
			continue
		}
		if i >= len(s.Buckets) {
			return s.Max
		}
		return math.Max(s.Min, math.Min(s.Buckets[i], s.Max))
	}
	return s.Max
}

// Kind implements ExportedValue.
func (HistogramSnapshot) Kind() Kind { return KindHistogram }

// Facets implements ExportedValue.
func (s HistogramSnapshot) Facets() []Facet {
	return []Facet{
		{Name: FacetCount, Value: float64(s.Count)},
		{Name: FacetSum, Value: s.Sum},
		{Name: FacetMin, Value: s.Min},
		{Name: FacetMax, Value: s.Max},
		{Name: FacetMean, Value: s.Mean()},
		{Name: FacetP50, Value: s.Percentile(0.50)},
		{Name: FacetP75, Value: s.Percentile(0.75)},
		{Name: FacetP95, Value: s.Percentile(0.95)},
		{Name: FacetP99, Value: s.Percentile(0.99)},
	}
}

func (HistogramSnapshot) exported() {}
