package metrics

import (
	"slices"
	"sync"
	"time"
)

// Bucket names used by the pipeline.
const (
	BucketRecognition = "recognition"
	BucketTranslation = "translation"
	BucketSynthesis   = "synthesis"
	BucketTotal       = "total"
)

// StageSummary is the flushed view of one bucket.
type StageSummary struct {
	Mean    time.Duration `json:"mean"`
	Median  time.Duration `json:"median"`
	Samples int           `json:"samples"`
}

// Aggregator accumulates per-stage duration samples across chunks for one
// session. It has no writing side channel; callers route Summary() snapshots
// wherever they want them.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[string][]time.Duration
}

func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[string][]time.Duration)}
}

func (a *Aggregator) Add(bucket string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets[bucket] = append(a.buckets[bucket], d)
}

// Mean returns the arithmetic mean of a bucket, 0 when empty.
func (a *Aggregator) Mean(bucket string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	samples := a.buckets[bucket]
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}

// Median returns the median of a bucket: 0 when empty, and the average of the
// two central sorted values for even-count buckets.
func (a *Aggregator) Median(bucket string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return median(a.buckets[bucket])
}

func median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Summary snapshots every bucket's mean and median.
func (a *Aggregator) Summary() map[string]StageSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]StageSummary, len(a.buckets))
	for name, samples := range a.buckets {
		var sum time.Duration
		for _, s := range samples {
			sum += s
		}
		summary := StageSummary{Median: median(samples), Samples: len(samples)}
		if len(samples) > 0 {
			summary.Mean = sum / time.Duration(len(samples))
		}
		out[name] = summary
	}
	return out
}

// Reset drops all accumulated samples.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[string][]time.Duration)
}
