// The time-series keeps a fixed number of buckets of hit, miss and memory samples for charting. Buckets rotate
// lazily: every update first checks how many intervals passed since the last rotation and opens that many new
// buckets, so an idle cache does not need a timer.

package cache

import (
	"sync"
	"time"
)

// Bucket holds the latest cumulative sample taken within one interval.
type Bucket struct {
	Start       time.Time `json:"start"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	MemoryBytes int64     `json:"memory_bytes"`
}

// Visualization is the column oriented view of the buckets, oldest first, used to draw charts.
type Visualization struct {
	Labels   []string  `json:"labels"`
	Hits     []int64   `json:"hits"`
	Misses   []int64   `json:"misses"`
	MemoryMB []float64 `json:"memory_usage_mb"`
}

// TimeSeries is a ring of buckets. It has its own lock so stats reads never contend with the entry table.
type TimeSeries struct {
	mu           sync.Mutex
	interval     time.Duration
	buckets      []Bucket
	oldest       int       // Index of the oldest bucket; the newest one sits right before it.
	lastRotation time.Time // Start of the newest bucket.
}

// NewTimeSeries returns a series of `n` buckets of width `interval` whose newest bucket starts at `now`.
func NewTimeSeries(interval time.Duration, n int, now time.Time) *TimeSeries {
	ts := &TimeSeries{}
	ts.reset(interval, n, now)
	return ts
}

func (ts *TimeSeries) reset(interval time.Duration, n int, now time.Time) {
	ts.interval = interval
	ts.buckets = make([]Bucket, max(n, 1))
	ts.oldest = 0
	ts.lastRotation = now
	for i := range ts.buckets {
		ts.buckets[i].Start = now.Add(-time.Duration(len(ts.buckets)-1-i) * interval)
	}
}

func (ts *TimeSeries) newest() int {
	return (ts.oldest + len(ts.buckets) - 1) % len(ts.buckets)
}

// rotate opens a bucket for every interval elapsed since the last rotation. At most len(buckets) buckets are opened
// since older ones would be overwritten anyway.
func (ts *TimeSeries) rotate(now time.Time) {
	if ts.interval <= 0 {
		return
	}
	elapsed := now.Sub(ts.lastRotation)
	if elapsed < ts.interval {
		return
	}
	rotations := int64(elapsed / ts.interval)
	ts.lastRotation = ts.lastRotation.Add(time.Duration(rotations) * ts.interval)
	opened := min(rotations, int64(len(ts.buckets)))
	for i := opened - 1; i >= 0; i-- {
		slot := ts.oldest
		ts.oldest = (ts.oldest + 1) % len(ts.buckets)
		ts.buckets[slot] = Bucket{Start: ts.lastRotation.Add(-time.Duration(i) * ts.interval)}
	}
}

// Update records the cumulative hit, miss and memory values into the current bucket.
func (ts *TimeSeries) Update(now time.Time, hits, misses, memoryBytes int64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.rotate(now)
	current := &ts.buckets[ts.newest()]
	current.Hits = hits
	current.Misses = misses
	current.MemoryBytes = memoryBytes
}

// Reset empties every bucket and restarts the series at `now`.
func (ts *TimeSeries) Reset(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.reset(ts.interval, len(ts.buckets), now)
}

// Resize changes the bucket width and count. The newest buckets are kept; missing older ones are zero.
func (ts *TimeSeries) Resize(interval time.Duration, n int, now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	kept := ts.ordered()
	ts.reset(interval, n, now)
	if len(kept) > len(ts.buckets) {
		kept = kept[len(kept)-len(ts.buckets):]
	}
	padding := len(ts.buckets) - len(kept)
	copy(ts.buckets[padding:], kept)
	for i := range padding {
		ts.buckets[i] = Bucket{Start: kept[0].Start.Add(-time.Duration(padding-i) * interval)}
	}
	ts.lastRotation = ts.buckets[len(ts.buckets)-1].Start
}

// ordered returns a copy of the buckets, oldest first. Callers hold the lock.
func (ts *TimeSeries) ordered() []Bucket {
	buckets := make([]Bucket, 0, len(ts.buckets))
	buckets = append(buckets, ts.buckets[ts.oldest:]...)
	return append(buckets, ts.buckets[:ts.oldest]...)
}

// Buckets returns a copy of the buckets, oldest first.
func (ts *TimeSeries) Buckets() []Bucket {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.ordered()
}

// Interval returns the current bucket width.
func (ts *TimeSeries) Interval() time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.interval
}

// Visualization returns the buckets as chart columns labelled with their start time.
func (ts *TimeSeries) Visualization() Visualization {
	buckets := ts.Buckets()
	viz := Visualization{
		Labels:   make([]string, len(buckets)),
		Hits:     make([]int64, len(buckets)),
		Misses:   make([]int64, len(buckets)),
		MemoryMB: make([]float64, len(buckets)),
	}
	for i, bucket := range buckets {
		viz.Labels[i] = bucket.Start.Format("15:04")
		viz.Hits[i] = bucket.Hits
		viz.Misses[i] = bucket.Misses
		viz.MemoryMB[i] = float64(bucket.MemoryBytes) / (1 << 20)
	}
	return viz
}
