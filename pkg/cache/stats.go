package cache

import (
	"sync/atomic"
	"time"
)

// recorder tallies cache events with atomics so that recording never takes the store lock.
type recorder struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64
	preloads      atomic.Int64
	metrics       *cacheMetrics // Nil when metrics are disabled.
}

func (r *recorder) hit() {
	r.hits.Add(1)
	if r.metrics != nil {
		r.metrics.hits.Inc()
	}
}

func (r *recorder) miss() {
	r.misses.Add(1)
	if r.metrics != nil {
		r.metrics.misses.Inc()
	}
}

func (r *recorder) evicted(n int) {
	if n <= 0 {
		return
	}
	r.evictions.Add(int64(n))
	if r.metrics != nil {
		r.metrics.evictions.Add(float64(n))
	}
}

func (r *recorder) expired(n int) {
	if n <= 0 {
		return
	}
	r.expirations.Add(int64(n))
	if r.metrics != nil {
		r.metrics.expirations.Add(float64(n))
	}
}

func (r *recorder) invalidated(n int) {
	if n <= 0 {
		return
	}
	r.invalidations.Add(int64(n))
	if r.metrics != nil {
		r.metrics.invalidations.Add(float64(n))
	}
}

func (r *recorder) preloaded(n int) {
	if n <= 0 {
		return
	}
	r.preloads.Add(int64(n))
	if r.metrics != nil {
		r.metrics.preloads.Add(float64(n))
	}
}

// reset zeroes the counters. Exported metrics are left alone.
func (r *recorder) reset() {
	r.hits.Store(0)
	r.misses.Store(0)
	r.evictions.Store(0)
	r.expirations.Store(0)
	r.invalidations.Store(0)
	r.preloads.Store(0)
}

// Stats is a point-in-time view of the cache statistics.
type Stats struct {
	Hits               int64 `json:"hits"`
	Misses             int64 `json:"misses"`
	Evictions          int64 `json:"evictions"`
	Expirations        int64 `json:"expirations"`
	Invalidations      int64 `json:"invalidations"`
	Preloads           int64 `json:"preloads"`
	CurrentItems       int   `json:"current_items"`
	CurrentMemoryBytes int64 `json:"current_memory_bytes"`
	// MaxMemoryBytes is the high-water mark of CurrentMemoryBytes since creation or the last reset.
	MaxMemoryBytes           int64   `json:"max_memory_bytes"`
	MemoryLimitBytes         int64   `json:"memory_limit_bytes"`
	MemoryUtilizationPercent float64 `json:"memory_utilization_percent"`
	HitRatio                 float64 `json:"hit_ratio"`
	EfficiencyScore          float64 `json:"efficiency_score"`
	UptimeSeconds            float64 `json:"uptime_seconds"`
}

// summarize combines the counters with a store snapshot and fills in the derived metrics.
func (r *recorder) summarize(snapshot storeSnapshot, uptime time.Duration) Stats {
	stats := Stats{
		Hits:               r.hits.Load(),
		Misses:             r.misses.Load(),
		Evictions:          r.evictions.Load(),
		Expirations:        r.expirations.Load(),
		Invalidations:      r.invalidations.Load(),
		Preloads:           r.preloads.Load(),
		CurrentItems:       snapshot.items,
		CurrentMemoryBytes: snapshot.memoryBytes,
		MaxMemoryBytes:     snapshot.peakMemoryBytes,
		MemoryLimitBytes:   snapshot.config.MaxMemoryBytes,
		UptimeSeconds:      uptime.Seconds(),
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(lookups)
	}
	if stats.MemoryLimitBytes > 0 {
		stats.MemoryUtilizationPercent = float64(stats.CurrentMemoryBytes) / float64(stats.MemoryLimitBytes) * 100
	}
	weight := snapshot.config.HitWeight
	stats.EfficiencyScore = weight*stats.HitRatio + (1-weight)*(1-stats.MemoryUtilizationPercent/100)
	return stats
}
