package cache

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics exports the statistics of one cache instance. The recorder stays the source of truth; these counters
// are never reset.
type cacheMetrics struct {
	hits              prometheus.Counter
	misses            prometheus.Counter
	evictions         prometheus.Counter
	expirations       prometheus.Counter
	invalidations     prometheus.Counter
	preloads          prometheus.Counter
	transformDuration *prometheus.HistogramVec
	items             prometheus.GaugeFunc
	memoryBytes       prometheus.GaugeFunc
}

func newCacheMetrics(name string, s *store) *cacheMetrics {
	labels := prometheus.Labels{"cache": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixcache_" + metric + "_total", Help: help, ConstLabels: labels,
		})
	}
	return &cacheMetrics{
		hits:          counter("hits", "Total number of lookups served from the cache."),
		misses:        counter("misses", "Total number of lookups that found no live entry."),
		evictions:     counter("evictions", "Total number of live entries dropped to respect the ceilings."),
		expirations:   counter("expirations", "Total number of entries dropped past their TTL."),
		invalidations: counter("invalidations", "Total number of entries dropped by explicit invalidation."),
		preloads:      counter("preloads", "Total number of entries added by preloading."),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pixcache_transform_duration_seconds",
			Help:        "Latency of transforms computed on a cache miss.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s.
		}, []string{"operation"}),
		items: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pixcache_items", Help: "Number of entries in the cache.", ConstLabels: labels,
		}, func() float64 { return float64(s.snapshot().items) }),
		memoryBytes: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pixcache_memory_bytes", Help: "Pixel bytes held by the cache.", ConstLabels: labels,
		}, func() float64 { return float64(s.snapshot().memoryBytes) }),
	}
}

// register adds every collector to `registerer`, stopping at the first failure.
func (m *cacheMetrics) register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		m.hits, m.misses, m.evictions, m.expirations, m.invalidations, m.preloads,
		m.transformDuration, m.items, m.memoryBytes,
	} {
		if err := registerer.Register(collector); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegistered) {
				return fmt.Errorf("cache metrics are already registered, use a distinct cache name: %w", err)
			}
			return fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}
	return nil
}
