// Package cache keeps the results of deterministic image transforms in memory so that the same transform on the
// same image is computed once. The cache is bounded by an item ceiling, a memory ceiling and per-entry TTLs, and
// keeps hit, miss, eviction and expiration statistics that stay accurate under concurrent use.
//
// A Cache is built explicitly with New and is safe for concurrent use. The host application owns its lifetime.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"v.io/v23/glob"

	"github.com/nobletooth/pixcache/pkg/fingerprint"
	"github.com/nobletooth/pixcache/pkg/mirror"
	"github.com/nobletooth/pixcache/pkg/utils"
)

// Transform computes `operation` with `params` on `img`. It must be deterministic and must not mutate `img`.
type Transform func(img image.Image, operation string, params []int) (image.Image, error)

type options struct {
	clock        clockwork.Clock
	transform    Transform
	synchronizer mirror.Synchronizer
	registerer   prometheus.Registerer
	metricsName  string
	hitWeight    *float64
	logger       *slog.Logger
}

// Option customizes New.
type Option func(*options)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithTransform sets the transform used by GetOrCompute and PreloadCommonOperations.
func WithTransform(transform Transform) Option {
	return func(o *options) { o.transform = transform }
}

// WithSynchronizer mirrors invalidations and preloads to an external cache. Synchronizers other than mirror.Async and
// mirror.NoOp are wrapped in a mirror.Async so that mirroring never blocks the caller.
func WithSynchronizer(synchronizer mirror.Synchronizer) Option {
	return func(o *options) { o.synchronizer = synchronizer }
}

// WithMetrics exports the cache statistics on `registerer` with the const label cache=`name`.
func WithMetrics(registerer prometheus.Registerer, name string) Option {
	return func(o *options) {
		o.registerer = registerer
		o.metricsName = name
	}
}

// WithEfficiencyWeight pins the hit ratio weight of the efficiency score. It overrides Config.HitWeight in New and in
// every later Configure.
func WithEfficiencyWeight(weight float64) Option {
	return func(o *options) { o.hitWeight = &weight }
}

// WithLogger replaces the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Cache is a bounded, concurrency-safe cache of transform results keyed by fingerprint.Key.
type Cache struct {
	store        *store
	stats        *recorder
	series       *TimeSeries
	timings      timingLog
	metrics      *cacheMetrics // Nil when metrics are disabled.
	clock        clockwork.Clock
	createdAt    time.Time
	transform    Transform
	synchronizer mirror.Synchronizer
	logger       *slog.Logger
	hitWeight    *float64 // Pinned by WithEfficiencyWeight.

	done      chan struct{} // Closed by Close to stop sweepers.
	closeOnce sync.Once
	sweepers  sync.WaitGroup
}

// New returns an empty cache configured by `config`.
func New(config Config, opts ...Option) (*Cache, error) {
	o := &options{clock: clockwork.NewRealClock(), logger: utils.ModuleLogger("cache")}
	for _, opt := range opts {
		opt(o)
	}
	if o.hitWeight != nil {
		config.HitWeight = *o.hitWeight
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	now := o.clock.Now()
	stats := &recorder{}
	c := &Cache{
		stats:     stats,
		store:     newStore(config, o.clock, stats),
		series:    NewTimeSeries(config.StatsInterval, config.StatsBuckets, now),
		clock:     o.clock,
		createdAt: now,
		transform: o.transform,
		logger:    o.logger,
		hitWeight: o.hitWeight,
		done:      make(chan struct{}),
	}
	if o.registerer != nil {
		c.metrics = newCacheMetrics(o.metricsName, c.store)
		if err := c.metrics.register(o.registerer); err != nil {
			return nil, err
		}
		stats.metrics = c.metrics
	}
	switch synchronizer := o.synchronizer.(type) {
	case nil, mirror.NoOp:
		c.synchronizer = mirror.NoOp{}
	case *mirror.Async:
		c.synchronizer = synchronizer
	default:
		c.synchronizer = mirror.NewAsync(synchronizer, mirror.DefaultQueueSize)
	}
	return c, nil
}

// Close stops the sweepers and drains the mirror queue. The cache contents stay readable.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.sweepers.Wait()
		if closer, ok := c.synchronizer.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

// Configure replaces the config, keeping a weight pinned by WithEfficiencyWeight. Lowered ceilings are enforced by
// the next Put; existing entries keep their TTL.
func (c *Cache) Configure(config Config) error {
	if c.hitWeight != nil && config.HitWeight != *c.hitWeight {
		c.logger.Warn("Hit weight is pinned, ignoring the configured one.", "pinned", *c.hitWeight,
			"configured", config.HitWeight)
		config.HitWeight = *c.hitWeight
	}
	if err := config.Validate(); err != nil {
		return err
	}
	previous := c.store.snapshot().config
	if err := c.store.setConfig(config); err != nil {
		return err
	}
	if previous.StatsInterval != config.StatsInterval || previous.StatsBuckets != config.StatsBuckets {
		c.series.Resize(config.StatsInterval, config.StatsBuckets, c.clock.Now())
	}
	c.logger.Info("Cache reconfigured.", "maxItems", config.MaxItems, "maxMemoryBytes", config.MaxMemoryBytes,
		"defaultTTL", config.DefaultTTL)
	return nil
}

// Config returns the active config.
func (c *Cache) Config() Config {
	return c.store.snapshot().config
}

// Get returns the image cached under `key` and marks it recently used. It returns an error wrapping ErrNotFound when
// the key is absent or expired. The returned image is shared and must not be mutated.
func (c *Cache) Get(key string) (image.Image, error) {
	return c.store.get(key)
}

// Put caches `img` under `key` with the default TTL, evicting entries as needed. An image larger than the memory
// ceiling is rejected with ErrCapacity and leaves the cache unchanged.
func (c *Cache) Put(key string, img image.Image) error {
	return c.store.put(key, img, nil)
}

// PutWithTTL is Put with an explicit TTL. NoExpiration disables expiry; a zero TTL expires at the next clock tick.
func (c *Cache) PutWithTTL(key string, img image.Image, ttl time.Duration) error {
	return c.store.put(key, img, &ttl)
}

// Contains reports whether a live entry exists for `key` without affecting recency or statistics.
func (c *Cache) Contains(key string) (bool, error) {
	return c.store.contains(key)
}

// Invalidate drops the entry under `key` and reports whether it existed.
func (c *Cache) Invalidate(key string) (bool, error) {
	removed, err := c.store.remove(key)
	if err != nil {
		return false, err
	}
	if removed {
		c.stats.invalidated(1)
	}
	return removed, nil
}

// InvalidateByPrefix drops every entry whose key starts with `prefix`.
func (c *Cache) InvalidateByPrefix(prefix string) (int, error) {
	return c.store.invalidateWhere(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// InvalidateByPattern drops every entry whose key contains a match of the regular expression `pattern`.
func (c *Cache) InvalidateByPattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPattern, err)
	}
	return c.store.invalidateWhere(re.MatchString)
}

// InvalidateByGlob drops every entry whose whole key matches the glob `pattern`, e.g. "bc_*_640x480_*".
func (c *Cache) InvalidateByGlob(pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("%w: empty glob", ErrPattern)
	}
	parsed, err := glob.Parse(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPattern, err)
	}
	head := parsed.Head()
	return c.store.invalidateWhere(head.Match)
}

// Clear drops every entry and returns how many there were. Cleared entries are not counted as invalidations and the
// statistics are kept.
func (c *Cache) Clear() (int, error) {
	cleared, err := c.store.clear()
	if err != nil {
		return 0, err
	}
	c.logger.Info("Cache cleared.", "entries", cleared)
	return cleared, nil
}

// PruneByAge drops entries created more than `maxAge` ago. They count as evictions.
func (c *Cache) PruneByAge(maxAge time.Duration) (int, error) {
	return c.store.pruneByAge(maxAge)
}

// PurgeExpired drops every expired entry. They count as expirations.
func (c *Cache) PurgeExpired() (int, error) {
	return c.store.purgeExpired()
}

// GetOrCompute returns the cached result of `operation` with `params` on `img`, computing and caching it on a miss.
// When the result is too large to cache it is still returned, together with an error wrapping ErrCapacity.
func (c *Cache) GetOrCompute(img image.Image, operation string, params ...int) (image.Image, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	start := c.clock.Now()
	key := fingerprint.Key(img, operation, params...)
	cached, err := c.Get(key)
	if err == nil {
		c.timings.record(Timing{Operation: operation, CacheHit: true, Duration: c.clock.Since(start)})
		return cached, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if c.transform == nil {
		return nil, ErrNoTransform
	}

	result, err := c.transform(img, operation, params)
	elapsed := c.clock.Since(start)
	c.timings.record(Timing{Operation: operation, CacheHit: false, Duration: elapsed})
	if c.metrics != nil {
		c.metrics.transformDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s%v: %w", operation, params, err)
	}
	if err := c.Put(key, result); err != nil {
		if errors.Is(err, ErrCapacity) {
			return result, err
		}
		return nil, err
	}
	return result, nil
}

// EntriesByPrefix lists entries whose key starts with `prefix`, least recently used first, skipping `offset` matches
// and returning at most `limit` of them. A non-positive `limit` returns every remaining match.
func (c *Cache) EntriesByPrefix(prefix string, limit, offset int) ([]EntryInfo, error) {
	return c.store.entriesByPrefix(prefix, limit, offset)
}

// AnalyzeUsage counts entries per operation prefix, e.g. {"bc_": 9}.
func (c *Cache) AnalyzeUsage() (map[string]int, error) {
	return c.store.usageByPrefix()
}

// Len returns the number of entries, expired ones included until they are dropped.
func (c *Cache) Len() int {
	return c.store.snapshot().items
}

// MemoryUsage returns the number of pixel bytes held by the cache.
func (c *Cache) MemoryUsage() int64 {
	return c.store.snapshot().memoryBytes
}

// Stats returns the current statistics and records them into the time-series.
func (c *Cache) Stats() Stats {
	now := c.clock.Now()
	stats := c.stats.summarize(c.store.snapshot(), now.Sub(c.createdAt))
	c.series.Update(now, stats.Hits, stats.Misses, stats.CurrentMemoryBytes)
	return stats
}

// ResetStats zeroes the counters and the time-series. The memory high-water mark restarts at the current usage.
func (c *Cache) ResetStats() error {
	if err := c.store.resetPeak(); err != nil {
		return err
	}
	c.stats.reset()
	c.series.Reset(c.clock.Now())
	return nil
}

// ExportStats returns the statistics as indented JSON.
func (c *Cache) ExportStats() (string, error) {
	encoded, err := json.MarshalIndent(c.Stats(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode stats: %w", err)
	}
	return string(encoded), nil
}

// TimeSeries returns the chart view of the statistics time-series.
func (c *Cache) TimeSeries() Visualization {
	return c.series.Visualization()
}

// Timings returns the latencies of the most recent GetOrCompute calls, oldest first.
func (c *Cache) Timings() []Timing {
	return c.timings.snapshot()
}

// MirrorInvalidate asks the external cache to drop results derived from the image file at `path`. Failures are
// logged and never returned.
func (c *Cache) MirrorInvalidate(path string) {
	if err := c.synchronizer.Invalidate(context.Background(), path); err != nil {
		c.logger.Warn("Failed to mirror invalidation.", "path", path, "err", err)
	}
}

// MirrorPreload asks the external cache to warm itself with the image file at `path`. Failures are logged and never
// returned.
func (c *Cache) MirrorPreload(path string) {
	if err := c.synchronizer.Preload(context.Background(), path); err != nil {
		c.logger.Warn("Failed to mirror preload.", "path", path, "err", err)
	}
}
