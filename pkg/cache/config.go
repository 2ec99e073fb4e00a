// The cache is sized by an item ceiling and a memory ceiling; whichever is hit first triggers eviction. The default
// values fit a desktop editor working on a handful of full resolution photos.

package cache

import (
	"flag"
	"fmt"
	"time"
)

var (
	maxItemsFlag = flag.Int("cache_max_items", 1_000,
		"The maximum number of transform results kept in the cache.")
	maxMemoryBytesFlag = flag.Int64("cache_max_memory_bytes", 500<<20, /*500 MiB*/
		"The maximum number of pixel bytes kept in the cache.")
	defaultTTLFlag = flag.Duration("cache_default_ttl", time.Hour,
		"The TTL of entries added without an explicit TTL; negative disables expiry.")
	statsIntervalFlag = flag.Duration("cache_stats_interval", time.Hour,
		"The width of a single hit/miss time-series bucket.")
	statsBucketsFlag = flag.Int("cache_stats_buckets", 24,
		"The number of hit/miss time-series buckets to retain.")
	hitWeightFlag = flag.Float64("cache_hit_weight", 0.7,
		"The weight of the hit ratio in the efficiency score; the rest goes to free memory.")
)

// Config holds the tunables of a Cache. It can be replaced at runtime through Cache.Configure.
type Config struct {
	MaxItems       int           `json:"max_items"`
	MaxMemoryBytes int64         `json:"max_memory_bytes"`
	DefaultTTL     time.Duration `json:"default_ttl"`    // Negative means entries never expire.
	StatsInterval  time.Duration `json:"stats_interval"` // Width of one time-series bucket.
	StatsBuckets   int           `json:"stats_buckets"`
	HitWeight      float64       `json:"hit_weight"` // In [0, 1].
}

// DefaultConfig returns the built-in defaults, ignoring flags.
func DefaultConfig() Config {
	return Config{
		MaxItems:       1_000,
		MaxMemoryBytes: 500 << 20,
		DefaultTTL:     time.Hour,
		StatsInterval:  time.Hour,
		StatsBuckets:   24,
		HitWeight:      0.7,
	}
}

// ConfigFromFlags returns the config described by the --cache_* flags.
func ConfigFromFlags() Config {
	return Config{
		MaxItems:       *maxItemsFlag,
		MaxMemoryBytes: *maxMemoryBytesFlag,
		DefaultTTL:     *defaultTTLFlag,
		StatsInterval:  *statsIntervalFlag,
		StatsBuckets:   *statsBucketsFlag,
		HitWeight:      *hitWeightFlag,
	}
}

// Validate returns an ErrInvalidConfig error describing the first bad field.
func (c Config) Validate() error {
	switch {
	case c.MaxItems < 1:
		return fmt.Errorf("%w: max items must be positive, got %d", ErrInvalidConfig, c.MaxItems)
	case c.MaxMemoryBytes < 1:
		return fmt.Errorf("%w: max memory bytes must be positive, got %d", ErrInvalidConfig, c.MaxMemoryBytes)
	case c.StatsInterval <= 0:
		return fmt.Errorf("%w: stats interval must be positive, got %s", ErrInvalidConfig, c.StatsInterval)
	case c.StatsBuckets < 1:
		return fmt.Errorf("%w: stats buckets must be positive, got %d", ErrInvalidConfig, c.StatsBuckets)
	case !(c.HitWeight >= 0 && c.HitWeight <= 1):
		return fmt.Errorf("%w: hit weight must be within [0, 1], got %v", ErrInvalidConfig, c.HitWeight)
	}
	return nil
}
