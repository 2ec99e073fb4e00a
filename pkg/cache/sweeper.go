package cache

import (
	"context"
	"time"

	"github.com/nobletooth/pixcache/pkg/utils"
)

// StartSweeper purges expired entries every `interval` in the background until `ctx` is done or the cache is
// closed. Expired entries are dropped lazily anyway; sweeping only returns their memory sooner.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		c.logger.Info("Sweeper disabled.", "interval", interval)
		return
	}
	ticker := c.clock.NewTicker(interval)
	c.sweepers.Add(1)
	go func() {
		defer c.sweepers.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.Chan():
				purged, err := c.PurgeExpired()
				if err != nil {
					if IsFatal(err) {
						utils.RaiseInvariant("cache", "sweeper_poisoned", "Sweeper stopped on a poisoned cache.",
							"err", err)
						return
					}
					c.logger.Warn("Failed to purge expired entries.", "err", err)
					continue
				}
				if purged > 0 {
					c.logger.Debug("Purged expired entries.", "purged", purged)
				}
			}
		}
	}()
}
