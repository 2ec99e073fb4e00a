package cache

import (
	"fmt"
	"image"

	"github.com/nobletooth/pixcache/pkg/fingerprint"
)

// PreloadOperation is the transform warmed up by PreloadCommonOperations.
const PreloadOperation = "bc"

var (
	preloadBrightness = []int{-20, 0, 20}
	preloadContrast   = []int{-10, 0, 10}
)

// PreloadCommonOperations caches the brightness/contrast grid most editing sessions start with. Keys that are
// already cached are skipped without touching their recency. It returns the number of entries added; on failure the
// entries added so far stay cached and are counted.
func (c *Cache) PreloadCommonOperations(img image.Image) (int, error) {
	if c.transform == nil {
		return 0, ErrNoTransform
	}
	if img == nil {
		return 0, ErrNilImage
	}
	added := 0
	defer func() { c.stats.preloaded(added) }()
	for _, brightness := range preloadBrightness {
		for _, contrast := range preloadContrast {
			key := fingerprint.Key(img, PreloadOperation, brightness, contrast)
			present, err := c.store.contains(key)
			if err != nil {
				return added, err
			}
			if present {
				continue
			}
			params := []int{brightness, contrast}
			result, err := c.transform(img, PreloadOperation, params)
			if err != nil {
				return added, fmt.Errorf("failed to preload %s%v: %w", PreloadOperation, params, err)
			}
			if err := c.Put(key, result); err != nil {
				return added, err
			}
			added++
		}
	}
	c.logger.Debug("Preloaded common operations.", "added", added)
	return added, nil
}
