package cache

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent or its entry has expired.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCapacity is returned when a single entry is larger than the whole memory budget.
	ErrCapacity = errors.New("entry exceeds cache memory limit")
	// ErrPattern is returned for malformed regular expressions and globs.
	ErrPattern = errors.New("invalid key pattern")
	// ErrInvalidConfig is returned for configurations that fail Config.Validate.
	ErrInvalidConfig = errors.New("invalid cache config")
	// ErrNoTransform is returned by operations that need a transform when none was configured.
	ErrNoTransform = errors.New("no transform configured")
	// ErrNilImage is returned by operations that derive a key from a nil source image.
	ErrNilImage = errors.New("source image is nil")
	// ErrPoisoned is returned by every operation after a panic escaped a critical section. The entry table may be
	// inconsistent, so the cache refuses to serve from it.
	ErrPoisoned = errors.New("cache state poisoned by a panic in a critical section")
)

// IsFatal reports whether `err` means the cache can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPoisoned)
}
