// Eviction Policy:
// Three triggers keep the cache bounded: the item ceiling, the memory ceiling and per-entry TTLs. When an insert would
// break a ceiling, expired entries are dropped first (tallied as expirations) and then the least recently used
// entries are dropped until the incoming entry fits (tallied as evictions). Entries that were never read keep their
// insertion order, so the oldest insert goes first.

package cache

import (
	"time"

	"github.com/nobletooth/pixcache/pkg/utils"
)

// overBudget reports whether inserting `incomingBytes` would break either ceiling. Callers hold the lock.
func (s *store) overBudget(incomingBytes int64) bool {
	return len(s.entries) >= s.config.MaxItems || s.memoryBytes+incomingBytes > s.config.MaxMemoryBytes
}

// makeRoom frees space for an entry of `incomingBytes`. Callers hold the lock and have already checked that the entry
// fits into an empty cache.
func (s *store) makeRoom(incomingBytes int64, now time.Time) (expirations, evictions int) {
	if !s.overBudget(incomingBytes) {
		return 0, 0
	}
	expirations = s.dropExpired(now)
	for s.overBudget(incomingBytes) {
		lru := s.recency.Front()
		if lru == nil {
			utils.RaiseInvariant("cache", "unfit_entry", "Empty cache cannot fit the incoming entry.",
				"incomingBytes", incomingBytes, "maxMemoryBytes", s.config.MaxMemoryBytes)
			break
		}
		s.removeNode(lru)
		evictions++
	}
	return expirations, evictions
}

// dropExpired removes every entry past its deadline. Callers hold the lock.
func (s *store) dropExpired(now time.Time) int {
	expired := 0
	for node := s.recency.Front(); node != nil; {
		next := node.Next()
		if node.Value.expired(now) {
			s.removeNode(node)
			expired++
		}
		node = next
	}
	return expired
}

// purgeExpired removes every expired entry. Removals count as expirations.
func (s *store) purgeExpired() (int, error) {
	var expired int
	err := s.locked(func() { expired = s.dropExpired(s.clock.Now()) })
	if err != nil {
		return 0, err
	}
	s.stats.expired(expired)
	return expired, nil
}

// pruneByAge removes entries created more than `maxAge` ago. Removals count as evictions since the entries were still
// valid.
func (s *store) pruneByAge(maxAge time.Duration) (int, error) {
	pruned, err := s.removeWhere(func(entry *Entry, now time.Time) bool {
		return now.Sub(entry.CreatedAt) > maxAge
	})
	if err != nil {
		return 0, err
	}
	s.stats.evicted(pruned)
	return pruned, nil
}

// invalidateWhere removes entries whose key matches `matches`. Removals count as invalidations.
func (s *store) invalidateWhere(matches func(key string) bool) (int, error) {
	invalidated, err := s.removeWhere(func(entry *Entry, _ time.Time) bool { return matches(entry.Key) })
	if err != nil {
		return 0, err
	}
	s.stats.invalidated(invalidated)
	return invalidated, nil
}
