// The store owns the entry table, the recency list and the memory accounting. A single mutex guards all of them and
// the active config; statistics are atomics and are tallied after the mutex is released.
//
// Go mutexes are not poisoned by panics, so the store tracks that itself: a panic escaping a critical section marks
// the store poisoned and every later operation fails with ErrPoisoned instead of reading half-updated state.

package cache

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nobletooth/pixcache/pkg/utils"
)

type store struct {
	mu       sync.Mutex
	poisoned atomic.Bool
	clock    clockwork.Clock
	stats    *recorder

	config          Config
	entries         map[string]*linkedListNode[*Entry] // Key is in the map iff its node is in `recency`.
	recency         linkedList[*Entry]                 // Front is the least recently used entry.
	memoryBytes     int64                              // Sum of SizeBytes over `entries`.
	peakMemoryBytes int64                              // High-water mark of memoryBytes.
}

func newStore(config Config, clock clockwork.Clock, stats *recorder) *store {
	return &store{
		clock:   clock,
		stats:   stats,
		config:  config,
		entries: make(map[string]*linkedListNode[*Entry]),
	}
}

// locked runs `fn` inside the critical section.
func (s *store) locked(fn func()) error {
	if s.poisoned.Load() {
		return ErrPoisoned
	}
	s.mu.Lock()
	completed := false
	defer func() {
		if !completed {
			s.poisoned.Store(true)
		}
		s.mu.Unlock()
	}()
	if s.poisoned.Load() { // Poisoned while waiting for the lock.
		completed = true
		return ErrPoisoned
	}
	fn()
	completed = true
	return nil
}

// removeNode detaches an entry from the table, the recency list and the memory accounting. Callers hold the lock.
func (s *store) removeNode(node *linkedListNode[*Entry]) {
	delete(s.entries, node.Value.Key)
	s.recency.Remove(node)
	s.memoryBytes -= node.Value.SizeBytes
	if s.memoryBytes < 0 {
		utils.RaiseInvariant("cache", "negative_memory", "Memory counter went negative.",
			"key", node.Value.Key, "memoryBytes", s.memoryBytes)
		s.memoryBytes = 0
	}
}

// get returns the image stored under `key` and marks it as the most recently used entry. Expired entries are removed
// and reported as misses.
func (s *store) get(key string) (image.Image, error) {
	var (
		img     image.Image
		found   bool
		expired bool
	)
	err := s.locked(func() {
		node, ok := s.entries[key]
		if !ok {
			return
		}
		now := s.clock.Now()
		if node.Value.expired(now) {
			s.removeNode(node)
			expired = true
			return
		}
		node.Value.LastAccessed = now
		s.recency.MoveToBack(node)
		img, found = node.Value.Image, true
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.stats.expired(1)
	}
	if !found {
		s.stats.miss()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.stats.hit()
	return img, nil
}

// put stores `img` under `key`, replacing any previous entry. `ttl` of nil uses the configured default TTL.
func (s *store) put(key string, img image.Image, ttl *time.Duration) error {
	sizeBytes := EstimateSize(img)
	var (
		capacityErr            error
		expirations, evictions int
	)
	err := s.locked(func() {
		if sizeBytes > s.config.MaxMemoryBytes {
			capacityErr = fmt.Errorf("%w: %q needs %d bytes, limit is %d",
				ErrCapacity, key, sizeBytes, s.config.MaxMemoryBytes)
			return
		}
		now := s.clock.Now()
		if previous, ok := s.entries[key]; ok { // Replacement is not an eviction.
			s.removeNode(previous)
		}
		expirations, evictions = s.makeRoom(sizeBytes, now)

		entryTTL := s.config.DefaultTTL
		if ttl != nil {
			entryTTL = *ttl
		}
		s.entries[key] = s.recency.PushBack(&Entry{
			Key:          key,
			Image:        img,
			SizeBytes:    sizeBytes,
			CreatedAt:    now,
			LastAccessed: now,
			ExpiresAt:    expiryFor(now, entryTTL),
		})
		s.memoryBytes += sizeBytes
		s.peakMemoryBytes = max(s.peakMemoryBytes, s.memoryBytes)
	})
	if err != nil {
		return err
	}
	s.stats.expired(expirations)
	s.stats.evicted(evictions)
	return capacityErr
}

// contains reports whether a live entry exists for `key` without touching recency or statistics.
func (s *store) contains(key string) (bool, error) {
	var found bool
	err := s.locked(func() {
		node, ok := s.entries[key]
		found = ok && !node.Value.expired(s.clock.Now())
	})
	return found, err
}

// remove drops the entry stored under `key` and reports whether there was one.
func (s *store) remove(key string) (bool, error) {
	var removed bool
	err := s.locked(func() {
		if node, ok := s.entries[key]; ok {
			s.removeNode(node)
			removed = true
		}
	})
	return removed, err
}

// removeWhere drops every entry matching `shouldRemove` and returns how many were dropped.
func (s *store) removeWhere(shouldRemove func(entry *Entry, now time.Time) bool) (int, error) {
	var removed int
	err := s.locked(func() {
		now := s.clock.Now()
		for node := s.recency.Front(); node != nil; {
			next := node.Next()
			if shouldRemove(node.Value, now) {
				s.removeNode(node)
				removed++
			}
			node = next
		}
	})
	return removed, err
}

// clear drops every entry. The high-water mark is kept.
func (s *store) clear() (int, error) {
	var removed int
	err := s.locked(func() {
		removed = len(s.entries)
		clear(s.entries)
		s.recency.Init()
		s.memoryBytes = 0
	})
	return removed, err
}

// entriesByPrefix lists entries whose key starts with `prefix` from least to most recently used. A non-positive
// `limit` returns everything after `offset`.
func (s *store) entriesByPrefix(prefix string, limit, offset int) ([]EntryInfo, error) {
	var infos []EntryInfo
	err := s.locked(func() {
		skipped := 0
		for node := s.recency.Front(); node != nil; node = node.Next() {
			if !strings.HasPrefix(node.Value.Key, prefix) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(infos) >= limit {
				return
			}
			infos = append(infos, node.Value.info())
		}
	})
	return infos, err
}

// usageByPrefix counts entries by their key prefix up to and including the first underscore. Keys without an
// underscore have no operation prefix and are skipped.
func (s *store) usageByPrefix() (map[string]int, error) {
	usage := make(map[string]int)
	err := s.locked(func() {
		for key := range s.entries {
			if i := strings.IndexByte(key, '_'); i >= 0 {
				usage[key[:i+1]]++
			}
		}
	})
	return usage, err
}

// setConfig replaces the config. Ceilings are enforced on the next put.
func (s *store) setConfig(config Config) error {
	return s.locked(func() { s.config = config })
}

// resetPeak sets the high-water mark to the current usage.
func (s *store) resetPeak() error {
	return s.locked(func() { s.peakMemoryBytes = s.memoryBytes })
}

type storeSnapshot struct {
	items           int
	memoryBytes     int64
	peakMemoryBytes int64
	config          Config
}

// snapshot reads the accounting fields. It ignores poisoning since it only copies integers and serves diagnostics.
func (s *store) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSnapshot{
		items:           len(s.entries),
		memoryBytes:     s.memoryBytes,
		peakMemoryBytes: s.peakMemoryBytes,
		config:          s.config,
	}
}
