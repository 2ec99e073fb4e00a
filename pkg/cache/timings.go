package cache

import (
	"sync"
	"time"
)

// maxTimings bounds the number of timings kept by timingLog.
const maxTimings = 1_000

// Timing is the latency of a single GetOrCompute call.
type Timing struct {
	Operation string        `json:"operation"`
	CacheHit  bool          `json:"cache_hit"`
	Duration  time.Duration `json:"duration"`
}

// timingLog is a ring of the most recent timings.
type timingLog struct {
	mu      sync.Mutex
	timings []Timing
	next    int // Slot of the next write once the ring is full.
}

func (l *timingLog) record(timing Timing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timings) < maxTimings {
		l.timings = append(l.timings, timing)
		return
	}
	l.timings[l.next] = timing
	l.next = (l.next + 1) % maxTimings
}

// snapshot returns the timings, oldest first.
func (l *timingLog) snapshot() []Timing {
	l.mu.Lock()
	defer l.mu.Unlock()
	timings := make([]Timing, 0, len(l.timings))
	timings = append(timings, l.timings[l.next:]...)
	return append(timings, l.timings[:l.next]...)
}
