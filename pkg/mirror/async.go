package mirror

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nobletooth/pixcache/pkg/utils"
)

// DefaultQueueSize is the number of pending requests an Async holds before dropping new ones.
const DefaultQueueSize = 64

type request struct {
	action Action
	path   string
}

// Async forwards requests to another Synchronizer from a single background worker. Enqueueing never blocks: when the
// queue is full the request is dropped and counted. Failures of the wrapped Synchronizer are logged, never returned.
type Async struct {
	inner  Synchronizer
	queue  chan request
	logger *slog.Logger

	mu     sync.RWMutex // Guards closed against concurrent sends on queue.
	closed bool
	done   chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

var _ Synchronizer = (*Async)(nil)

// NewAsync starts a worker forwarding to `inner`. Non-positive `queueSize` uses DefaultQueueSize.
func NewAsync(inner Synchronizer, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Async{
		inner:  inner,
		queue:  make(chan request, queueSize),
		logger: utils.ModuleLogger("mirror"),
		done:   make(chan struct{}),
	}
	go a.work()
	return a
}

// Invalidate enqueues an invalidation of `path`. It always returns nil.
func (a *Async) Invalidate(_ context.Context, path string) error {
	a.enqueue(request{action: ActionInvalidate, path: path})
	return nil
}

// Preload enqueues a preload of `path`. It always returns nil.
func (a *Async) Preload(_ context.Context, path string) error {
	a.enqueue(request{action: ActionPreload, path: path})
	return nil
}

func (a *Async) enqueue(req request) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.closed {
		select {
		case a.queue <- req:
			return
		default:
		}
	}
	a.dropped.Add(1)
	droppedRequests.WithLabelValues(string(req.action)).Inc()
	a.logger.Warn("Dropping mirror request.", "action", req.action, "path", req.path, "closed", a.closed)
}

func (a *Async) work() {
	defer close(a.done)
	for req := range a.queue {
		var err error
		switch req.action {
		case ActionInvalidate:
			err = a.inner.Invalidate(context.Background(), req.path)
		case ActionPreload:
			err = a.inner.Preload(context.Background(), req.path)
		default:
			utils.RaiseInvariant("mirror", "unknown_action", "Unknown mirror action.", "action", req.action)
			continue
		}
		if err != nil {
			a.failed.Add(1)
			failedRequests.WithLabelValues(string(req.action)).Inc()
			a.logger.Warn("Mirror request failed.", "action", req.action, "path", req.path, "err", err)
		}
	}
}

// Dropped returns the number of requests dropped so far.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Failed returns the number of forwarded requests that failed so far.
func (a *Async) Failed() int64 {
	return a.failed.Load()
}

// Close stops accepting requests and waits for the queued ones to finish. It is safe to call more than once.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
