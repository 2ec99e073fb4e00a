// Package mirror keeps an external cache, usually a companion process owned by the host application, in step with
// the in-process cache. Mirroring is best effort: it never blocks or fails a cache operation.
package mirror

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action names the request forwarded to the external cache.
type Action string

const (
	ActionInvalidate Action = "invalidate"
	ActionPreload    Action = "preload"
)

var (
	droppedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixcache_mirror_dropped_total",
		Help: "Total number of mirror requests dropped because the queue was full or closed.",
	}, []string{"action"})
	failedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixcache_mirror_failures_total",
		Help: "Total number of mirror requests the external cache failed to serve.",
	}, []string{"action"})
)

// Synchronizer forwards invalidations and preloads of an image file to an external cache.
type Synchronizer interface {
	// Invalidate asks the external cache to drop everything derived from the image at `path`.
	Invalidate(ctx context.Context, path string) error
	// Preload asks the external cache to warm itself with the image at `path`.
	Preload(ctx context.Context, path string) error
}

// NoOp is a Synchronizer without an external cache. It is used when mirroring is disabled.
type NoOp struct{}

var _ Synchronizer = NoOp{}

// Invalidate does nothing.
func (NoOp) Invalidate(context.Context, string) error { return nil }

// Preload does nothing.
func (NoOp) Preload(context.Context, string) error { return nil }
