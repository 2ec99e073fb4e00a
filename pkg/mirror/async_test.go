package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSynchronizer records requests and optionally blocks or fails them.
type recordingSynchronizer struct {
	mu       sync.Mutex
	requests []string
	started  chan struct{} // Receives a value when a request starts, if set.
	release  chan struct{} // Requests wait for it to be closed, if set.
	err      error
}

func (r *recordingSynchronizer) handle(action Action, path string) error {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, string(action)+" "+path)
	return r.err
}

func (r *recordingSynchronizer) Invalidate(_ context.Context, path string) error {
	return r.handle(ActionInvalidate, path)
}

func (r *recordingSynchronizer) Preload(_ context.Context, path string) error {
	return r.handle(ActionPreload, path)
}

func (r *recordingSynchronizer) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func TestAsync_ForwardsInOrder(t *testing.T) {
	inner := &recordingSynchronizer{}
	async := NewAsync(inner, 0 /*queueSize*/)

	require.NoError(t, async.Preload(t.Context(), "/a.png"))
	require.NoError(t, async.Invalidate(t.Context(), "/a.png"))
	require.NoError(t, async.Preload(t.Context(), "/b.png"))
	require.NoError(t, async.Close())

	assert.Equal(t, []string{"preload /a.png", "invalidate /a.png", "preload /b.png"}, inner.all())
	assert.Zero(t, async.Dropped())
	assert.Zero(t, async.Failed())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	inner := &recordingSynchronizer{started: make(chan struct{}, 3), release: make(chan struct{})}
	async := NewAsync(inner, 1 /*queueSize*/)

	require.NoError(t, async.Preload(t.Context(), "/busy.png"))
	<-inner.started // The worker holds the first request.
	require.NoError(t, async.Preload(t.Context(), "/queued.png"))
	require.NoError(t, async.Preload(t.Context(), "/dropped.png"))
	assert.Equal(t, int64(1), async.Dropped())

	close(inner.release)
	require.NoError(t, async.Close())
	assert.Equal(t, []string{"preload /busy.png", "preload /queued.png"}, inner.all())
}

func TestAsync_FailuresAreNotReturned(t *testing.T) {
	inner := &recordingSynchronizer{err: errors.New("companion crashed")}
	async := NewAsync(inner, 4 /*queueSize*/)

	assert.NoError(t, async.Invalidate(t.Context(), "/a.png"))
	assert.NoError(t, async.Preload(t.Context(), "/a.png"))
	require.NoError(t, async.Close())

	assert.Equal(t, int64(2), async.Failed())
}

func TestAsync_Close(t *testing.T) {
	inner := &recordingSynchronizer{}
	async := NewAsync(inner, 4 /*queueSize*/)
	require.NoError(t, async.Close())
	require.NoError(t, async.Close(), "Close should be idempotent")

	assert.NoError(t, async.Preload(t.Context(), "/late.png"))
	assert.Equal(t, int64(1), async.Dropped(), "Requests after Close should be dropped")
	assert.Empty(t, inner.all())
}

func TestNoOp(t *testing.T) {
	var synchronizer Synchronizer = NoOp{}
	assert.NoError(t, synchronizer.Invalidate(t.Context(), "/a.png"))
	assert.NoError(t, synchronizer.Preload(t.Context(), "/a.png"))
}
