package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nobletooth/pixcache/pkg/mirror"
)

// blockingSynchronizer records requests after `release` is closed and always fails.
type blockingSynchronizer struct {
	mu       sync.Mutex
	release  chan struct{}
	requests []string
}

func (b *blockingSynchronizer) record(request string) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, request)
	return errors.New("companion unavailable")
}

func (b *blockingSynchronizer) Invalidate(_ context.Context, path string) error {
	return b.record("invalidate " + path)
}

func (b *blockingSynchronizer) Preload(_ context.Context, path string) error {
	return b.record("preload " + path)
}

func TestCache_MirrorNeverBlocksOrFails(t *testing.T) {
	synchronizer := &blockingSynchronizer{release: make(chan struct{})}
	c, _ := newTestCache(t, 10, 1<<20, WithSynchronizer(synchronizer))
	_, wrapped := c.synchronizer.(*mirror.Async)
	require.True(t, wrapped, "Blocking synchronizers must be wrapped")

	c.MirrorPreload("/photos/a.png") // Returns although the synchronizer is blocked.
	c.MirrorInvalidate("/photos/a.png")

	close(synchronizer.release)
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"preload /photos/a.png", "invalidate /photos/a.png"}, synchronizer.requests)
}

func TestCache_MirrorDefaultsToNoOp(t *testing.T) {
	c, _ := newTestCache(t, 10, 1<<20)
	assert.Equal(t, mirror.NoOp{}, c.synchronizer)
	c.MirrorInvalidate("/photos/a.png")
	c.MirrorPreload("/photos/a.png")
}
