package cache

import (
	"image"
	"time"
)

// NoExpiration disables the TTL of an entry when passed to PutWithTTL or used as Config.DefaultTTL.
const NoExpiration time.Duration = -1

// Entry is a single cached transform result. The image is shared with every reader and must not be mutated.
type Entry struct {
	Key          string
	Image        image.Image
	SizeBytes    int64
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    time.Time // Zero means the entry never expires.
}

// expired reports whether the entry is past its deadline at `now`. An entry expires at exactly ExpiresAt.
func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// info returns the listing view of the entry, which never includes the pixels.
func (e *Entry) info() EntryInfo {
	return EntryInfo{
		Key:          e.Key,
		SizeBytes:    e.SizeBytes,
		CreatedAt:    e.CreatedAt,
		LastAccessed: e.LastAccessed,
		ExpiresAt:    e.ExpiresAt,
	}
}

// EntryInfo describes an entry for diagnostics.
type EntryInfo struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// bytesPerPixel returns the in-memory pixel width of the concrete image type. Unknown types are charged as RGBA.
func bytesPerPixel(img image.Image) int64 {
	switch img.(type) {
	case *image.Gray, *image.Alpha, *image.Paletted:
		return 1
	case *image.Gray16, *image.Alpha16:
		return 2
	case *image.YCbCr:
		return 3
	case *image.RGBA64, *image.NRGBA64:
		return 8
	default: // RGBA, NRGBA, CMYK and anything else.
		return 4
	}
}

// EstimateSize returns the number of bytes an image is charged against the memory budget.
func EstimateSize(img image.Image) int64 {
	if img == nil {
		return 0
	}
	bounds := img.Bounds()
	return int64(bounds.Dx()) * int64(bounds.Dy()) * bytesPerPixel(img)
}

// expiryFor returns the deadline of an entry created at `now` with `ttl`. Negative TTLs never expire.
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl < 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
