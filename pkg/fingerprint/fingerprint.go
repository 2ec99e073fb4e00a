// Package fingerprint derives cache keys for image-transform results.
//
// A key names the operation, its parameters and the image dimensions in plain text and ends with a hash over
// the dimensions, a sparse pixel sample, the operation and the parameters:
//
//	bc_-20_10_1920x1080_9f3c2a41d07be6e5
//
// Only SampleSize evenly spaced pixels are hashed, so two images with equal dimensions that agree on every
// sampled pixel share a key. Callers that cannot tolerate that use KeyFull, which hashes every pixel.
package fingerprint

import (
	"encoding/binary"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/nobletooth/pixcache/pkg/utils"
)

// SampleSize is the number of pixels hashed by Key.
const SampleSize = 100

// Key returns the sampled fingerprint of applying `operation` with `params` to `img`.
func Key(img image.Image, operation string, params ...int) string {
	return derive(img, operation, params, SampleSize)
}

// KeyFull is like Key but hashes every pixel of the image. It costs a full pass over the pixels.
func KeyFull(img image.Image, operation string, params ...int) string {
	return derive(img, operation, params, 0 /*sampleSize*/)
}

// KeyWithSample is like Key with a custom sample size; a non-positive `sampleSize` hashes every pixel.
func KeyWithSample(img image.Image, sampleSize int, operation string, params ...int) string {
	return derive(img, operation, params, sampleSize)
}

func derive(img image.Image, operation string, params []int, sampleSize int) string {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	digest := xxhash.New()
	var buf [8]byte
	writeUint64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = digest.Write(buf[:]) // Digest writes never fail.
	}

	writeUint64(uint64(width))
	writeUint64(uint64(height))
	count, step := sampleStep(width*height, sampleSize)
	pixel := pixelReader(img)
	for i := range count {
		offset := i * step
		writeUint64(pixel(bounds.Min.X+offset%width, bounds.Min.Y+offset/width))
	}
	// Length prefixes keep ("ab", [1]) and ("a", [...]) from feeding the digest the same bytes.
	writeUint64(uint64(len(operation)))
	_, _ = digest.WriteString(operation)
	writeUint64(uint64(len(params)))
	for _, param := range params {
		writeUint64(uint64(int64(param)))
	}

	var key strings.Builder
	key.WriteString(operation)
	for _, param := range params {
		key.WriteByte('_')
		key.WriteString(strconv.Itoa(param))
	}
	key.WriteByte('_')
	key.WriteString(strconv.Itoa(width))
	key.WriteByte('x')
	key.WriteString(strconv.Itoa(height))
	key.WriteByte('_')
	key.WriteString(strconv.FormatUint(digest.Sum64(), 16))
	return key.String()
}

func packRGBA(r, g, b, a uint32) uint64 {
	return uint64(r)<<48 | uint64(g)<<32 | uint64(b)<<16 | uint64(a)
}

// pixelReader returns a reader of 16-bit premultiplied pixel values. RGBA and NRGBA images are read straight from
// their pixel buffers; other images go through At, which allocates a color per pixel.
func pixelReader(img image.Image) func(x, y int) uint64 {
	switch src := img.(type) {
	case *image.RGBA:
		return func(x, y int) uint64 {
			p := src.Pix[src.PixOffset(x, y):]
			return packRGBA(color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}.RGBA())
		}
	case *image.NRGBA:
		return func(x, y int) uint64 {
			p := src.Pix[src.PixOffset(x, y):]
			return packRGBA(color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}.RGBA())
		}
	default:
		return func(x, y int) uint64 { return packRGBA(img.At(x, y).RGBA()) }
	}
}

// sampleStep spreads at most `sampleSize` row-major samples evenly over `pixelCount` pixels: sample i sits at offset
// i*step. A non-positive sample size selects every pixel.
func sampleStep(pixelCount, sampleSize int) (count, step int) {
	if pixelCount <= 0 {
		if pixelCount < 0 {
			utils.RaiseInvariant("fingerprint", "negative_pixel_count",
				"Image bounds produced a negative pixel count.", "pixelCount", pixelCount)
		}
		return 0, 0
	}
	if sampleSize <= 0 || sampleSize > pixelCount {
		sampleSize = pixelCount
	}
	return sampleSize, pixelCount / sampleSize
}
