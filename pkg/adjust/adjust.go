// Package adjust holds reference image adjustments that plug into the cache as its transform. They are pure: the
// input image is never modified and the same input always gives the same output.
package adjust

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"maps"
	"slices"
	"sync"
)

var (
	// ErrUnknownOperation is returned by Registry.Apply for unregistered operation names.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrBadParams is returned when an adjustment gets the wrong number of params or out of range values.
	ErrBadParams = errors.New("bad operation params")
)

// Func applies an adjustment configured by `params` and returns a new image.
type Func func(img image.Image, params []int) (image.Image, error)

// Registry maps operation names, the first segment of cache keys, to adjustments.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry with the built-in adjustments.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("bc", BrightnessContrast)
	r.Register("gray", Grayscale)
	r.Register("invert", Invert)
	return r
}

// Register adds or replaces the adjustment called `name`.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Operations returns the registered operation names in sorted order.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.funcs))
}

// Apply runs the adjustment called `operation`. Its signature matches cache.Transform.
func (r *Registry) Apply(img image.Image, operation string, params []int) (image.Image, error) {
	r.mu.RLock()
	fn, ok := r.funcs[operation]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	return fn(img, params)
}

// mapChannels applies `fn` to every non-premultiplied 8-bit channel of `img` and keeps the alpha.
func mapChannels(img image.Image, fn func(r, g, b uint8) (uint8, uint8, uint8)) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.R, c.G, c.B = fn(c.R, c.G, c.B)
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

func clamp(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}

// BrightnessContrast shifts brightness by params[0] and scales contrast by params[1], both percentages in
// [-100, 100]. Contrast pivots around mid-gray.
func BrightnessContrast(img image.Image, params []int) (image.Image, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("%w: bc takes brightness and contrast, got %v", ErrBadParams, params)
	}
	brightness, contrast := params[0], params[1]
	if brightness < -100 || brightness > 100 || contrast < -100 || contrast > 100 {
		return nil, fmt.Errorf("%w: bc values must be within [-100, 100], got %v", ErrBadParams, params)
	}
	shift := brightness * 255 / 100
	adjust := func(v uint8) uint8 {
		return clamp((int(v)-128)*(100+contrast)/100 + 128 + shift)
	}
	return mapChannels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		return adjust(r), adjust(g), adjust(b)
	}), nil
}

// Grayscale converts to luma using the Rec. 601 weights. It takes no params.
func Grayscale(img image.Image, params []int) (image.Image, error) {
	if len(params) != 0 {
		return nil, fmt.Errorf("%w: gray takes no params, got %v", ErrBadParams, params)
	}
	return mapChannels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		y := clamp((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
		return y, y, y
	}), nil
}

// Invert replaces every channel by its complement. It takes no params.
func Invert(img image.Image, params []int) (image.Image, error) {
	if len(params) != 0 {
		return nil, fmt.Errorf("%w: invert takes no params, got %v", ErrBadParams, params)
	}
	return mapChannels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		return 255 - r, 255 - g, 255 - b
	}), nil
}
