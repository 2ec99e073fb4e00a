package fingerprint

import (
	"image"
	"image/color"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newGradient returns a width×height RGBA image where every pixel is distinct.
func newGradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestKey_Format(t *testing.T) {
	img := newGradient(16, 9)
	assert.Regexp(t, regexp.MustCompile(`^bc_-20_10_16x9_[0-9a-f]+$`), Key(img, "bc", -20, 10))
	assert.Regexp(t, regexp.MustCompile(`^exposure_5_16x9_[0-9a-f]+$`), Key(img, "exposure", 5))
	assert.Regexp(t, regexp.MustCompile(`^sharpen_16x9_[0-9a-f]+$`), Key(img, "sharpen"))
}

func TestKey_Deterministic(t *testing.T) {
	img := newGradient(32, 32)
	assert.Equal(t, Key(img, "bc", 1, 2), Key(img, "bc", 1, 2))
	assert.Equal(t, Key(img, "bc", 1, 2), Key(newGradient(32, 32), "bc", 1, 2), "Equal pixels give equal keys")
}

func TestKey_Sensitivity(t *testing.T) {
	img := newGradient(32, 32)
	base := Key(img, "bc", 1, 2)
	for _, testCase := range []struct {
		name string
		key  string
	}{
		{name: "param_order", key: Key(img, "bc", 2, 1)},
		{name: "param_value", key: Key(img, "bc", 1, 3)},
		{name: "extra_param", key: Key(img, "bc", 1, 2, 0)},
		{name: "operation", key: Key(img, "vibrance", 1, 2)},
		{name: "dimensions", key: Key(newGradient(32, 31), "bc", 1, 2)},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.NotEqual(t, base, testCase.key)
		})
	}
}

func TestKey_SampledPixelChangesKey(t *testing.T) {
	img := newGradient(20, 20)
	before := Key(img, "bc", 0, 0)
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4}) // Offset 0 is always sampled.
	assert.NotEqual(t, before, Key(img, "bc", 0, 0))
}

func TestKey_UnsampledPixelCollides(t *testing.T) {
	// 400 pixels with a sample of 100 hashes every 4th pixel; offset 1 is never looked at.
	img := newGradient(20, 20)
	before, beforeFull := Key(img, "bc", 0, 0), KeyFull(img, "bc", 0, 0)
	img.SetRGBA(1, 0, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	assert.Equal(t, before, Key(img, "bc", 0, 0), "Sampled keys trade exactness for speed")
	assert.NotEqual(t, beforeFull, KeyFull(img, "bc", 0, 0), "Full keys see every pixel")
}

func TestKey_NonZeroOrigin(t *testing.T) {
	img := newGradient(40, 40).SubImage(image.Rect(10, 10, 30, 30))
	assert.Regexp(t, regexp.MustCompile(`^bc_0_0_20x20_[0-9a-f]+$`), Key(img, "bc", 0, 0))
}

func TestKey_EmptyImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))
	assert.Regexp(t, regexp.MustCompile(`^bc_0x0_[0-9a-f]+$`), Key(img, "bc"))
}

func TestSampleStep(t *testing.T) {
	for _, testCase := range []struct {
		name       string
		pixelCount int
		sampleSize int
		count      int
		step       int
	}{
		{name: "empty", pixelCount: 0, sampleSize: 100, count: 0, step: 0},
		{name: "fewer_pixels_than_sample", pixelCount: 3, sampleSize: 100, count: 3, step: 1},
		{name: "evenly_spaced", pixelCount: 10, sampleSize: 5, count: 5, step: 2},
		{name: "uneven_division", pixelCount: 10, sampleSize: 3, count: 3, step: 3},
		{name: "full", pixelCount: 4, sampleSize: 0, count: 4, step: 1},
		{name: "full_hd", pixelCount: 1920 * 1080, sampleSize: SampleSize, count: SampleSize, step: 20736},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			count, step := sampleStep(testCase.pixelCount, testCase.sampleSize)
			assert.Equal(t, testCase.count, count)
			assert.Equal(t, testCase.step, step)
		})
	}
}

// opaqueImage hides the concrete image type so keys are derived through At.
type opaqueImage struct{ image.Image }

func TestKey_DirectPixelReadsMatchAt(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(3, 2, 19, 14))
	for y := nrgba.Rect.Min.Y; y < nrgba.Rect.Max.Y; y++ {
		for x := nrgba.Rect.Min.X; x < nrgba.Rect.Max.X; x++ {
			nrgba.SetNRGBA(x, y, color.NRGBA{R: uint8(7 * x), G: uint8(5 * y), B: uint8(x * y), A: uint8(16 * x)})
		}
	}
	for _, testCase := range []struct {
		name string
		img  image.Image
	}{
		{name: "rgba", img: newGradient(17, 11)},
		{name: "rgba_sub_image", img: newGradient(40, 40).SubImage(image.Rect(5, 7, 33, 29))},
		{name: "nrgba_translucent", img: nrgba},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, KeyFull(opaqueImage{testCase.img}, "bc", 1, 2), KeyFull(testCase.img, "bc", 1, 2))
			assert.Equal(t, Key(opaqueImage{testCase.img}, "bc", 1, 2), Key(testCase.img, "bc", 1, 2))
		})
	}
}

func TestKeyFull_AllocationsDoNotGrowWithImage(t *testing.T) {
	for _, testCase := range []struct {
		name string
		img  image.Image
	}{
		{name: "rgba", img: image.NewRGBA(image.Rect(0, 0, 512, 512))},
		{name: "nrgba", img: image.NewNRGBA(image.Rect(0, 0, 512, 512))},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			allocs := testing.AllocsPerRun(5, func() { _ = KeyFull(testCase.img, "bc", -20, 10) })
			assert.LessOrEqual(t, allocs, float64(16), "Key derivation must not allocate per pixel")
		})
	}
}

func TestKeyWithSample(t *testing.T) {
	img := newGradient(8, 8)
	assert.Equal(t, KeyFull(img, "bc", 1), KeyWithSample(img, 0, "bc", 1))
	assert.Equal(t, KeyFull(img, "bc", 1), KeyWithSample(img, 64, "bc", 1))
	assert.Equal(t, Key(img, "bc", 1), KeyWithSample(img, 1000, "bc", 1), "Samples larger than the image are clamped")
}
