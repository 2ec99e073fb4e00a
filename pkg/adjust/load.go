package adjust

import (
	"fmt"
	"image"
	_ "image/gif" // Registers the GIF decoder.
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Load decodes the image file at `path`. PNG, JPEG and GIF files are supported.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = file.Close() }()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%s image %s has no pixels", format, path)
	}
	return img, nil
}
