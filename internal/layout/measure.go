package layout

import (
	"fmt"
	"image"
	_ "image/gif"  // Import for image format support
	_ "image/jpeg" // Import for image format support
	_ "image/png"  // Import for image format support
	"io"

	_ "golang.org/x/image/bmp"  // Import for image format support
	_ "golang.org/x/image/tiff" // Import for image format support
	_ "golang.org/x/image/webp" // Import for image format support
)

// Dimensions are the pixel dimensions of a decoded asset
type Dimensions struct {
	Width  int
	Height int
	Format string
}

// Measure reads only the image header from r and returns its pixel dimensions
func Measure(r io.Reader) (Dimensions, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
