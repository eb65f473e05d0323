package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// maxImageSize is the longest edge sent to the extraction service.
// Larger captures are downscaled before upload.
const maxImageSize = 1920

// PrepareImage validates that data decodes as an image and downscales it
// to fit within maxImageSize while keeping aspect ratio. Images that
// already fit are returned unchanged.
func PrepareImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxImageSize && height <= maxImageSize {
		return data, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxImageSize
		newHeight = int(float64(height) * float64(maxImageSize) / float64(width))
	} else {
		newHeight = maxImageSize
		newWidth = int(float64(width) * float64(maxImageSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
