package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareImage_SmallPassthrough(t *testing.T) {
	data := makeJPEG(t, 640, 480)

	out, err := PrepareImage(data)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("small image should pass through unchanged")
	}
}

func TestPrepareImage_Downscales(t *testing.T) {
	data := makeJPEG(t, 4000, 2000)

	out, err := PrepareImage(data)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != maxImageSize {
		t.Errorf("expected width %d, got %d", maxImageSize, b.Dx())
	}
	if b.Dy() != 960 {
		t.Errorf("expected height 960, got %d", b.Dy())
	}
}

func TestPrepareImage_InvalidData(t *testing.T) {
	if _, err := PrepareImage([]byte("not an image")); err == nil {
		t.Error("expected error for invalid image data")
	}
}
