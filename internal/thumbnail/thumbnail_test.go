package thumbnail

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"
)

// drawingTIFF returns a w x h grayscale TIFF with a black border on white.
func drawingTIFF(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 255}
			if x < 4 || y < 4 || x >= w-4 || y >= h-4 {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return buf.Bytes()
}

func TestResizeTIFF(t *testing.T) {
	src := drawingTIFF(t, 640, 480)

	out, err := New().Resize(src, 100, 100)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if format != "tiff" {
		t.Errorf("format = %q, want tiff", format)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("bounds = %v, want 100x100", b)
	}
}

func TestResizeEncodesPNGAsTIFF(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 20))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	out, err := New().Resize(buf.Bytes(), 25, 40)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	w, h, err := Dimensions(out)
	if err != nil {
		t.Fatal(err)
	}
	if w != 25 || h != 40 {
		t.Errorf("got %dx%d, want 25x40", w, h)
	}
	if _, format, _ := image.DecodeConfig(bytes.NewReader(out)); format != "tiff" {
		t.Errorf("format = %q, want tiff", format)
	}
}

func TestResizeRejectsGarbage(t *testing.T) {
	if _, err := New().Resize([]byte("II*\x00 not really a tiff"), 10, 10); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestResizeRejectsDimensions(t *testing.T) {
	src := drawingTIFF(t, 10, 10)
	for _, d := range [][2]int{{0, 10}, {10, 0}, {-1, 5}, {MaxDimension + 1, 10}} {
		if _, err := New().Resize(src, d[0], d[1]); !errors.Is(err, ErrDimensions) {
			t.Errorf("Resize(%d, %d) err = %v, want ErrDimensions", d[0], d[1], err)
		}
	}
}
