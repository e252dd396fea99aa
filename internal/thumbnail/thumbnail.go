// Package thumbnail renders resized copies of drawings.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const (
	DefaultWidth  = 100
	DefaultHeight = 100

	// MaxDimension bounds requested sizes so a single request cannot allocate
	// an arbitrarily large canvas.
	MaxDimension = 4096
)

var ErrDimensions = errors.New("thumbnail dimensions out of range")

// Resizer scales images to exact dimensions and encodes them as TIFF.
type Resizer struct {
	Filter imaging.ResampleFilter
}

// New returns a Resizer using area averaging, which suits downscaling
// line drawings.
func New() *Resizer {
	return &Resizer{Filter: imaging.Box}
}

// Resize decodes data, scales it to exactly w x h (aspect ratio is not
// preserved) and encodes the result as TIFF whatever the source format was.
func (r *Resizer) Resize(data []byte, w, h int) ([]byte, error) {
	if w < 1 || h < 1 || w > MaxDimension || h > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensions, w, h)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Resize(img, w, h, r.Filter)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.TIFF); err != nil {
		return nil, fmt.Errorf("encode tiff: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions decodes just enough of data to report its size.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
