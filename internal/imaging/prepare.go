// Package imaging prepares still images before they are sent to the
// edge-detection service.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	"github.com/disintegration/imaging"
)

// DefaultMaxEdge is the longest edge, in pixels, an upload is allowed to keep.
const DefaultMaxEdge = 2048

// ErrNotImage is returned when the input cannot be decoded as an image.
var ErrNotImage = errors.New("input is not a supported image")

// Prepared is an image ready for upload.
type Prepared struct {
	Data     []byte
	Filename string
	Format   string
	Width    int
	Height   int
	Resized  bool
}

// Prepare validates data as an image and downscales it so neither edge
// exceeds maxEdge. Images already within bounds are passed through untouched.
// A maxEdge of zero or less disables resizing.
func Prepare(filename string, data []byte, maxEdge int) (*Prepared, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNotImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrNotImage)
	}

	out := &Prepared{
		Data:     data,
		Filename: filename,
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}

	if maxEdge <= 0 || (cfg.Width <= maxEdge && cfg.Height <= maxEdge) {
		return out, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	resized := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	// Everything except JPEG is re-encoded as PNG.
	encFormat := imaging.PNG
	if format == "jpeg" {
		encFormat = imaging.JPEG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, encFormat, imaging.JPEGQuality(92)); err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}

	out.Data = buf.Bytes()
	out.Width = resized.Bounds().Dx()
	out.Height = resized.Bounds().Dy()
	out.Resized = true
	if encFormat == imaging.PNG {
		out.Format = "png"
	}
	return out, nil
}
