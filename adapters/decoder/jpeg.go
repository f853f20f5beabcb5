// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"image/jpeg"
	"io"

	"github.com/Skryldev/photoreel/core"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct {
	MaxPixels int64 // 0 = no limit
}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG(maxPixels int64) *JPEG { return &JPEG{MaxPixels: maxPixels} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "jpeg.decode", j.MaxPixels, jpeg.DecodeConfig, jpeg.Decode)
}
