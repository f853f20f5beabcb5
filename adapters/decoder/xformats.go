package decoder

import (
	"context"
	"image"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Skryldev/photoreel/core"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: golang.org/x/image/webp does not decode animated WebP; only the
// still image is supported.
type WebP struct {
	MaxPixels int64
}

func NewWebP(maxPixels int64) *WebP { return &WebP{MaxPixels: maxPixels} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "webp.decode", w.MaxPixels, webp.DecodeConfig, webp.Decode)
}

// BMP decodes Windows bitmaps.
type BMP struct {
	MaxPixels int64
}

func NewBMP(maxPixels int64) *BMP { return &BMP{MaxPixels: maxPixels} }

func (b *BMP) CanDecode(format core.Format) bool {
	return format == core.FormatBMP
}

func (b *BMP) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "bmp.decode", b.MaxPixels, bmp.DecodeConfig, bmp.Decode)
}

// TIFF decodes baseline TIFF images.
type TIFF struct {
	MaxPixels int64
}

func NewTIFF(maxPixels int64) *TIFF { return &TIFF{MaxPixels: maxPixels} }

func (t *TIFF) CanDecode(format core.Format) bool {
	return format == core.FormatTIFF
}

func (t *TIFF) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "tiff.decode", t.MaxPixels, tiff.DecodeConfig, tiff.Decode)
}
