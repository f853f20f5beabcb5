package decoder

import (
	"context"
	"image"
	"image/gif"
	"image/png"
	"io"

	"github.com/Skryldev/photoreel/core"
)

// PNG decodes PNG images using the standard library.
type PNG struct {
	MaxPixels int64
}

func NewPNG(maxPixels int64) *PNG { return &PNG{MaxPixels: maxPixels} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "png.decode", p.MaxPixels, png.DecodeConfig, png.Decode)
}

// GIF decodes the first frame of a GIF.
type GIF struct {
	MaxPixels int64
}

func NewGIF(maxPixels int64) *GIF { return &GIF{MaxPixels: maxPixels} }

func (g *GIF) CanDecode(format core.Format) bool {
	return format == core.FormatGIF
}

func (g *GIF) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	return decode(ctx, r, "gif.decode", g.MaxPixels, gif.DecodeConfig, gif.Decode)
}
