package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

// ── Compositor ────────────────────────────────────────────────────────────────

// Compositor decodes one photo and paints it onto a pooled canvas.  It keeps
// no per-frame state and is safe for concurrent use.
type Compositor struct {
	registry  core.Registry
	pool      *Pool
	timescale int32
	// Scaler resamples the photo onto the canvas.  Defaults to CatmullRom.
	Scaler xdraw.Scaler
}

// New creates a Compositor drawing into buffers from pool.
func New(reg core.Registry, pool *Pool, timescale int32) *Compositor {
	return &Compositor{registry: reg, pool: pool, timescale: timescale, Scaler: xdraw.CatmullRom}
}

// Pool returns the buffer pool frames are drawn into.
func (c *Compositor) Pool() *Pool { return c.pool }

// Decode sniffs the format of data and decodes it with the registered
// decoder, then converts the result to sRGB RGBA.
func (c *Compositor) Decode(ctx context.Context, data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "composite.decode", apperrors.ErrEmptyInput)
	}
	format := core.Format(utils.DetectFormat(data))
	dec, ok := c.registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "composite.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	if r, ok := dec.(core.Renderer); ok {
		defer r.Flush()
	}

	img, err := dec.Decode(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "composite.decode", err)
	}
	return toRGBA(img), nil
}

// Composite renders data as frame index: background, fitted photo, then the
// watermark overlay when non-nil.  The frame's buffer comes from the pool and
// must be released by the caller.
func (c *Compositor) Composite(ctx context.Context, data []byte, index int, settings core.RenderSettings, watermark *image.RGBA) (*core.Frame, error) {
	src, err := c.Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "composite", err)
	}

	canvas := settings.Bounds()
	if canvas != c.pool.Bounds() {
		return nil, apperrors.New(apperrors.CategoryRender, "composite",
			fmt.Errorf("%w: canvas %v does not match pool %v", apperrors.ErrInvalidDimensions, canvas, c.pool.Bounds()))
	}

	buf, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.paint(buf, src, settings.Background, watermark); err != nil {
		c.pool.Release(buf)
		return nil, err
	}

	ticks := core.TicksFor(settings.FrameDuration, c.timescale)
	pts := core.Rational{Value: int64(index) * ticks, Timescale: c.timescale}
	return core.NewFrame(index, pts, buf, c.pool), nil
}

func (c *Compositor) paint(dst *image.RGBA, src *image.RGBA, bg core.ARGB, watermark *image.RGBA) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CategoryRender, "composite.paint", fmt.Errorf("draw panicked: %v", r))
		}
	}()

	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.NewUniform(bg.RGBA()), image.Point{}, draw.Src)

	target := utils.FitRect(src.Bounds(), bounds)
	scaler := c.Scaler
	if scaler == nil {
		scaler = xdraw.CatmullRom
	}
	scaler.Scale(dst, target, src, src.Bounds(), xdraw.Over, nil)

	if watermark != nil {
		draw.Draw(dst, bounds, watermark, image.Point{}, draw.Over)
	}
	return nil
}

// toRGBA converts any decoded image into premultiplied sRGB RGBA anchored at
// the origin.  YCbCr, CMYK, paletted and gray sources all go through the
// color model conversion here rather than being sampled directly.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
