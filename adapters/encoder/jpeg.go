// Package encoder provides still-image encoders used by frame-based sinks.
package encoder

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

const defaultJPEGQuality = 85

// JPEG encodes arbitrary images to baseline JPEG.  Safe for concurrent use.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	return &JPEG{DefaultQuality: clampQuality(defaultQuality)}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img image.Image, opts core.EncodeOptions) ([]byte, error) {
	quality := j.DefaultQuality
	if opts.Quality > 0 {
		quality = clampQuality(opts.Quality)
	}
	var buf bytes.Buffer
	if err := encodeInto(ctx, &buf, img, quality); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}

// ── Frame encoder ─────────────────────────────────────────────────────────────

// FrameEncoder turns the RGBA canvases of one video session into JPEG frames.
// It reuses a single output buffer, so the slice returned by Encode is only
// valid until the next call.  Not safe for concurrent use.
type FrameEncoder struct {
	quality int
	buf     bytes.Buffer

	frames int
	bytes  int64
}

// NewFrameEncoder creates a FrameEncoder; quality <= 0 selects the default.
func NewFrameEncoder(quality int) *FrameEncoder {
	return &FrameEncoder{quality: clampQuality(quality)}
}

// Quality is the JPEG quality applied to every frame.
func (e *FrameEncoder) Quality() int { return e.quality }

// Encode compresses f.Buffer.  Errors carry the frame index.
func (e *FrameEncoder) Encode(ctx context.Context, f *core.Frame) ([]byte, error) {
	if f == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "jpeg.frame", apperrors.ErrEmptyInput)
	}
	e.buf.Reset()
	if err := encodeInto(ctx, &e.buf, f.Buffer, e.quality); err != nil {
		return nil, apperrors.AtIndex(f.Index, apperrors.CategoryEncode, "jpeg.frame", err)
	}
	e.frames++
	e.bytes += int64(e.buf.Len())
	return e.buf.Bytes(), nil
}

// Stats reports how many frames were encoded and their total size.
func (e *FrameEncoder) Stats() (frames int, bytes int64) { return e.frames, e.bytes }

func encodeInto(ctx context.Context, buf *bytes.Buffer, img image.Image, quality int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rgba, ok := img.(*image.RGBA); img == nil || (ok && rgba == nil) || img.Bounds().Empty() {
		return apperrors.ErrEmptyInput
	}
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
}

func clampQuality(q int) int {
	if q <= 0 {
		return defaultJPEGQuality
	}
	return min(q, 100)
}

var _ core.Encoder = (*JPEG)(nil)
