package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

var (
	_ core.Decoder = (*JPEG)(nil)
	_ core.Decoder = (*PNG)(nil)
	_ core.Decoder = (*GIF)(nil)
	_ core.Decoder = (*WebP)(nil)
	_ core.Decoder = (*BMP)(nil)
	_ core.Decoder = (*TIFF)(nil)
)

type (
	configFunc func(io.Reader) (image.Config, error)
	decodeFunc func(io.Reader) (image.Image, error)
)

// decode buffers r, checks the header against maxPixels and only then
// decodes the full image.
func decode(ctx context.Context, r io.Reader, op string, maxPixels int64, cfgFn configFunc, decFn decodeFunc) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	defer utils.ReleaseBuffer(buf)
	if buf.Len() == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrEmptyInput)
	}

	cfg, err := cfgFn(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op,
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, cfg.Width, cfg.Height))
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, apperrors.New(apperrors.CategoryDecode, op,
			fmt.Errorf("%w: %dx%d exceeds %d pixels", apperrors.ErrTooLarge, cfg.Width, cfg.Height, maxPixels))
	}

	img, err := decFn(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return img, nil
}
