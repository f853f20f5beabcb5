package vips

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
	MaxPixels    int64 // 0 = no limit
}

// Backend is a libvips-powered Decoder.  It applies the EXIF orientation and
// converts every input to sRGB before handing pixels to Go.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF, core.FormatTIFF:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	if b.cfg.MaxPixels > 0 && int64(ref.Width())*int64(ref.Height()) > b.cfg.MaxPixels {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode",
			fmt.Errorf("%w: %dx%d exceeds %d pixels", apperrors.ErrTooLarge, ref.Width(), ref.Height(), b.cfg.MaxPixels))
	}
	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.auto_rotate", err)
	}
	if ref.Interpretation() != govips.InterpretationSRGB {
		if err := ref.ToColorSpace(govips.InterpretationSRGB); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.colorspace", err)
		}
	}

	// Round-trip through lossless PNG so every source format lands in Go.
	img, err := ref.ToImage(govips.NewDefaultPNGExportParams())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.to_image", err)
	}
	return img, nil
}

// Flush drops the libvips operation cache.  The compositor calls it after
// every frame so that cached intermediates do not accumulate across a merge.
func (b *Backend) Flush() {
	govips.ClearCache()
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the Go codecs with libvips for every format
// libvips can load.  BMP stays on the Go decoder.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF, core.FormatTIFF} {
		reg.RegisterDecoder(f, b)
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Renderer = (*Backend)(nil)
