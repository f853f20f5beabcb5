package compositor_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/photoreel/adapters/decoder"
	"github.com/Skryldev/photoreel/compositor"
	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newCompositor(t *testing.T, w, h int) *compositor.Compositor {
	t.Helper()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG(0))
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG(0))
	pool, err := compositor.NewPool(w, h, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	c := compositor.New(reg, pool, 600)
	c.Scaler = xdraw.NearestNeighbor
	return c
}

var (
	red  = color.RGBA{R: 0xFF, A: 0xFF}
	blue = core.ARGB{A: 0xFF, B: 0xFF}
)

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestComposite_Letterbox(t *testing.T) {
	c := newCompositor(t, 8, 8)
	settings := core.RenderSettings{Width: 8, Height: 8, FrameDuration: 2 * time.Second, Background: blue}

	// 4x2 photo on an 8x8 canvas: scaled to 8x4, rows 2..5 covered.
	f, err := c.Composite(context.Background(), solidPNG(t, 4, 2, red), 3, settings, nil)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	defer f.Release()

	if got := f.Buffer.RGBAAt(4, 0); got != (color.RGBA{B: 0xFF, A: 0xFF}) {
		t.Errorf("top bar: got %v, want blue", got)
	}
	if got := f.Buffer.RGBAAt(4, 7); got != (color.RGBA{B: 0xFF, A: 0xFF}) {
		t.Errorf("bottom bar: got %v, want blue", got)
	}
	if got := f.Buffer.RGBAAt(4, 4); got != red {
		t.Errorf("photo: got %v, want red", got)
	}

	if f.Index != 3 {
		t.Errorf("index: got %d", f.Index)
	}
	if f.PTS != (core.Rational{Value: 3 * 1200, Timescale: 600}) {
		t.Errorf("pts: got %+v", f.PTS)
	}
	if f.PTS.Duration() != 6*time.Second {
		t.Errorf("pts duration: got %s", f.PTS.Duration())
	}
}

func TestComposite_WatermarkOnTop(t *testing.T) {
	c := newCompositor(t, 4, 4)
	settings := core.RenderSettings{Width: 4, Height: 4, FrameDuration: time.Second, Background: blue}

	overlay := image.NewRGBA(image.Rect(0, 0, 4, 4))
	overlay.SetRGBA(3, 0, color.RGBA{G: 0xFF, A: 0xFF})

	f, err := c.Composite(context.Background(), solidPNG(t, 4, 4, red), 0, settings, overlay)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	defer f.Release()
	if got := f.Buffer.RGBAAt(3, 0); got != (color.RGBA{G: 0xFF, A: 0xFF}) {
		t.Errorf("watermark pixel: got %v", got)
	}
	if got := f.Buffer.RGBAAt(0, 3); got != red {
		t.Errorf("photo pixel: got %v", got)
	}
}

func TestComposite_JPEGIsConverted(t *testing.T) {
	c := newCompositor(t, 16, 16)
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xFF, 0xFF
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}

	settings := core.RenderSettings{Width: 16, Height: 16, FrameDuration: time.Second}
	f, err := c.Composite(context.Background(), buf.Bytes(), 0, settings, nil)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	defer f.Release()
	px := f.Buffer.RGBAAt(8, 8)
	if px.R < 0xF0 || px.G > 0x10 || px.B > 0x10 || px.A != 0xFF {
		t.Errorf("jpeg pixel: got %v, want ~red", px)
	}
}

func TestComposite_Errors(t *testing.T) {
	c := newCompositor(t, 4, 4)
	settings := core.RenderSettings{Width: 4, Height: 4, FrameDuration: time.Second}
	ctx := context.Background()

	_, err := c.Composite(ctx, []byte("GIF89a not registered"), 0, settings, nil)
	if !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("unregistered format: got %v", err)
	}

	_, err = c.Composite(ctx, []byte{0x89, 'P', 'N', 'G', 0, 0}, 0, settings, nil)
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("truncated png: got %v", err)
	}

	wrong := core.RenderSettings{Width: 5, Height: 4, FrameDuration: time.Second}
	_, err = c.Composite(ctx, solidPNG(t, 2, 2, red), 0, wrong, nil)
	if !errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("canvas mismatch: got %v", err)
	}

	if c.Pool().Outstanding() != 0 {
		t.Errorf("failed composites leaked %d buffers", c.Pool().Outstanding())
	}
}
