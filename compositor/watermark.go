package compositor

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Skryldev/photoreel/errors"
)

//go:embed assets/icon.png
var defaultIcon []byte

const (
	// iconFraction is the icon height relative to the shorter canvas side.
	iconFraction = 0.06
	bandAlpha    = 0x66
)

var labelColor = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

// ── Watermark cache ───────────────────────────────────────────────────────────

type watermarkKey struct {
	width, height int
	label         string
}

// WatermarkCache builds the transparent watermark overlay once per canvas
// size and label and hands out the same immutable image afterwards.
// Safe for concurrent use.
type WatermarkCache struct {
	iconData []byte
	fontData []byte

	mu      sync.Mutex
	key     watermarkKey
	overlay *image.RGBA

	builds atomic.Int64
}

// NewWatermarkCache uses the bundled icon and the Go Regular font.
func NewWatermarkCache() *WatermarkCache {
	return NewWatermarkCacheWith(defaultIcon, goregular.TTF)
}

// NewWatermarkCacheWith uses caller-supplied PNG icon and TrueType/OpenType
// font bytes.
func NewWatermarkCacheWith(iconPNG, fontData []byte) *WatermarkCache {
	return &WatermarkCache{iconData: iconPNG, fontData: fontData}
}

// Get returns the overlay for a width×height canvas, building it when the
// extents or label differ from the cached one.  The result must not be
// modified.
func (c *WatermarkCache) Get(width, height int, label string) (*image.RGBA, error) {
	key := watermarkKey{width: width, height: height, label: norm.NFC.String(label)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlay != nil && c.key == key {
		return c.overlay, nil
	}
	overlay, err := c.build(key)
	if err != nil {
		return nil, err
	}
	c.builds.Add(1)
	c.key = key
	c.overlay = overlay
	return overlay, nil
}

// Builds reports how many overlays have been constructed.
func (c *WatermarkCache) Builds() int64 { return c.builds.Load() }

// Reset drops the cached overlay.
func (c *WatermarkCache) Reset() {
	c.mu.Lock()
	c.overlay = nil
	c.key = watermarkKey{}
	c.mu.Unlock()
}

// build draws band, icon and label, in that order, on a transparent base.
func (c *WatermarkCache) build(key watermarkKey) (*image.RGBA, error) {
	if key.width <= 0 || key.height <= 0 {
		return nil, apperrors.New(apperrors.CategoryRender, "watermark.build",
			fmt.Errorf("%w: %w: %dx%d", apperrors.ErrWatermarkBand, apperrors.ErrInvalidDimensions, key.width, key.height))
	}

	icon, err := c.decodeIcon()
	if err != nil {
		return nil, err
	}

	iconH := max(1, int(math.Round(iconFraction*float64(min(key.width, key.height)))))
	ib := icon.Bounds()
	iconW := max(1, int(math.Round(float64(iconH)*float64(ib.Dx())/float64(ib.Dy()))))
	pad := max(1, iconH/3)
	iconRect := image.Rect(key.width-pad-iconW, pad, key.width-pad, pad+iconH)

	overlay := image.NewRGBA(image.Rect(0, 0, key.width, key.height))

	bandH := min(key.height, iconH+2*pad)
	if err := drawBand(overlay, key.width, bandH, float32(pad)); err != nil {
		return nil, err
	}

	xdraw.CatmullRom.Scale(overlay, iconRect, icon, ib, xdraw.Over, nil)

	if key.label != "" {
		if err := c.drawLabel(overlay, key.label, iconRect, pad); err != nil {
			return nil, err
		}
	}
	return overlay, nil
}

func (c *WatermarkCache) decodeIcon() (image.Image, error) {
	if len(c.iconData) == 0 {
		return nil, apperrors.New(apperrors.CategoryRender, "watermark.icon", apperrors.ErrWatermarkAsset)
	}
	icon, err := png.Decode(bytes.NewReader(c.iconData))
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryRender, "watermark.icon",
			fmt.Errorf("%w: %w", apperrors.ErrWatermarkAsset, err))
	}
	if icon.Bounds().Empty() {
		return nil, apperrors.New(apperrors.CategoryRender, "watermark.icon", apperrors.ErrWatermarkAsset)
	}
	return icon, nil
}

// drawLabel renders label right-aligned against the left edge of iconRect,
// with a face whose ascent plus descent equals the icon height.
func (c *WatermarkCache) drawLabel(dst *image.RGBA, label string, iconRect image.Rectangle, pad int) error {
	textErr := func(err error) error {
		return apperrors.New(apperrors.CategoryRender, "watermark.label",
			fmt.Errorf("%w: %w", apperrors.ErrWatermarkText, err))
	}

	f, err := opentype.Parse(c.fontData)
	if err != nil {
		return textErr(err)
	}
	iconH := iconRect.Dy()
	face, err := labelFace(f, float64(iconH))
	if err != nil {
		return textErr(err)
	}

	m := face.Metrics()
	if h := (m.Ascent + m.Descent).Ceil(); h > 0 && h != iconH {
		face.Close()
		face, err = labelFace(f, float64(iconH)*float64(iconH)/float64(h))
		if err != nil {
			return textErr(err)
		}
		m = face.Metrics()
	}
	defer face.Close()

	advance := font.MeasureString(face, label)
	x := fixed.I(iconRect.Min.X-pad) - advance
	if x < fixed.I(pad) {
		x = fixed.I(pad)
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: fixed.I(iconRect.Min.Y) + m.Ascent},
	}
	d.DrawString(label)
	return nil
}

func labelFace(f *opentype.Font, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size %.2f", size)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// drawBand fills a semi-transparent rounded rectangle across the top of dst.
func drawBand(dst *image.RGBA, width, height int, radius float32) error {
	if width <= 0 || height <= 0 {
		return apperrors.New(apperrors.CategoryRender, "watermark.band",
			fmt.Errorf("%w: %dx%d", apperrors.ErrWatermarkBand, width, height))
	}
	w, h := float32(width), float32(height)
	radius = min(radius, w/2, h/2)

	r := vector.NewRasterizer(width, height)
	r.MoveTo(radius, 0)
	r.LineTo(w-radius, 0)
	r.QuadTo(w, 0, w, radius)
	r.LineTo(w, h-radius)
	r.QuadTo(w, h, w-radius, h)
	r.LineTo(radius, h)
	r.QuadTo(0, h, 0, h-radius)
	r.LineTo(0, radius)
	r.QuadTo(0, 0, radius, 0)
	r.ClosePath()

	band := image.NewUniform(color.RGBA{A: bandAlpha})
	r.Draw(dst, image.Rect(0, 0, width, height), band, image.Point{})
	return nil
}
