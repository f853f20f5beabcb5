package compositor_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/Skryldev/photoreel/compositor"
	apperrors "github.com/Skryldev/photoreel/errors"
)

func iconPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0xFF, 0xFF, 0xFF, 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWatermark_Layout(t *testing.T) {
	wm := compositor.NewWatermarkCache()
	overlay, err := wm.Get(400, 300, "photoreel")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if overlay.Bounds() != image.Rect(0, 0, 400, 300) {
		t.Fatalf("bounds: got %v", overlay.Bounds())
	}

	// icon height 18, padding 6: band covers the top 30 rows.
	if a := overlay.RGBAAt(200, 2).A; a < 0x66 {
		t.Errorf("band alpha: got %#x, want >= 0x66", a)
	}
	if a := overlay.RGBAAt(200, 200).A; a != 0 {
		t.Errorf("below band: got alpha %#x, want 0", a)
	}
	if a := overlay.RGBAAt(10, 290).A; a != 0 {
		t.Errorf("bottom-left: got alpha %#x, want 0", a)
	}

	// The icon sits in the top-right corner and is more opaque than the band.
	var iconOpaque bool
	for y := 6; y < 24 && !iconOpaque; y++ {
		for x := 370; x < 394; x++ {
			if overlay.RGBAAt(x, y).A > 0xC0 {
				iconOpaque = true
				break
			}
		}
	}
	if !iconOpaque {
		t.Error("no icon pixels in the top-right corner")
	}
}

func TestWatermark_Cached(t *testing.T) {
	wm := compositor.NewWatermarkCacheWith(iconPNG(t), goregular.TTF)

	var wg sync.WaitGroup
	results := make([]*image.RGBA, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = wm.Get(320, 240, "reel")
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r == nil || r != results[0] {
			t.Fatalf("result %d differs from the cached overlay", i)
		}
	}
	if wm.Builds() != 1 {
		t.Errorf("builds: got %d, want 1", wm.Builds())
	}

	if _, err := wm.Get(640, 480, "reel"); err != nil {
		t.Fatal(err)
	}
	if wm.Builds() != 2 {
		t.Errorf("extent change: builds %d, want 2", wm.Builds())
	}
	if _, err := wm.Get(640, 480, "other"); err != nil {
		t.Fatal(err)
	}
	if wm.Builds() != 3 {
		t.Errorf("label change: builds %d, want 3", wm.Builds())
	}

	wm.Reset()
	_, _ = wm.Get(640, 480, "other")
	if wm.Builds() != 4 {
		t.Errorf("after Reset: builds %d, want 4", wm.Builds())
	}
}

func TestWatermark_Errors(t *testing.T) {
	cases := []struct {
		name  string
		cache *compositor.WatermarkCache
		w, h  int
		label string
		want  error
	}{
		{"missing icon", compositor.NewWatermarkCacheWith(nil, goregular.TTF), 100, 100, "x", apperrors.ErrWatermarkAsset},
		{"corrupt icon", compositor.NewWatermarkCacheWith([]byte("nope"), goregular.TTF), 100, 100, "x", apperrors.ErrWatermarkAsset},
		{"bad font", compositor.NewWatermarkCacheWith(iconPNG(t), []byte("not a font")), 100, 100, "x", apperrors.ErrWatermarkText},
		{"empty canvas", compositor.NewWatermarkCache(), 0, 100, "x", apperrors.ErrWatermarkBand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cache.Get(tc.w, tc.h, tc.label)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if !apperrors.IsCategory(err, apperrors.CategoryRender) {
				t.Errorf("category: %v", err)
			}
			if tc.cache.Builds() != 0 {
				t.Errorf("failed build counted")
			}
		})
	}

	// Without a label the font is never parsed.
	wm := compositor.NewWatermarkCacheWith(iconPNG(t), []byte("not a font"))
	if _, err := wm.Get(100, 100, ""); err != nil {
		t.Errorf("empty label: %v", err)
	}
}

func TestWatermark_LabelIsNormalized(t *testing.T) {
	wm := compositor.NewWatermarkCache()
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	a, _ := wm.Get(200, 200, composed)
	b, _ := wm.Get(200, 200, decomposed)
	if a != b || wm.Builds() != 1 {
		t.Errorf("NFC-equivalent labels built %d overlays", wm.Builds())
	}
}
