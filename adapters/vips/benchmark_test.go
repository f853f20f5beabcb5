package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/Skryldev/photoreel/adapters/decoder"
	"github.com/Skryldev/photoreel/adapters/vips"
	"github.com/Skryldev/photoreel/core"
)

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	return buf.Bytes()
}

func benchDecode(b *testing.B, dec core.Decoder, raw []byte) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dec.Decode(context.Background(), bytes.NewReader(raw)); err != nil {
			b.Fatal(err)
		}
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	benchDecode(b, decoder.NewJPEG(0), makeJPEG(b, 1920, 1080))
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	benchDecode(b, backend, makeJPEG(b, 1920, 1080))
}

func BenchmarkDecode_Stdlib_4000x3000(b *testing.B) {
	benchDecode(b, decoder.NewJPEG(0), makeJPEG(b, 4000, 3000))
}

func BenchmarkDecode_Vips_4000x3000(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	benchDecode(b, backend, makeJPEG(b, 4000, 3000))
}

// ─── Registry ─────────────────────────────────────────────────────────────────

func BenchmarkRegistry_VipsOverridesStd(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{})
	defer backend.Shutdown()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG(0))
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP(0))
	vips.RegisterVipsBackend(reg, backend)

	if d, _ := reg.DecoderFor(core.FormatJPEG); d != core.Decoder(backend) {
		b.Fatal("jpeg decoder not replaced by vips")
	}
	if d, _ := reg.DecoderFor(core.FormatBMP); d == core.Decoder(backend) {
		b.Fatal("bmp decoder should stay on the Go codec")
	}
	raw := makeJPEG(b, 640, 480)
	d, _ := reg.DecoderFor(core.FormatJPEG)
	benchDecode(b, d, raw)
}
