package sink_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Skryldev/photoreel/adapters/sink"
	"github.com/Skryldev/photoreel/config"
	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func spec(t *testing.T, name string, w, h int, ticks int64) core.SinkSpec {
	t.Helper()
	return core.SinkSpec{
		Path:          filepath.Join(t.TempDir(), name),
		Width:         w,
		Height:        h,
		Timescale:     600,
		TicksPerFrame: ticks,
	}
}

func frame(index, w, h int) *core.Frame {
	buf := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+3] = uint8(index*40), 0xFF
	}
	return core.NewFrame(index, core.Rational{Value: int64(index), Timescale: 600}, buf, nil)
}

func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected a panic", what)
		}
	}()
	fn()
}

// ── MJPEG ─────────────────────────────────────────────────────────────────────

func TestMJPEG_WritesAVI(t *testing.T) {
	sp := spec(t, "out.avi", 32, 16, 1200)
	s := sink.NewMJPEG(80, sp)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Submit(ctx, frame(i, 32, 16)); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	out, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if out.Frames != 3 || out.Width != 32 || out.Height != 16 || out.Path != sp.Path {
		t.Errorf("output: %+v", out)
	}

	data, err := os.ReadFile(sp.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Errorf("not an AVI file: % x", data[:min(12, len(data))])
	}

	if err := s.Abort(); err != nil {
		t.Errorf("Abort after Finish: %v", err)
	}
	if _, err := os.Stat(sp.Path); err != nil {
		t.Error("Abort after Finish removed the output")
	}
}

func TestMJPEG_Rate(t *testing.T) {
	cases := []struct {
		ticks   int64
		fps     int32
		repeats int
	}{
		{1200, 1, 2}, // 2s
		{600, 1, 1},  // 1s
		{300, 2, 1},  // 0.5s
		{180, 10, 3}, // 0.3s
		{20, 30, 1},  // 1/30s
		{2100, 2, 7}, // 3.5s
		{900, 2, 3},  // 1.5s
		{240, 5, 2},  // 0.4s
		{1500, 2, 5}, // 2.5s
	}
	for _, tc := range cases {
		s := sink.NewMJPEG(80, core.SinkSpec{Timescale: 600, TicksPerFrame: tc.ticks})
		fps, repeats := s.Rate()
		if fps != tc.fps || repeats != tc.repeats {
			t.Errorf("ticks %d: got %d fps x%d, want %d fps x%d", tc.ticks, fps, repeats, tc.fps, tc.repeats)
		}
		if want := time.Duration(tc.ticks) * time.Second / 600; s.FrameDuration() != want {
			t.Errorf("ticks %d: frame lasts %s, want %s", tc.ticks, s.FrameDuration(), want)
		}
	}
}

func TestMJPEG_RateAboveCap(t *testing.T) {
	cases := []struct {
		ticks   int64
		repeats int
	}{
		{601, 120}, // 1.0017s shown as 1s
		{1, 1},     // 1/600s shown as 1/120s
	}
	for _, tc := range cases {
		s := sink.NewMJPEG(80, core.SinkSpec{Timescale: 600, TicksPerFrame: tc.ticks})
		fps, repeats := s.Rate()
		if fps != sink.MaxMJPEGRate || repeats != tc.repeats {
			t.Errorf("ticks %d: got %d fps x%d, want %d fps x%d", tc.ticks, fps, repeats, sink.MaxMJPEGRate, tc.repeats)
		}
		if want := time.Duration(tc.repeats) * time.Second / sink.MaxMJPEGRate; s.FrameDuration() != want {
			t.Errorf("ticks %d: frame lasts %s, want %s", tc.ticks, s.FrameDuration(), want)
		}
	}
}

func TestMJPEG_FinishReportsWrittenDuration(t *testing.T) {
	sp := spec(t, "d.avi", 8, 8, 900)
	s := sink.NewMJPEG(80, sp)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Submit(ctx, frame(i, 8, 8)); err != nil {
			t.Fatal(err)
		}
	}
	out, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if out.Frames != 2 || out.FrameDuration != 1500*time.Millisecond {
		t.Errorf("output: %+v", out)
	}
}

func TestMJPEG_AbortRemovesOutput(t *testing.T) {
	sp := spec(t, "partial.avi", 8, 8, 600)
	s := sink.NewMJPEG(80, sp)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(ctx, frame(0, 8, 8)); err != nil {
		t.Fatal(err)
	}
	if err := s.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := os.Stat(sp.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial output still present: %v", err)
	}
	if err := s.Abort(); err != nil {
		t.Errorf("second Abort: %v", err)
	}
}

func TestMJPEG_Misuse(t *testing.T) {
	sp := spec(t, "m.avi", 8, 8, 600)
	s := sink.NewMJPEG(80, sp)
	mustPanic(t, "submit before start", func() { _ = s.Submit(context.Background(), frame(0, 8, 8)) })
	mustPanic(t, "finish before start", func() { _, _ = s.Finish(context.Background()) })

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "start twice", func() { _ = s.Start(context.Background()) })

	err := s.Submit(context.Background(), frame(0, 4, 4))
	if !errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("wrong frame size: got %v", err)
	}
	_ = s.Abort()
}

func TestMJPEG_InvalidSpec(t *testing.T) {
	s := sink.NewMJPEG(80, spec(t, "bad.avi", 0, 8, 600))
	err := s.Start(context.Background())
	if !errors.Is(err, apperrors.ErrEncoderSetup) {
		t.Fatalf("got %v, want ErrEncoderSetup", err)
	}
	if apperrors.ReasonOf(err) != apperrors.ReasonSetupFailed {
		t.Errorf("reason: %s", apperrors.ReasonOf(err))
	}
	if err := s.Abort(); err != nil {
		t.Errorf("Abort of unstarted sink: %v", err)
	}
}

// ── FFmpeg ────────────────────────────────────────────────────────────────────

func hasPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestFFmpeg_Args(t *testing.T) {
	sp := core.SinkSpec{Path: "/tmp/out.mp4", Width: 1920, Height: 1080, Timescale: 600, TicksPerFrame: 1200}
	s := sink.NewFFmpeg(sink.FFmpegOptions{Codec: "libx264", Preset: "fast", CRF: 20, PixelFormat: "yuv420p"}, sp)
	args := s.Args()

	want := [][2]string{
		{"-f", "rawvideo"},
		{"-pix_fmt", "rgba"},
		{"-s", "1920x1080"},
		{"-framerate", "600/1200"},
		{"-i", "pipe:"},
		{"-c:v", "libx264"},
		{"-preset", "fast"},
		{"-crf", "20"},
		{"-pix_fmt", "yuv420p"},
		{"-movflags", "+faststart"},
	}
	for _, w := range want {
		if !hasPair(args, w[0], w[1]) {
			t.Errorf("missing %s %s in %v", w[0], w[1], args)
		}
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-y") || !strings.Contains(joined, "/tmp/out.mp4") {
		t.Errorf("args: %s", joined)
	}
	if strings.Index(joined, "-i pipe:") > strings.Index(joined, "-c:v") {
		t.Errorf("input options must precede output options: %s", joined)
	}

	mkv := sink.NewFFmpeg(sink.FFmpegOptions{Codec: "libx265"}, core.SinkSpec{Path: "a.mkv", Width: 2, Height: 2, Timescale: 600, TicksPerFrame: 600})
	if strings.Contains(strings.Join(mkv.Args(), " "), "movflags") {
		t.Error("movflags set for a non-mp4 container")
	}
}

func TestFFmpeg_StartRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name string
		opts sink.FFmpegOptions
		spec core.SinkSpec
	}{
		{"odd width 420", sink.FFmpegOptions{Codec: "libx264", PixelFormat: "yuv420p"},
			core.SinkSpec{Path: "x.mp4", Width: 101, Height: 100, Timescale: 600, TicksPerFrame: 600}},
		{"zero ticks", sink.FFmpegOptions{Codec: "libx264"},
			core.SinkSpec{Path: "x.mp4", Width: 100, Height: 100, Timescale: 600}},
		{"no path", sink.FFmpegOptions{Codec: "libx264"},
			core.SinkSpec{Width: 100, Height: 100, Timescale: 600, TicksPerFrame: 600}},
		{"missing binary", sink.FFmpegOptions{Binary: "photoreel-no-such-ffmpeg", Codec: "libx264"},
			core.SinkSpec{Path: "x.mp4", Width: 100, Height: 100, Timescale: 600, TicksPerFrame: 600}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sink.NewFFmpeg(tc.opts, tc.spec)
			err := s.Start(context.Background())
			if !errors.Is(err, apperrors.ErrEncoderSetup) {
				t.Fatalf("got %v, want ErrEncoderSetup", err)
			}
			if !apperrors.IsCategory(err, apperrors.CategoryResource) {
				t.Errorf("category: %v", err)
			}
			if err := s.Abort(); err != nil {
				t.Errorf("Abort: %v", err)
			}
		})
	}
}

func TestFFmpeg_OddExtentsAllowedWithout420(t *testing.T) {
	s := sink.NewFFmpeg(sink.FFmpegOptions{Binary: "photoreel-no-such-ffmpeg", Codec: "ffv1", PixelFormat: "yuv444p"},
		core.SinkSpec{Path: "x.mkv", Width: 101, Height: 99, Timescale: 600, TicksPerFrame: 600})
	err := s.Start(context.Background())
	if errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("odd extents rejected for %s: %v", "yuv444p", err)
	}
}

// ── Factory ───────────────────────────────────────────────────────────────────

func TestFactory(t *testing.T) {
	cfg := config.Default()
	f, err := sink.NewFactory(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if f.Extension() != "mp4" {
		t.Errorf("ffmpeg extension: %s", f.Extension())
	}
	s, _ := f.NewSink(core.SinkSpec{})
	if _, ok := s.(*sink.FFmpeg); !ok {
		t.Errorf("ffmpeg factory built %T", s)
	}

	cfg.Sink = config.SinkMJPEG
	f, _ = sink.NewFactory(cfg)
	if f.Extension() != "avi" {
		t.Errorf("mjpeg extension: %s", f.Extension())
	}
	s, _ = f.NewSink(core.SinkSpec{})
	if _, ok := s.(*sink.MJPEG); !ok {
		t.Errorf("mjpeg factory built %T", s)
	}

	cfg.Sink = "gif"
	if _, err := sink.NewFactory(cfg); err == nil {
		t.Error("unknown sink: expected an error")
	}
}
