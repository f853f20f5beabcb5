// Package sink provides the video encoders frames are streamed into.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// FFmpegOptions configures the external encoder.
type FFmpegOptions struct {
	Binary      string
	Codec       string
	Preset      string
	CRF         int
	PixelFormat string
}

type sessionState int

const (
	stateNew sessionState = iota
	stateStarted
	stateFinished
	stateAborted
)

// FFmpeg streams raw RGBA frames into an ffmpeg child process over stdin.
// A blocked pipe write is the encoder's backpressure.
type FFmpeg struct {
	opts FFmpegOptions
	spec core.SinkSpec

	mu     sync.Mutex
	state  sessionState
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	frames int
}

// NewFFmpeg creates an ffmpeg sink for one output file.
func NewFFmpeg(opts FFmpegOptions, spec core.SinkSpec) *FFmpeg {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	return &FFmpeg{opts: opts, spec: spec, stderr: newTailBuffer(4096)}
}

// Args returns the ffmpeg command line, without the binary.
func (s *FFmpeg) Args() []string {
	in := ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", s.spec.Width, s.spec.Height),
		"framerate": fmt.Sprintf("%d/%d", s.spec.Timescale, s.spec.TicksPerFrame),
	}
	out := ffmpeg.KwArgs{"c:v": s.opts.Codec}
	if s.opts.Preset != "" {
		out["preset"] = s.opts.Preset
	}
	if s.opts.CRF > 0 {
		out["crf"] = s.opts.CRF
	}
	if s.opts.PixelFormat != "" {
		out["pix_fmt"] = s.opts.PixelFormat
	}
	if strings.HasSuffix(strings.ToLower(s.spec.Path), ".mp4") || strings.HasSuffix(strings.ToLower(s.spec.Path), ".mov") {
		out["movflags"] = "+faststart"
	}
	return ffmpeg.Input("pipe:", in).
		Output(s.spec.Path, out).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

func (s *FFmpeg) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateNew {
		panic("sink: ffmpeg session started twice")
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "ffmpeg.start", err)
	}
	if err := s.validate(); err != nil {
		return err
	}

	cmd := exec.Command(s.opts.Binary, s.Args()...)
	cmd.Stderr = s.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return setupErr(err)
	}
	if err := cmd.Start(); err != nil {
		return setupErr(err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.state = stateStarted
	return nil
}

func (s *FFmpeg) validate() error {
	if s.spec.Width <= 0 || s.spec.Height <= 0 {
		return setupErr(fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, s.spec.Width, s.spec.Height))
	}
	if s.spec.Timescale <= 0 || s.spec.TicksPerFrame <= 0 {
		return setupErr(fmt.Errorf("invalid frame rate %d/%d", s.spec.Timescale, s.spec.TicksPerFrame))
	}
	// 4:2:0 chroma subsampling needs even extents.
	if strings.Contains(s.opts.PixelFormat, "420") && (s.spec.Width%2 != 0 || s.spec.Height%2 != 0) {
		return setupErr(fmt.Errorf("%w: %dx%d is odd, %s requires even extents",
			apperrors.ErrInvalidDimensions, s.spec.Width, s.spec.Height, s.opts.PixelFormat))
	}
	if s.spec.Path == "" {
		return setupErr(errors.New("output path is empty"))
	}
	return nil
}

func (s *FFmpeg) Submit(ctx context.Context, f *core.Frame) error {
	s.mu.Lock()
	if s.state != stateStarted {
		s.mu.Unlock()
		panic("sink: submit outside an active ffmpeg session")
	}
	stdin := s.stdin
	s.mu.Unlock()

	if err := checkFrame(f, s.spec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.AtIndex(f.Index, apperrors.CategoryPipeline, "ffmpeg.submit", err)
	}

	stop := context.AfterFunc(ctx, s.kill)
	defer stop()
	if err := writeRGBA(stdin, f); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
			return apperrors.AtIndex(f.Index, apperrors.CategoryPipeline, "ffmpeg.submit", err)
		}
		return apperrors.AtIndex(f.Index, apperrors.CategoryEncode, "ffmpeg.submit",
			fmt.Errorf("%w (stderr: %s)", err, s.stderr.String()))
	}

	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

func (s *FFmpeg) Finish(ctx context.Context) (*core.SinkOutput, error) {
	s.mu.Lock()
	if s.state != stateStarted {
		s.mu.Unlock()
		panic("sink: finish outside an active ffmpeg session")
	}
	s.state = stateFinished
	cmd, stdin, frames := s.cmd, s.stdin, s.frames
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.kill)
	defer stop()

	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		_ = os.Remove(s.spec.Path)
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, "ffmpeg.finish", ctx.Err())
		}
		return nil, apperrors.New(apperrors.CategoryFinalize, "ffmpeg.finish",
			fmt.Errorf("%w: %v: %s", apperrors.ErrEncoderIncomplete, err, s.stderr.String()))
	}
	if _, err := os.Stat(s.spec.Path); err != nil {
		return nil, apperrors.New(apperrors.CategoryFinalize, "ffmpeg.finish",
			fmt.Errorf("%w: %v", apperrors.ErrEncoderIncomplete, err))
	}
	return &core.SinkOutput{Path: s.spec.Path, Width: s.spec.Width, Height: s.spec.Height, Frames: frames}, nil
}

func (s *FFmpeg) Abort() error {
	s.mu.Lock()
	prev := s.state
	if prev == stateAborted || prev == stateFinished {
		s.mu.Unlock()
		return nil
	}
	s.state = stateAborted
	cmd, stdin := s.cmd, s.stdin
	s.mu.Unlock()

	if prev == stateNew {
		return nil
	}
	_ = stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	if err := os.Remove(s.spec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryFinalize, "ffmpeg.abort", err)
	}
	return nil
}

func (s *FFmpeg) kill() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// writeRGBA writes the frame's pixels row by row when the buffer is padded
// and in one call otherwise.
func writeRGBA(w io.Writer, f *core.Frame) error {
	b := f.Buffer.Bounds()
	rowLen := b.Dx() * 4
	if f.Buffer.Stride == rowLen {
		_, err := w.Write(f.Buffer.Pix[:rowLen*b.Dy()])
		return err
	}
	for y := 0; y < b.Dy(); y++ {
		off := y * f.Buffer.Stride
		if _, err := w.Write(f.Buffer.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

func checkFrame(f *core.Frame, spec core.SinkSpec) error {
	if f == nil || f.Buffer == nil {
		return apperrors.New(apperrors.CategoryEncode, "sink.submit", apperrors.ErrEmptyInput)
	}
	b := f.Buffer.Bounds()
	if b.Dx() != spec.Width || b.Dy() != spec.Height {
		return apperrors.AtIndex(f.Index, apperrors.CategoryEncode, "sink.submit",
			fmt.Errorf("%w: frame %dx%d, session %dx%d", apperrors.ErrInvalidDimensions, b.Dx(), b.Dy(), spec.Width, spec.Height))
	}
	return nil
}

func setupErr(err error) error {
	return apperrors.New(apperrors.CategoryResource, "sink.start", fmt.Errorf("%w: %w", apperrors.ErrEncoderSetup, err))
}

// ── stderr tail ───────────────────────────────────────────────────────────────

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(limit int) *tailBuffer { return &tailBuffer{max: limit} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

var _ core.Sink = (*FFmpeg)(nil)
