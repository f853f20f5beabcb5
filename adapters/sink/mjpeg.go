package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/icza/mjpeg"

	"github.com/Skryldev/photoreel/adapters/encoder"
	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// MaxMJPEGRate caps the AVI frame rate.  Durations that would need a
// faster rate are approximated at this rate.
const MaxMJPEGRate = 120

// MJPEG writes an AVI file of JPEG frames without any external process.
// AVI needs an integral frame rate, so each frame is repeated to cover its
// duration.
type MJPEG struct {
	spec    core.SinkSpec
	encoder *encoder.FrameEncoder

	mu     sync.Mutex
	state  sessionState
	writer mjpeg.AviWriter
	frames int
}

// NewMJPEG creates an MJPEG sink for one output file.
func NewMJPEG(quality int, spec core.SinkSpec) *MJPEG {
	return &MJPEG{spec: spec, encoder: encoder.NewFrameEncoder(quality)}
}

// Rate returns the AVI frame rate and how many times each frame is written.
// repeats/fps equals TicksPerFrame/Timescale whenever the reduced fraction
// fits under MaxMJPEGRate.
func (s *MJPEG) Rate() (fps int32, repeats int) {
	ticks, scale := s.spec.TicksPerFrame, int64(s.spec.Timescale)
	if ticks <= 0 || scale <= 0 {
		return 1, 1
	}
	g := gcd(ticks, scale)
	if scale/g <= MaxMJPEGRate {
		return int32(scale / g), int(ticks / g)
	}
	// round(ticks*MaxMJPEGRate/scale) in integers
	n := (2*ticks*MaxMJPEGRate + scale) / (2 * scale)
	return MaxMJPEGRate, int(max(1, n))
}

// FrameDuration is how long each submitted frame lasts in the file.
func (s *MJPEG) FrameDuration() time.Duration {
	fps, repeats := s.Rate()
	return time.Duration(repeats) * time.Second / time.Duration(fps)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func (s *MJPEG) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateNew {
		panic("sink: mjpeg session started twice")
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "mjpeg.start", err)
	}
	if s.spec.Width <= 0 || s.spec.Height <= 0 {
		return setupErr(fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, s.spec.Width, s.spec.Height))
	}
	if s.spec.Timescale <= 0 || s.spec.TicksPerFrame <= 0 {
		return setupErr(fmt.Errorf("invalid frame rate %d/%d", s.spec.Timescale, s.spec.TicksPerFrame))
	}

	fps, _ := s.Rate()
	w, err := mjpeg.New(s.spec.Path, int32(s.spec.Width), int32(s.spec.Height), fps)
	if err != nil {
		return setupErr(err)
	}
	s.writer = w
	s.state = stateStarted
	return nil
}

func (s *MJPEG) Submit(ctx context.Context, f *core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStarted {
		panic("sink: submit outside an active mjpeg session")
	}
	if err := checkFrame(f, s.spec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.AtIndex(f.Index, apperrors.CategoryPipeline, "mjpeg.submit", err)
	}

	data, err := s.encoder.Encode(ctx, f)
	if err != nil {
		return err
	}
	_, repeats := s.Rate()
	for i := 0; i < repeats; i++ {
		if err := s.writer.AddFrame(data); err != nil {
			return apperrors.AtIndex(f.Index, apperrors.CategoryEncode, "mjpeg.submit", err)
		}
	}
	s.frames++
	return nil
}

func (s *MJPEG) Finish(ctx context.Context) (*core.SinkOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStarted {
		panic("sink: finish outside an active mjpeg session")
	}
	s.state = stateFinished
	if err := ctx.Err(); err != nil {
		_ = s.writer.Close()
		_ = os.Remove(s.spec.Path)
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "mjpeg.finish", err)
	}
	if err := s.writer.Close(); err != nil {
		_ = os.Remove(s.spec.Path)
		return nil, apperrors.New(apperrors.CategoryFinalize, "mjpeg.finish",
			fmt.Errorf("%w: %w", apperrors.ErrEncoderIncomplete, err))
	}
	return &core.SinkOutput{
		Path:          s.spec.Path,
		Width:         s.spec.Width,
		Height:        s.spec.Height,
		Frames:        s.frames,
		FrameDuration: s.FrameDuration(),
	}, nil
}

func (s *MJPEG) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if prev == stateAborted || prev == stateFinished {
		return nil
	}
	s.state = stateAborted
	if prev == stateNew {
		return nil
	}
	_ = s.writer.Close()
	if err := os.Remove(s.spec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryFinalize, "mjpeg.abort", err)
	}
	return nil
}

var _ core.Sink = (*MJPEG)(nil)
