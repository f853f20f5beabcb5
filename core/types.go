package core

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Skryldev/photoreel/errors"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// ── Sources ───────────────────────────────────────────────────────────────────

// ImageSource is an opaque handle to one input photo.  The variants are
// LibraryID and TransferHandle.
type ImageSource interface {
	isImageSource()
	String() string
}

// LibraryID identifies a photo inside the local photo library.
type LibraryID string

func (LibraryID) isImageSource()   {}
func (l LibraryID) String() string { return "library:" + string(l) }

// TransferHandle points at a photo handed over by a picker and parked in
// object storage.  An empty Bucket selects the configured default bucket.
type TransferHandle struct {
	Bucket string
	Key    string
}

func (TransferHandle) isImageSource() {}
func (t TransferHandle) String() string {
	return "transfer:" + t.Bucket + "/" + t.Key
}

// ── Request ───────────────────────────────────────────────────────────────────

// ARGB is an alpha-first 8-bit-per-channel color.
type ARGB struct {
	A, R, G, B uint8
}

// RGBA converts c to a premultiplied color.RGBA.
func (c ARGB) RGBA() color.RGBA {
	pre := func(v uint8) uint8 { return uint8(uint16(v) * uint16(c.A) / 255) }
	return color.RGBA{R: pre(c.R), G: pre(c.G), B: pre(c.B), A: c.A}
}

// ParseARGB parses "#AARRGGBB" or "#RRGGBB" (opaque).
func ParseARGB(s string) (ARGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 6 {
		h = "FF" + h
	}
	if len(h) != 8 {
		return ARGB{}, fmt.Errorf("color %q: want #AARRGGBB or #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return ARGB{}, fmt.Errorf("color %q: %w", s, err)
	}
	return ARGB{A: uint8(v >> 24), R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// RenderSettings describes the output canvas for one merge.
type RenderSettings struct {
	Width         int
	Height        int
	FrameDuration time.Duration
	Background    ARGB
	Watermark     bool
	// WatermarkLabel is the text drawn next to the watermark icon.
	WatermarkLabel string
}

// Validate checks the canvas invariants.
func (s RenderSettings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, s.Width, s.Height))
	}
	if s.FrameDuration <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("frame duration must be positive, got %s", s.FrameDuration))
	}
	return nil
}

// Bounds returns the canvas rectangle.
func (s RenderSettings) Bounds() image.Rectangle { return image.Rect(0, 0, s.Width, s.Height) }

// MergeRequest is an ordered list of photos plus how to render them.  It is
// not modified by the engine.
type MergeRequest struct {
	Sources []ImageSource
	// CustomOrder, when non-nil, is a permutation of source indices: frame i is
	// rendered from Sources[CustomOrder[i]].
	CustomOrder []int
	Settings    RenderSettings
	// OutputPath overrides the derived output location.
	OutputPath string
}

// Ordered returns the sources in frame order.
func (r MergeRequest) Ordered() ([]ImageSource, error) {
	if len(r.Sources) == 0 {
		return nil, apperrors.New(apperrors.CategoryConfig, "request.order", apperrors.ErrNoInputs)
	}
	for i, src := range r.Sources {
		if src == nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "request.order",
				fmt.Errorf("%w: nil source at position %d", apperrors.ErrInvalidSource, i))
		}
	}
	if r.CustomOrder == nil {
		return r.Sources, nil
	}
	if len(r.CustomOrder) != len(r.Sources) {
		return nil, apperrors.New(apperrors.CategoryConfig, "request.order",
			fmt.Errorf("%w: %d indices for %d inputs", apperrors.ErrInvalidOrder, len(r.CustomOrder), len(r.Sources)))
	}
	seen := make([]bool, len(r.Sources))
	out := make([]ImageSource, len(r.Sources))
	for i, idx := range r.CustomOrder {
		if idx < 0 || idx >= len(r.Sources) || seen[idx] {
			return nil, apperrors.New(apperrors.CategoryConfig, "request.order",
				fmt.Errorf("%w: bad index %d at position %d", apperrors.ErrInvalidOrder, idx, i))
		}
		seen[idx] = true
		out[i] = r.Sources[idx]
	}
	return out, nil
}

// ── Frames ────────────────────────────────────────────────────────────────────

// Rational is a presentation time expressed as Value/Timescale seconds.
type Rational struct {
	Value     int64
	Timescale int32
}

// Seconds returns r as floating-point seconds.
func (r Rational) Seconds() float64 {
	if r.Timescale == 0 {
		return 0
	}
	return float64(r.Value) / float64(r.Timescale)
}

// Duration returns r as a time.Duration.
func (r Rational) Duration() time.Duration {
	if r.Timescale == 0 {
		return 0
	}
	return time.Duration(r.Value) * time.Second / time.Duration(r.Timescale)
}

// TicksFor converts d into timescale ticks, rounding to nearest and never
// returning less than one tick.
func TicksFor(d time.Duration, timescale int32) int64 {
	t := (int64(d)*int64(timescale) + int64(time.Second)/2) / int64(time.Second)
	if t < 1 {
		t = 1
	}
	return t
}

// BufferReleaser returns a pooled pixel buffer.
type BufferReleaser interface {
	Release(buf *image.RGBA)
}

// Frame is one composited canvas ready for the sink.  Buffer belongs to a
// pool; call Release exactly once after the sink has consumed it.
type Frame struct {
	Index  int
	PTS    Rational
	Buffer *image.RGBA

	owner    BufferReleaser
	released atomic.Bool
}

// NewFrame binds buf to the pool that handed it out.
func NewFrame(index int, pts Rational, buf *image.RGBA, owner BufferReleaser) *Frame {
	return &Frame{Index: index, PTS: pts, Buffer: buf, owner: owner}
}

// Release returns the buffer to its pool.  Later calls are no-ops.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.owner != nil && f.Buffer != nil {
		f.owner.Release(f.Buffer)
	}
	f.Buffer = nil
}

// ── Results ───────────────────────────────────────────────────────────────────

// SinkOutput is what a sink reports after a successful finish.
type SinkOutput struct {
	Path   string
	Width  int
	Height int
	Frames int
	// FrameDuration is how long each frame is shown in the written file.
	// Zero means exactly the requested duration.
	FrameDuration time.Duration
}

// MergeResult is returned to the caller once the video has been written.
type MergeResult struct {
	ID       uuid.UUID
	Output   string
	Width    int
	Height   int
	Frames   int
	Duration time.Duration
}

// FrameJob carries one input through the per-frame stages.
type FrameJob struct {
	Index  int
	Source ImageSource
	Data   []byte
	Format Format
	Frame  *Frame
}
