package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Decoder converts encoded bytes into an in-memory image.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader) (image.Image, error)
	CanDecode(format Format) bool
}

// Encoder serialises a frame image, e.g. for sinks that store still frames.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-100; 0 = use encoder default
}

// Renderer is implemented by decoders that keep transient per-render state
// (operation caches, scratch images).  Flush is called after every frame.
type Renderer interface {
	Flush()
}

// LibraryFetcher loads a photo from the local library.  Callers guarantee
// that library access has been authorised before the first call.
type LibraryFetcher interface {
	FetchLibrary(ctx context.Context, id LibraryID) ([]byte, error)
}

// TransferFetcher loads a photo handed over through a transfer handle.
type TransferFetcher interface {
	FetchTransfer(ctx context.Context, h TransferHandle) ([]byte, error)
}

// SourceAdapter converts any ImageSource into encoded image bytes.
type SourceAdapter interface {
	Convert(ctx context.Context, src ImageSource) ([]byte, error)
}

// Sink is a sequential video encoding session.  Submit must only be called
// between Start and Finish, from one goroutine at a time.
type Sink interface {
	Start(ctx context.Context) error
	// Submit blocks until the encoder has accepted the frame.  The caller
	// keeps ownership of the frame buffer.
	Submit(ctx context.Context, f *Frame) error
	Finish(ctx context.Context) (*SinkOutput, error)
	// Abort tears the session down without finalising and removes any
	// partial output.
	Abort() error
}

// SinkSpec is what a sink needs to open a session.
type SinkSpec struct {
	Path          string
	Width         int
	Height        int
	Timescale     int32
	TicksPerFrame int64
}

// SinkFactory opens a new sink for one merge.
type SinkFactory interface {
	NewSink(spec SinkSpec) (Sink, error)
	// Extension is the file extension of produced videos, without the dot.
	Extension() string
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stage string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stage string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Hook is an optional observer invoked around per-frame stages.
type Hook interface {
	BeforeStage(ctx context.Context, stage string, job *FrameJob)
	AfterStage(ctx context.Context, stage string, job *FrameJob, d time.Duration, err error)
}

// Stage is one step of the per-frame work.  Implementations must be safe for
// concurrent use across goroutines.
type Stage interface {
	Name() string
	Execute(ctx context.Context, job *FrameJob) error
}

// Registry maps Format values to Decoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	RegisterDecoder(format Format, d Decoder)
	Decoders() []Decoder
}

