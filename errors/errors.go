package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryFetch    Category = "fetch"
	CategoryDecode   Category = "decode"
	CategoryResource Category = "resource"
	CategoryRender   Category = "render"
	CategoryEncode   Category = "encode"
	CategoryFinalize Category = "finalize"
	CategoryPipeline Category = "pipeline"
	CategoryConfig   Category = "config"
)

// NoIndex marks an error that is not attributable to a single input.
const NoIndex = -1

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Index     int    // offending frame index, NoIndex when not applicable
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("[%s] %s (index %d): %v", e.Category, e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Index: NoIndex, Err: err}
}

// Wrap wraps an existing error with context.  An error that is already a
// ProcessingError keeps its category and index.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// Transient marks a fetch failure that may succeed if attempted again, e.g.
// a network error talking to object storage.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryFetch, Op: op, Index: NoIndex, Err: err, Retryable: true}
}

// AtIndex attributes err to the input at index.  Errors that are not yet a
// ProcessingError are classified under fallback.
func AtIndex(index int, fallback Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		if pe.Index == index {
			return err
		}
		cp := *pe
		cp.Index = index
		return &cp
	}
	return &ProcessingError{Category: fallback, Op: op, Index: index, Err: err}
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// IndexOf returns the frame index err is attributed to, or NoIndex.
func IndexOf(err error) int {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Index
	}
	return NoIndex
}

// Reason is the user-facing classification of a failed merge.
type Reason string

const (
	ReasonUnreadablePhoto Reason = "unreadable_photo" // a photo could not be fetched or decoded
	ReasonRenderFailed    Reason = "render_failed"    // the device could not build the video
	ReasonSetupFailed     Reason = "setup_failed"     // storage or encoder setup failed
	ReasonCanceled        Reason = "canceled"
	ReasonUnknown         Reason = "unknown"
)

// ReasonOf maps err onto the Reason shown to the user.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}
	var pe *ProcessingError
	if !errors.As(err, &pe) {
		return ReasonUnknown
	}
	switch pe.Category {
	case CategoryFetch, CategoryDecode:
		return ReasonUnreadablePhoto
	case CategoryRender, CategoryEncode:
		return ReasonRenderFailed
	case CategoryResource, CategoryFinalize, CategoryConfig:
		return ReasonSetupFailed
	}
	return ReasonUnknown
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrNotFound          = errors.New("photo not found")
	ErrNoData            = errors.New("photo source returned no data")
	ErrTooLarge          = errors.New("photo exceeds size limit")
	ErrInvalidSource     = errors.New("invalid photo source")
	ErrPoolClosed        = errors.New("buffer pool closed")
	ErrBusy              = errors.New("engine is not idle")
	ErrInvalidOrder      = errors.New("custom order is not a permutation of the inputs")
	ErrNoInputs          = errors.New("merge request has no inputs")
	ErrWatermarkAsset    = errors.New("watermark icon asset missing")
	ErrWatermarkText     = errors.New("watermark label could not be rendered")
	ErrWatermarkBand     = errors.New("watermark background band could not be rendered")
	ErrEncoderSetup      = errors.New("encoder session could not be started")
	ErrEncoderIncomplete = errors.New("encoder session did not complete")
)
