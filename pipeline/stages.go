package pipeline

import (
	"context"
	"image"

	"github.com/Skryldev/photoreel/compositor"
	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

// Stage names reported to hooks and metrics.
const (
	StageFetch     = "fetch"
	StageComposite = "composite"
)

// ── Fetch ─────────────────────────────────────────────────────────────────────

// FetchStage resolves job.Source into encoded bytes.
type FetchStage struct {
	Adapter core.SourceAdapter
}

func (s *FetchStage) Name() string { return StageFetch }

func (s *FetchStage) Execute(ctx context.Context, job *core.FrameJob) error {
	data, err := s.Adapter.Convert(ctx, job.Source)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryFetch, s.Name(), err)
	}
	job.Data = data
	job.Format = core.Format(utils.DetectFormat(data))
	return nil
}

// ── Composite ─────────────────────────────────────────────────────────────────

// CompositeStage decodes job.Data and renders it onto a pooled canvas.  The
// encoded bytes are dropped once the frame exists.
type CompositeStage struct {
	Compositor *compositor.Compositor
	Settings   core.RenderSettings
	// Watermark is the shared overlay for this merge, or nil.
	Watermark *image.RGBA
}

func (s *CompositeStage) Name() string { return StageComposite }

func (s *CompositeStage) Execute(ctx context.Context, job *core.FrameJob) error {
	if len(job.Data) == 0 {
		return apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	frame, err := s.Compositor.Composite(ctx, job.Data, job.Index, s.Settings, s.Watermark)
	if err != nil {
		return err
	}
	job.Frame = frame
	job.Data = nil
	return nil
}

var (
	_ core.Stage = (*FetchStage)(nil)
	_ core.Stage = (*CompositeStage)(nil)
)
