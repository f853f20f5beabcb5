package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// Runner executes the per-frame stages in sequence with hook support.
// It holds no per-frame state and may be shared across goroutines.
type Runner struct {
	stages []core.Stage
	hooks  []core.Hook
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner { return &Runner{} }

// Use appends stages.  Returns the same Runner for chaining.
func (r *Runner) Use(s ...core.Stage) *Runner {
	r.stages = append(r.stages, s...)
	return r
}

// AddHook registers an observer.
func (r *Runner) AddHook(h ...core.Hook) *Runner {
	r.hooks = append(r.hooks, h...)
	return r
}

// Stages returns the stage names in execution order.
func (r *Runner) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage on job and returns per-stage timings.  A stage
// error stops the run and is attributed to job.Index.
func (r *Runner) Run(ctx context.Context, job *core.FrameJob) (map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(r.stages))
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return timings, apperrors.AtIndex(job.Index, apperrors.CategoryPipeline, stage.Name(), err)
		}

		r.callHooksBefore(ctx, stage.Name(), job)
		start := time.Now()
		err := stage.Execute(ctx, job)
		elapsed := time.Since(start)
		timings[stage.Name()] = elapsed
		r.callHooksAfter(ctx, stage.Name(), job, elapsed, err)

		if err != nil {
			return timings, apperrors.AtIndex(job.Index, apperrors.CategoryPipeline, stage.Name(), err)
		}
	}
	return timings, nil
}

func (r *Runner) callHooksBefore(ctx context.Context, name string, job *core.FrameJob) {
	for _, h := range r.hooks {
		h.BeforeStage(ctx, name, job)
	}
}

func (r *Runner) callHooksAfter(ctx context.Context, name string, job *core.FrameJob, d time.Duration, err error) {
	for _, h := range r.hooks {
		h.AfterStage(ctx, name, job, d, err)
	}
}
