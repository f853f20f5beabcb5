// Package photoreel turns an ordered list of photos into a single video.
//
// Photos are fetched and composited concurrently, then streamed into a video
// sink strictly in order.  Progress and completion are published through a
// state machine that any number of observers can subscribe to.
package photoreel

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/photoreel/adapters/decoder"
	"github.com/Skryldev/photoreel/adapters/sink"
	"github.com/Skryldev/photoreel/adapters/source"
	"github.com/Skryldev/photoreel/adapters/vips"
	"github.com/Skryldev/photoreel/compositor"
	"github.com/Skryldev/photoreel/config"
	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/hooks"
	"github.com/Skryldev/photoreel/pipeline"
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Engine is the primary entry point.  One merge runs at a time; Merge
// returns ErrBusy while another merge is in progress or its result has not
// been acknowledged with Reset.
type Engine struct {
	cfg      config.Config
	reg      *core.DefaultRegistry
	defaults core.RenderSettings

	library  core.LibraryFetcher
	transfer core.TransferFetcher
	sources  core.SourceAdapter
	sinks    core.SinkFactory

	watermarks *compositor.WatermarkCache
	state      *core.StateMachine
	vips       *vips.Backend

	logger  core.Logger
	metrics core.MetricsCollector
	hooks   []core.Hook

	mergedCount int64
	errorCount  int64
	// frame buffers still checked out when the last merge's pipeline returned
	heldBuffers int64
}

// Option customises an Engine at construction.
type Option func(*Engine)

// WithLibrary sets the fetcher used for LibraryID sources.
func WithLibrary(f core.LibraryFetcher) Option { return func(e *Engine) { e.library = f } }

// WithTransfer sets the fetcher used for TransferHandle sources.
func WithTransfer(f core.TransferFetcher) Option { return func(e *Engine) { e.transfer = f } }

// WithSourceAdapter replaces source dispatch entirely.
func WithSourceAdapter(a core.SourceAdapter) Option { return func(e *Engine) { e.sources = a } }

// WithSinkFactory replaces the configured video sink.
func WithSinkFactory(f core.SinkFactory) Option { return func(e *Engine) { e.sinks = f } }

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(m core.MetricsCollector) Option { return func(e *Engine) { e.metrics = m } }

// WithHook registers a frame stage observer.
func WithHook(h core.Hook) Option { return func(e *Engine) { e.hooks = append(e.hooks, h) } }

// WithWatermarkCache replaces the default watermark assets.
func WithWatermarkCache(c *compositor.WatermarkCache) Option {
	return func(e *Engine) { e.watermarks = c }
}

// New creates a fully wired Engine.  Sources and sinks not supplied through
// options are built from cfg: a filesystem library when Library.RootDir is
// set, an S3 transfer store when S3.Bucket is set.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "engine.new", err)
	}
	bg, err := core.ParseARGB(cfg.Render.Background)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "engine.new", err)
	}

	e := &Engine{
		cfg: cfg,
		reg: core.NewRegistry(),
		defaults: core.RenderSettings{
			Width:          cfg.Render.Width,
			Height:         cfg.Render.Height,
			FrameDuration:  cfg.Render.FrameDuration,
			Background:     bg,
			Watermark:      cfg.Render.Watermark,
			WatermarkLabel: cfg.Render.WatermarkLabel,
		},
		state: core.NewStateMachine(),
	}
	for _, opt := range opts {
		opt(e)
	}

	// Register built-in decoders.
	e.reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG(cfg.MaxSourcePixels))
	e.reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG(cfg.MaxSourcePixels))
	e.reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF(cfg.MaxSourcePixels))
	e.reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP(cfg.MaxSourcePixels))
	e.reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP(cfg.MaxSourcePixels))
	e.reg.RegisterDecoder(core.FormatTIFF, decoder.NewTIFF(cfg.MaxSourcePixels))
	if cfg.Decoder == config.DecoderVips {
		e.vips = vips.NewBackend(vips.BackendConfig{
			MaxCacheSize: cfg.Vips.MaxCacheSize,
			MaxWorkers:   pipeline.Concurrency(cfg.Workers, cfg.Priority),
			ReportLeaks:  cfg.Vips.ReportLeaks,
			MaxPixels:    cfg.MaxSourcePixels,
		})
		vips.RegisterVipsBackend(e.reg, e.vips)
	}

	if e.logger == nil {
		e.logger = hooks.NopLogger{}
	}
	e.state.SetLogger(e.logger)
	if e.watermarks == nil {
		e.watermarks = compositor.NewWatermarkCache()
	}
	if e.sources == nil {
		if err := e.buildSources(); err != nil {
			e.Close()
			return nil, err
		}
	}
	if e.sinks == nil {
		f, err := sink.NewFactory(cfg)
		if err != nil {
			e.Close()
			return nil, apperrors.New(apperrors.CategoryConfig, "engine.new", err)
		}
		e.sinks = f
	}
	return e, nil
}

func (e *Engine) buildSources() error {
	if e.library == nil && e.cfg.Library.RootDir != "" {
		lib, err := source.NewLibrary(e.cfg.Library.RootDir, e.cfg.MaxImageBytes, e.cfg.ChunkSize)
		if err != nil {
			return apperrors.New(apperrors.CategoryConfig, "engine.library", err)
		}
		e.library = lib
	}
	if e.transfer == nil && e.cfg.S3.Bucket != "" {
		s3src, err := source.NewS3FromConfig(context.Background(), source.S3Config{
			Bucket:       e.cfg.S3.Bucket,
			Region:       e.cfg.S3.Region,
			Profile:      e.cfg.S3.Profile,
			Endpoint:     e.cfg.S3.Endpoint,
			UsePathStyle: e.cfg.S3.UsePathStyle,
		}, e.cfg.MaxImageBytes, e.cfg.ChunkSize)
		if err != nil {
			return apperrors.New(apperrors.CategoryConfig, "engine.s3", err)
		}
		e.transfer = s3src
	}
	e.sources = source.NewAdapter(e.library, e.transfer)
	return nil
}

// Close releases backend resources.  The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e.vips != nil {
		e.vips.Shutdown()
		e.vips = nil
	}
}

// SetLogger attaches a structured logger.
func (e *Engine) SetLogger(l core.Logger) {
	e.logger = l
	e.state.SetLogger(l)
}

// SetMetrics attaches a metrics collector.
func (e *Engine) SetMetrics(m core.MetricsCollector) { e.metrics = m }

// AddHook registers an observer for frame stage events.
func (e *Engine) AddHook(h core.Hook) { e.hooks = append(e.hooks, h) }

// RegisterDecoder registers a custom decoder for the given format.
func (e *Engine) RegisterDecoder(f core.Format, d core.Decoder) { e.reg.RegisterDecoder(f, d) }

// DefaultSettings returns the render settings derived from the config.
func (e *Engine) DefaultSettings() core.RenderSettings { return e.defaults }

// Subscribe returns a new observer of state transitions.
func (e *Engine) Subscribe() *core.Subscription { return e.state.Subscribe() }

// State returns a snapshot of the current state.
func (e *Engine) State() core.State { return e.state.Current() }

// Reset returns the engine to Idle, acknowledging a finished merge.
func (e *Engine) Reset() { e.state.Reset() }

// Stats returns lightweight merge statistics.
func (e *Engine) Stats() (merged, errors int64) {
	return atomic.LoadInt64(&e.mergedCount), atomic.LoadInt64(&e.errorCount)
}

// ── Merge ─────────────────────────────────────────────────────────────────────

// Merge renders req into a single video file.  A zero Settings uses
// DefaultSettings.  On failure the engine returns to Idle, any partial output
// is removed, and the error carries the offending frame index when one is
// to blame; use errors.ReasonOf to classify it.
func (e *Engine) Merge(ctx context.Context, req core.MergeRequest) (*core.MergeResult, error) {
	ordered, err := req.Ordered()
	if err != nil {
		return nil, err
	}
	settings := req.Settings
	if settings == (core.RenderSettings{}) {
		settings = e.defaults
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if err := e.state.Start(); err != nil {
		return nil, err
	}

	id := uuid.New()
	start := time.Now()
	e.logger.Info("merge.start", "id", id.String(), "frames", len(ordered),
		"width", settings.Width, "height", settings.Height)

	result, err := e.merge(ctx, id, ordered, settings, req.OutputPath)
	if err != nil {
		atomic.AddInt64(&e.errorCount, 1)
		e.state.Reset()
		e.logger.Error("merge.failed", "id", id.String(),
			"reason", string(apperrors.ReasonOf(err)),
			"index", apperrors.IndexOf(err),
			"error", err.Error())
		return nil, err
	}

	atomic.AddInt64(&e.mergedCount, 1)
	e.state.Finish(result)
	e.logger.Info("merge.done", "id", id.String(), "output", result.Output,
		"frames", result.Frames, "elapsed_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (e *Engine) merge(ctx context.Context, id uuid.UUID, sources []core.ImageSource, settings core.RenderSettings, outputPath string) (*core.MergeResult, error) {
	if outputPath == "" {
		outputPath = filepath.Join(e.cfg.OutputDir, id.String()+"."+e.sinks.Extension())
	}

	limit := pipeline.Concurrency(e.cfg.Workers, e.cfg.Priority)
	poolSize := limit
	if e.cfg.PoolSize > 0 && e.cfg.PoolSize < limit {
		// Every admitted frame needs a buffer; a smaller pool caps admission.
		limit = e.cfg.PoolSize
		poolSize = e.cfg.PoolSize
	} else if e.cfg.PoolSize > limit {
		poolSize = e.cfg.PoolSize
	}

	pool, err := compositor.NewPool(settings.Width, settings.Height, poolSize)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	if e.metrics != nil {
		e.metrics.RecordMemory(pool.Bytes())
	}

	var watermark *image.RGBA
	if settings.Watermark {
		watermark, err = e.watermarks.Get(settings.Width, settings.Height, settings.WatermarkLabel)
		if err != nil {
			return nil, err
		}
	}

	runner := pipeline.NewRunner().
		Use(
			&pipeline.FetchStage{Adapter: e.sources},
			&pipeline.CompositeStage{
				Compositor: compositor.New(e.reg, pool, e.cfg.Timescale),
				Settings:   settings,
				Watermark:  watermark,
			},
		).
		AddHook(e.hooks...)
	if e.metrics != nil {
		runner.AddHook(hooks.NewMetricsHook(e.metrics))
	}

	ticks := core.TicksFor(settings.FrameDuration, e.cfg.Timescale)
	out, err := e.sinks.NewSink(core.SinkSpec{
		Path:          outputPath,
		Width:         settings.Width,
		Height:        settings.Height,
		Timescale:     e.cfg.Timescale,
		TicksPerFrame: ticks,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryResource, "merge.sink", fmt.Errorf("%w: %w", apperrors.ErrEncoderSetup, err))
	}
	if err := out.Start(ctx); err != nil {
		return nil, err
	}

	run := &pipeline.Ordered[*core.Frame]{
		Limit: limit,
		Task: func(ctx context.Context, index int) (*core.Frame, error) {
			job := &core.FrameJob{Index: index, Source: sources[index]}
			if _, err := runner.Run(ctx, job); err != nil {
				job.Frame.Release()
				return nil, err
			}
			return job.Frame, nil
		},
		Consume: func(ctx context.Context, _ int, f *core.Frame) error {
			defer f.Release()
			return out.Submit(ctx, f)
		},
		Discard: func(_ int, f *core.Frame) { f.Release() },
		Progress: func(_, total int) {
			e.state.Advance(1 / float64(total))
		},
	}
	runErr := run.Run(ctx, len(sources))
	held := pool.Outstanding()
	atomic.StoreInt64(&e.heldBuffers, int64(held))
	if held > 0 {
		e.logger.Warn("merge.buffers.held", "id", id.String(), "count", held)
	}
	if err := runErr; err != nil {
		if abortErr := out.Abort(); abortErr != nil {
			e.logger.Warn("merge.abort.failed", "id", id.String(), "error", abortErr.Error())
		}
		return nil, err
	}

	so, err := out.Finish(ctx)
	if err != nil {
		return nil, err
	}
	perFrame := core.Rational{Value: ticks, Timescale: e.cfg.Timescale}.Duration()
	if so.FrameDuration > 0 {
		perFrame = so.FrameDuration
	}
	return &core.MergeResult{
		ID:       id,
		Output:   so.Path,
		Width:    so.Width,
		Height:   so.Height,
		Frames:   so.Frames,
		Duration: time.Duration(so.Frames) * perFrame,
	}, nil
}
