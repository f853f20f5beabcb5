// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewTextLogger writes slog text records at or above level ("debug", "info",
// "warn", "error") to w.
func NewTextLogger(w io.Writer, level string) *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []interface{}) []any { return fields }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each frame stage.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStage(_ context.Context, stage string, job *core.FrameJob) {
	h.logger.Debug("frame.stage.start",
		"stage", stage,
		"index", job.Index,
		"source", job.Source.String(),
	)
}

func (h *LoggingHook) AfterStage(_ context.Context, stage string, job *core.FrameJob, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("frame.stage.error",
			"stage", stage,
			"index", job.Index,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	fields := []interface{}{
		"stage", stage,
		"index", job.Index,
		"duration_ms", d.Milliseconds(),
	}
	if len(job.Data) > 0 {
		fields = append(fields, "bytes", len(job.Data), "format", string(job.Format))
	}
	if job.Frame != nil {
		fields = append(fields, "pts", job.Frame.PTS.Seconds())
	}
	h.logger.Debug("frame.stage.done", fields...)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stageDurationsMs map[string]int64 // cumulative ms per stage
	stageCalls       map[string]int64 // call count per stage
	stageErrors      map[string]int64
	errorCategories  map[string]int64

	totalThroughputB int64
	peakMemoryB      int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[string]int64),
		stageCalls:       make(map[string]int64),
		stageErrors:      make(map[string]int64),
		errorCategories:  make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stage string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.stageDurationsMs[stage] += ms
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

// RecordMemory keeps the largest value reported.
func (m *InMemoryMetrics) RecordMemory(bytes int64) {
	for {
		cur := atomic.LoadInt64(&m.peakMemoryB)
		if bytes <= cur || atomic.CompareAndSwapInt64(&m.peakMemoryB, cur, bytes) {
			return
		}
	}
}

func (m *InMemoryMetrics) RecordError(stage string, category string) {
	m.mu.Lock()
	m.stageErrors[stage]++
	m.errorCategories[category]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StageDurationsMs: make(map[string]int64, len(m.stageDurationsMs)),
		StageCalls:       make(map[string]int64, len(m.stageCalls)),
		StageErrors:      make(map[string]int64, len(m.stageErrors)),
		ErrorCategories:  make(map[string]int64, len(m.errorCategories)),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
		PeakMemoryB:      atomic.LoadInt64(&m.peakMemoryB),
	}
	for k, v := range m.stageDurationsMs {
		snap.StageDurationsMs[k] = v
	}
	for k, v := range m.stageCalls {
		snap.StageCalls[k] = v
	}
	for k, v := range m.stageErrors {
		snap.StageErrors[k] = v
	}
	for k, v := range m.errorCategories {
		snap.ErrorCategories[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StageDurationsMs map[string]int64
	StageCalls       map[string]int64
	StageErrors      map[string]int64
	ErrorCategories  map[string]int64
	TotalThroughputB int64
	PeakMemoryB      int64
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds stage events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStage(_ context.Context, _ string, _ *core.FrameJob) {}

func (h *MetricsHook) AfterStage(_ context.Context, stage string, job *core.FrameJob, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stage, d)
	if err != nil {
		h.collector.RecordError(stage, categoryOf(err))
		return
	}
	if len(job.Data) > 0 {
		h.collector.RecordThroughput(int64(len(job.Data)))
	}
}

func categoryOf(err error) string {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return string(pe.Category)
	}
	return "unknown"
}

var (
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.Logger           = NopLogger{}
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
