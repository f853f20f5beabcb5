package sink

import (
	"fmt"

	"github.com/Skryldev/photoreel/config"
	"github.com/Skryldev/photoreel/core"
)

// Factory opens sinks of the configured kind.
type Factory struct {
	kind    config.SinkKind
	ffmpeg  FFmpegOptions
	ext     string
	quality int
}

// NewFactory builds a Factory from cfg.
func NewFactory(cfg config.Config) (*Factory, error) {
	f := &Factory{kind: cfg.Sink}
	switch cfg.Sink {
	case config.SinkFFmpeg:
		f.ffmpeg = FFmpegOptions{
			Binary:      cfg.FFmpeg.Binary,
			Codec:       cfg.FFmpeg.Codec,
			Preset:      cfg.FFmpeg.Preset,
			CRF:         cfg.FFmpeg.CRF,
			PixelFormat: cfg.FFmpeg.PixelFormat,
		}
		f.ext = cfg.FFmpeg.Container
		if f.ext == "" {
			f.ext = "mp4"
		}
	case config.SinkMJPEG:
		f.quality = cfg.MJPEG.Quality
		f.ext = "avi"
	default:
		return nil, fmt.Errorf("sink: unknown kind %q", cfg.Sink)
	}
	return f, nil
}

func (f *Factory) NewSink(spec core.SinkSpec) (core.Sink, error) {
	switch f.kind {
	case config.SinkFFmpeg:
		return NewFFmpeg(f.ffmpeg, spec), nil
	case config.SinkMJPEG:
		return NewMJPEG(f.quality, spec), nil
	}
	return nil, fmt.Errorf("sink: unknown kind %q", f.kind)
}

func (f *Factory) Extension() string { return f.ext }

var _ core.SinkFactory = (*Factory)(nil)
