package config

import (
	"errors"
	"fmt"
	"time"
)

// Priority describes who asked for a merge.  Background merges leave more
// cores to the rest of the system.
type Priority string

const (
	PriorityUserInitiated Priority = "user"
	PriorityBackground    Priority = "background"
)

// DecoderBackend selects the image decoding implementation.
type DecoderBackend string

const (
	DecoderStd  DecoderBackend = "std"
	DecoderVips DecoderBackend = "vips"
)

// SinkKind selects the video sink.
type SinkKind string

const (
	SinkFFmpeg SinkKind = "ffmpeg"
	SinkMJPEG  SinkKind = "mjpeg"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Concurrency controls.
	Workers  int      `yaml:"workers"`   // 0 = derived from NumCPU and Priority
	Priority Priority `yaml:"priority"`  // headroom reserved for the rest of the system
	PoolSize int      `yaml:"pool_size"` // pixel buffers; 0 = one per worker

	// Timescale is the number of presentation-time ticks per second.
	Timescale int32 `yaml:"timescale"`

	// Input limits.
	MaxImageBytes   int64 `yaml:"max_image_bytes"`   // 0 = no limit
	MaxSourcePixels int64 `yaml:"max_source_pixels"` // 0 = no limit
	ChunkSize       int   `yaml:"chunk_size"`        // read chunk size in bytes; default 32 KiB

	Decoder DecoderBackend `yaml:"decoder"`
	Vips    VipsConfig     `yaml:"vips"`

	// Render defaults used when a request does not carry its own settings.
	Render RenderConfig `yaml:"render"`

	// Output.
	Sink      SinkKind     `yaml:"sink"`
	OutputDir string       `yaml:"output_dir"`
	FFmpeg    FFmpegConfig `yaml:"ffmpeg"`
	MJPEG     MJPEGConfig  `yaml:"mjpeg"`

	// Photo sources.
	Library LibraryConfig `yaml:"library"`
	S3      S3Config      `yaml:"s3"`

	// Logging.
	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
}

// RenderConfig holds default canvas settings.
type RenderConfig struct {
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	FrameDuration  time.Duration `yaml:"frame_duration"`
	Background     string        `yaml:"background"` // #AARRGGBB or #RRGGBB
	Watermark      bool          `yaml:"watermark"`
	WatermarkLabel string        `yaml:"watermark_label"`
}

// FFmpegConfig configures the ffmpeg video sink.
type FFmpegConfig struct {
	Binary      string `yaml:"binary"`
	Codec       string `yaml:"codec"`        // e.g. "libx264", "libx265"
	Preset      string `yaml:"preset"`       // e.g. "medium"
	CRF         int    `yaml:"crf"`          // 0-51
	PixelFormat string `yaml:"pixel_format"` // e.g. "yuv420p"
	Container   string `yaml:"container"`    // file extension, e.g. "mp4"
}

// MJPEGConfig configures the pure-Go AVI/MJPEG sink.
type MJPEGConfig struct {
	Quality int `yaml:"quality"` // 1-100
}

// LibraryConfig configures the local photo library.
type LibraryConfig struct {
	RootDir string `yaml:"root_dir"`
}

// S3Config configures the S3 transfer-handle source.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	Endpoint     string `yaml:"endpoint"` // optional custom endpoint (MinIO, etc.)
	UsePathStyle bool   `yaml:"use_path_style"`
}

// VipsConfig configures the libvips backend.
type VipsConfig struct {
	MaxCacheSize int  `yaml:"max_cache_size"`
	ReportLeaks  bool `yaml:"report_leaks"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		Workers:   0, // resolved at runtime
		Priority:  PriorityUserInitiated,
		Timescale: 600,
		ChunkSize: 32 * 1024,
		Decoder:   DecoderStd,
		Render: RenderConfig{
			Width:          1920,
			Height:         1080,
			FrameDuration:  2 * time.Second,
			Background:     "#FF000000",
			Watermark:      false,
			WatermarkLabel: "photoreel",
		},
		Sink:      SinkFFmpeg,
		OutputDir: ".",
		FFmpeg: FFmpegConfig{
			Binary:      "ffmpeg",
			Codec:       "libx264",
			Preset:      "medium",
			CRF:         23,
			PixelFormat: "yuv420p",
			Container:   "mp4",
		},
		MJPEG:    MJPEGConfig{Quality: 90},
		LogLevel: "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.Workers < 0 {
		return errors.New("config: Workers cannot be negative (use 0 for auto-detect)")
	}
	if c.PoolSize < 0 {
		return errors.New("config: PoolSize cannot be negative")
	}
	switch c.Priority {
	case PriorityUserInitiated, PriorityBackground:
	default:
		return fmt.Errorf("config: unknown Priority %q", c.Priority)
	}
	if c.Timescale <= 0 {
		return errors.New("config: Timescale must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	switch c.Decoder {
	case DecoderStd, DecoderVips:
	default:
		return fmt.Errorf("config: unknown Decoder %q", c.Decoder)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("config: Render.Width and Render.Height must be positive")
	}
	if c.Render.FrameDuration <= 0 {
		return errors.New("config: Render.FrameDuration must be positive")
	}
	switch c.Sink {
	case SinkFFmpeg:
		if c.FFmpeg.Binary == "" || c.FFmpeg.Codec == "" {
			return errors.New("config: FFmpeg.Binary and FFmpeg.Codec are required")
		}
		if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
			return errors.New("config: FFmpeg.CRF must be between 0 and 51")
		}
	case SinkMJPEG:
		if c.MJPEG.Quality < 1 || c.MJPEG.Quality > 100 {
			return errors.New("config: MJPEG.Quality must be between 1 and 100")
		}
	default:
		return fmt.Errorf("config: unknown Sink %q", c.Sink)
	}
	return nil
}
