package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadFile loads configuration from a YAML file on top of Default().
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveFile writes cfg as YAML.
func SaveFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnvPrefix namespaces the environment keys understood by ApplyEnv.
const EnvPrefix = "PHOTOREEL_"

// ApplyEnvFiles reads KEY=VALUE files with godotenv and applies the
// PHOTOREEL_* keys found in them to cfg.  Missing files are an error.
func ApplyEnvFiles(cfg *Config, paths ...string) error {
	env, err := godotenv.Read(paths...)
	if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	return ApplyEnv(cfg, env)
}

// ApplyEnv applies PHOTOREEL_* keys from env to cfg.  Unknown keys are ignored.
func ApplyEnv(cfg *Config, env map[string]string) error {
	for key, val := range env {
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		var err error
		switch strings.TrimPrefix(key, EnvPrefix) {
		case "WORKERS":
			cfg.Workers, err = strconv.Atoi(val)
		case "PRIORITY":
			cfg.Priority = Priority(val)
		case "POOL_SIZE":
			cfg.PoolSize, err = strconv.Atoi(val)
		case "DECODER":
			cfg.Decoder = DecoderBackend(val)
		case "SINK":
			cfg.Sink = SinkKind(val)
		case "OUTPUT_DIR":
			cfg.OutputDir = val
		case "WIDTH":
			cfg.Render.Width, err = strconv.Atoi(val)
		case "HEIGHT":
			cfg.Render.Height, err = strconv.Atoi(val)
		case "FRAME_DURATION":
			cfg.Render.FrameDuration, err = time.ParseDuration(val)
		case "BACKGROUND":
			cfg.Render.Background = val
		case "WATERMARK":
			cfg.Render.Watermark, err = strconv.ParseBool(val)
		case "FFMPEG_BINARY":
			cfg.FFmpeg.Binary = val
		case "LIBRARY_ROOT":
			cfg.Library.RootDir = val
		case "S3_BUCKET":
			cfg.S3.Bucket = val
		case "S3_REGION":
			cfg.S3.Region = val
		case "LOG_LEVEL":
			cfg.LogLevel = val
		}
		if err != nil {
			return fmt.Errorf("config: invalid %s=%q: %w", key, val, err)
		}
	}
	return nil
}
