// Package config loads capture pipeline settings from an optional YAML
// file with CAPTUREKIT_* environment overrides. Precedence is defaults,
// then file, then environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root settings tree.
type Config struct {
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	Capture    CaptureConfig    `yaml:"capture"`
	Compositor CompositorConfig `yaml:"compositor"`
	Output     OutputConfig     `yaml:"output"`
}

// CaptureConfig bounds a recording session.
type CaptureConfig struct {
	// MaxDuration caps one recording; the timer auto-stops at this point.
	MaxDuration time.Duration `yaml:"maxDuration"`
	FPS         int           `yaml:"fps"`
	Facing      string        `yaml:"facing"` // "user" or "environment"
}

// CompositorConfig seeds the green-screen keyer.
type CompositorConfig struct {
	KeyColor  string  `yaml:"keyColor"` // "#rrggbb"
	Threshold float64 `yaml:"threshold"`
	Mirror    bool    `yaml:"mirror"`
}

// OutputConfig locates exported artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:   "info",
		LogService: "capturekit",
		Capture: CaptureConfig{
			MaxDuration: 30 * time.Second,
			FPS:         30,
			Facing:      "user",
		},
		Compositor: CompositorConfig{
			KeyColor:  "#00ff00",
			Threshold: 0.22,
			Mirror:    true,
		},
		Output: OutputConfig{Dir: "./out"},
	}
}

// Load builds a validated Config. path may be empty or point to a missing
// file, in which case only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file.
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeEnv(cfg *Config) {
	cfg.LogLevel = envString("CAPTUREKIT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = envString("CAPTUREKIT_LOG_SERVICE", cfg.LogService)

	if ms := envInt("CAPTUREKIT_MAX_DURATION_MS", 0); ms > 0 {
		cfg.Capture.MaxDuration = time.Duration(ms) * time.Millisecond
	}
	cfg.Capture.FPS = envInt("CAPTUREKIT_FPS", cfg.Capture.FPS)
	cfg.Capture.Facing = envString("CAPTUREKIT_FACING", cfg.Capture.Facing)

	cfg.Compositor.KeyColor = envString("CAPTUREKIT_KEY_COLOR", cfg.Compositor.KeyColor)
	cfg.Compositor.Threshold = envFloat("CAPTUREKIT_KEY_THRESHOLD", cfg.Compositor.Threshold)
	cfg.Compositor.Mirror = envBool("CAPTUREKIT_MIRROR", cfg.Compositor.Mirror)

	cfg.Output.Dir = envString("CAPTUREKIT_OUT_DIR", cfg.Output.Dir)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Capture.MaxDuration <= 0 || c.Capture.MaxDuration > 5*time.Minute {
		return fmt.Errorf("config: maxDuration %s out of range (0, 5m]", c.Capture.MaxDuration)
	}
	if c.Capture.FPS < 1 || c.Capture.FPS > 120 {
		return fmt.Errorf("config: fps %d out of range [1, 120]", c.Capture.FPS)
	}
	switch c.Capture.Facing {
	case "user", "environment":
	default:
		return fmt.Errorf("config: facing must be \"user\" or \"environment\", got %q", c.Capture.Facing)
	}
	if _, _, _, err := ParseHexColor(c.Compositor.KeyColor); err != nil {
		return err
	}
	if c.Compositor.Threshold < 0 || c.Compositor.Threshold > 1 {
		return fmt.Errorf("config: threshold %g out of range [0, 1]", c.Compositor.Threshold)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("config: output dir must not be empty")
	}
	return nil
}

// ParseHexColor parses "#rrggbb" into its components.
func ParseHexColor(s string) (r, g, b uint8, err error) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, fmt.Errorf("config: key color must be #rrggbb, got %q", s)
	}
	v, perr := strconv.ParseUint(s[1:], 16, 32)
	if perr != nil {
		return 0, 0, 0, fmt.Errorf("config: key color must be #rrggbb, got %q", s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
