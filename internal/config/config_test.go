package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("Load(\"\") deviates from defaults (-want +got):\n%s", diff)
	}
	require.Equal(t, 30*time.Second, cfg.Capture.MaxDuration)
	require.Equal(t, "user", cfg.Capture.Facing)
	require.True(t, cfg.Compositor.Mirror)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
capture:
  maxDuration: 10s
  fps: 24
compositor:
  keyColor: "#11aa22"
`), 0o644))

	t.Setenv("CAPTUREKIT_FPS", "60")
	t.Setenv("CAPTUREKIT_KEY_THRESHOLD", "0.3")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.Capture.MaxDuration)
	require.Equal(t, 60, cfg.Capture.FPS, "env overrides file")
	require.Equal(t, "#11aa22", cfg.Compositor.KeyColor)
	require.InDelta(t, 0.3, cfg.Compositor.Threshold, 1e-9)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero duration", func(c *Config) { c.Capture.MaxDuration = 0 }},
		{"excessive duration", func(c *Config) { c.Capture.MaxDuration = time.Hour }},
		{"fps too low", func(c *Config) { c.Capture.FPS = 0 }},
		{"fps too high", func(c *Config) { c.Capture.FPS = 240 }},
		{"bad facing", func(c *Config) { c.Capture.Facing = "rear" }},
		{"bad color", func(c *Config) { c.Compositor.KeyColor = "green" }},
		{"threshold out of range", func(c *Config) { c.Compositor.Threshold = 1.5 }},
		{"empty out dir", func(c *Config) { c.Output.Dir = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseHexColor(t *testing.T) {
	r, g, b, err := ParseHexColor("#0a80ff")
	require.NoError(t, err)
	require.Equal(t, uint8(0x0a), r)
	require.Equal(t, uint8(0x80), g)
	require.Equal(t, uint8(0xff), b)

	_, _, _, err = ParseHexColor("00ff00")
	require.Error(t, err)
	_, _, _, err = ParseHexColor("#zzzzzz")
	require.Error(t, err)
}
