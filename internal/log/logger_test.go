package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConfigureAndComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "capturekit-test"})

	l := WithComponent("recorder")
	l.Info().Str(FieldCodec, "video/x-capturekit").Msg("negotiated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "recorder", entry["component"])
	require.Equal(t, "video/x-capturekit", entry[FieldCodec])
}

func TestReconfigureAppliesLevelAndService(t *testing.T) {
	var boot bytes.Buffer
	Configure(Config{Level: "info", Output: &boot, Service: "bootstrap"})

	// A binary reconfigures after loading its config; the loaded level and
	// service must win over the bootstrap values.
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf, Service: "capturekit-test"})
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	l := WithComponent("capturectl")
	l.Info().Msg("suppressed")
	require.Empty(t, buf.Bytes(), "info must be filtered at warn level")

	l.Warn().Msg("visible")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "capturekit-test", entry["service"])
}

func TestSessionIDRoundTrip(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "sess-1")
	require.Equal(t, "sess-1", SessionIDFromContext(ctx))
	require.Equal(t, "", SessionIDFromContext(context.Background()))
}
