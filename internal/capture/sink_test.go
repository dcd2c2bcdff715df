package capture

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumodate/capturekit/internal/media"
)

func TestFileSinkWritesDeliverable(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	f := File{
		Name:      "capture-20260824-120000.ckv",
		Blob:      media.Blob{Data: []byte("payload"), MIME: "video/x-capturekit;codecs=mjpeg"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, sink.Post(context.Background(), f, "caption"))

	got, err := os.ReadFile(sink.LastPath())
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestFileSinkRejectsEscapingNames(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	f := File{Name: "../escape.ckv", Blob: media.Blob{Data: []byte("x")}}
	require.Error(t, sink.Post(context.Background(), f, ""))
}

func TestDeliverableName(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 30, 45, 0, time.UTC)
	rec := &media.Recorded{
		Blob:      media.Blob{MIME: "video/webm;codecs=vp9,opus"},
		CreatedAt: at,
	}
	require.Equal(t, "capture-20260824-123045.webm", deliverableName(rec))

	rec.Blob.MIME = "video/x-capturekit;codecs=mjpeg,pcm"
	require.Equal(t, "capture-20260824-123045.ckv", deliverableName(rec))

	rec.Blob.MIME = "application/octet-stream"
	require.Equal(t, "capture-20260824-123045.bin", deliverableName(rec))
}
