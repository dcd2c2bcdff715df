package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandleLifecycle(t *testing.T) {
	r := NewHandleRegistry()
	b := Blob{Data: []byte{1, 2, 3}, MIME: "video/x-capturekit"}

	h := r.Create(b)
	got, err := r.Resolve(h)
	require.NoError(t, err)
	require.Equal(t, b, got)
	require.Equal(t, 1, r.Outstanding())

	require.NoError(t, r.Release(h))
	require.Equal(t, 0, r.Outstanding())

	// Exactly one release per create.
	require.ErrorIs(t, r.Release(h), ErrHandleReleased)
	_, err = r.Resolve(h)
	require.ErrorIs(t, err, ErrHandleReleased)
	require.Equal(t, r.Created(), r.Released())
}

func TestClipDuration(t *testing.T) {
	tests := []struct {
		name string
		clip Clip
		want time.Duration
	}{
		{"mono 1s", Clip{Samples: make([]float32, 8000), Channels: 1, SampleRate: 8000}, time.Second},
		{"stereo 500ms", Clip{Samples: make([]float32, 8000), Channels: 2, SampleRate: 8000}, 500 * time.Millisecond},
		{"empty", Clip{}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.clip.Duration())
		})
	}
}

func TestAudioChunkDuration(t *testing.T) {
	c := AudioChunk{Samples: make([]float32, 960*2), Channels: 2, SampleRate: 48000}
	require.Equal(t, 20*time.Millisecond, c.Duration())
}
