package ckv

import (
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestRoundTrip(t *testing.T) {
	h := Header{Width: 32, Height: 18, FPS: 30, HasAudio: true, Channels: 2, SampleRate: 48000}

	var buf bytes.Buffer
	buf.Write(HeaderChunk(h))

	jpg, err := EncodeFrame(testFrame(32, 18, color.RGBA{R: 200, A: 255}))
	require.NoError(t, err)
	buf.Write(VideoChunk(jpg))
	buf.Write(VideoChunk(jpg))
	buf.Write(AudioChunk([]int16{0, 100, -100, 32767}))

	r, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, r.Header)
	require.Equal(t, 2, r.FrameCount())
	require.Equal(t, []int16{0, 100, -100, 32767}, r.Audio())

	img, err := r.DecodeFrame(0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 32, 18), img.Bounds())

	require.Equal(t, time.Second/15, r.Duration())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("nope"))
	require.ErrorIs(t, err, ErrBadMagic)

	hdr := HeaderChunk(Header{Width: 4, Height: 4, FPS: 30})
	truncated := append(append([]byte{}, hdr...), 'V', 0, 0, 0, 9, 1, 2)
	_, err = Parse(truncated)
	require.ErrorIs(t, err, ErrTruncated)

	unknown := append(append([]byte{}, hdr...), 'X', 0, 0, 0, 0)
	_, err = Parse(unknown)
	require.Error(t, err)
}

func TestPCMConversionClips(t *testing.T) {
	pcm := PCM16FromFloat32([]float32{0, 0.5, 1.5, -2})
	require.Equal(t, []int16{0, 16383, 32767, -32768}, pcm)

	back := Float32FromPCM16([]int16{0, -32768, 32767})
	require.InDelta(t, 0, back[0], 1e-6)
	require.InDelta(t, -1, back[1], 1e-6)
	require.InDelta(t, 1, back[2], 1e-3)
}
