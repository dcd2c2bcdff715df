// Package media holds the value types that flow between the capture
// pipeline's components: frames, audio, encoded blobs and the handle
// registry used to hand blobs to UI layers.
package media

import (
	"image"
	"time"
)

// Blob is an immutable chunk of encoded media.
type Blob struct {
	Data []byte
	MIME string
}

// Empty reports whether the blob carries no data.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

// Size returns the payload size in bytes.
func (b Blob) Size() int { return len(b.Data) }

// Recorded is the immutable result of one recording session. A subsequent
// mix produces a new Recorded value, never an edit of an existing one.
type Recorded struct {
	Blob      Blob
	CreatedAt time.Time
}

// Frame is one video frame with its presentation timestamp relative to
// the start of the stream.
type Frame struct {
	Image *image.RGBA
	PTS   time.Duration
}

// AudioChunk is a short run of interleaved PCM samples.
type AudioChunk struct {
	Samples    []float32 // interleaved
	Channels   int
	SampleRate int
	PTS        time.Duration
}

// Duration returns the play time covered by the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.Channels == 0 || c.SampleRate == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Clip is a fully decoded audio buffer, the unit the overlay mixer works on.
type Clip struct {
	Samples    []float32 // interleaved
	Channels   int
	SampleRate int
}

// Duration returns the total play time of the clip.
func (c Clip) Duration() time.Duration {
	if c.Channels == 0 || c.SampleRate == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// FrameCount returns the number of sample frames (samples per channel).
func (c Clip) FrameCount() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}
