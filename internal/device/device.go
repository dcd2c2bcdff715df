// Package device acquires camera/microphone streams from registered drivers,
// negotiating capture constraints down a fallback ladder and mapping driver
// failures onto a fixed error taxonomy.
package device

import (
	"context"
	"sync"

	"github.com/lumodate/capturekit/internal/media"
)

// FacingMode selects which camera a driver should open.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Opposite returns the other facing mode.
func (f FacingMode) Opposite() FacingMode {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// Constraints describe one rung of the acquisition ladder.
type Constraints struct {
	Width     int // 0 means unconstrained
	Height    int
	FrameRate int
	Audio     bool
	Facing    FacingMode
}

// TrackKind discriminates stream tracks.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Track is one live media track. Stop is idempotent and releases the
// underlying producer.
type Track interface {
	Kind() TrackKind
	Stop()
}

// VideoTrack delivers frames until the track is stopped.
type VideoTrack interface {
	Track
	Frames() <-chan media.Frame
}

// AudioTrack delivers PCM chunks until the track is stopped.
type AudioTrack interface {
	Track
	Chunks() <-chan media.AudioChunk
}

// Driver opens concrete capture hardware. Implementations must honor ctx
// cancellation during open and return taxonomy errors where they can
// classify the failure.
type Driver interface {
	Name() string
	Open(ctx context.Context, c Constraints) (*Stream, error)
}

// Stream is an exclusively owned pair of live tracks. StopAll is the only
// way tracks are released and must be called on every exit path.
type Stream struct {
	mu      sync.Mutex
	video   VideoTrack
	audio   AudioTrack // nil when acquired video-only
	stopped bool
}

// NewStream assembles a stream from driver tracks. audio may be nil.
func NewStream(video VideoTrack, audio AudioTrack) *Stream {
	return &Stream{video: video, audio: audio}
}

// Video returns the stream's video track.
func (s *Stream) Video() VideoTrack { return s.video }

// Audio returns the audio track, or nil for a video-only stream.
func (s *Stream) Audio() AudioTrack { return s.audio }

// HasAudio reports whether an audio track was acquired.
func (s *Stream) HasAudio() bool { return s.audio != nil }

// StopAll stops every track exactly once.
func (s *Stream) StopAll() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.video.Stop()
	if s.audio != nil {
		s.audio.Stop()
	}
}

// Stopped reports whether StopAll has run.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

var registry struct {
	mu      sync.Mutex
	drivers []Driver
}

// Register adds a driver to the global registry.
func Register(d Driver) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.drivers = append(registry.drivers, d)
}

// List returns the registered drivers in registration order.
func List() []Driver {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	out := make([]Driver, len(registry.drivers))
	copy(out, registry.drivers)
	return out
}
