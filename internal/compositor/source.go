package compositor

import (
	"image"
	"sync"

	"github.com/lumodate/capturekit/internal/device"
)

// Source supplies the compositor's input: the most recent video frame, if
// any has arrived yet.
type Source interface {
	Latest() (*image.RGBA, bool)
}

// TrackSource adapts a live video track into a latest-frame Source. Its
// internal goroutine exits when the track is stopped.
type TrackSource struct {
	mu     sync.Mutex
	latest *image.RGBA
	done   chan struct{}
}

// NewTrackSource starts consuming frames from track.
func NewTrackSource(track device.VideoTrack) *TrackSource {
	s := &TrackSource{done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for f := range track.Frames() {
			s.mu.Lock()
			s.latest = f.Image
			s.mu.Unlock()
		}
	}()
	return s
}

// Latest implements Source.
func (s *TrackSource) Latest() (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// Wait blocks until the underlying track has been stopped. Used by teardown
// paths that must prove no consumer goroutine outlives the session.
func (s *TrackSource) Wait() {
	<-s.done
}

// StaticSource is a fixed-frame Source for tests and offline rendering.
type StaticSource struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewStaticSource returns a source serving img until replaced.
func NewStaticSource(img *image.RGBA) *StaticSource {
	return &StaticSource{img: img}
}

// Set replaces the served frame.
func (s *StaticSource) Set(img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

// Latest implements Source.
func (s *StaticSource) Latest() (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.img != nil
}
