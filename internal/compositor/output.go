package compositor

import (
	"sync"
	"time"

	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/media"
)

// OutputTrack exposes the composited canvas as a capturable video track at a
// fixed frame rate. It implements device.VideoTrack so the recorder engine
// consumes it exactly like a camera track.
type OutputTrack struct {
	fps        int
	frames     chan media.Frame
	closeOnce  sync.Once
	unregister func(*OutputTrack)

	mu       sync.Mutex
	lastPush time.Time
}

var _ device.VideoTrack = (*OutputTrack)(nil)

func newOutputTrack(fps int, unregister func(*OutputTrack)) *OutputTrack {
	return &OutputTrack{
		fps:        fps,
		frames:     make(chan media.Frame, 4),
		unregister: unregister,
	}
}

// Kind implements device.Track.
func (t *OutputTrack) Kind() device.TrackKind { return device.KindVideo }

// Frames implements device.VideoTrack. The channel closes when either the
// track or its compositor stops.
func (t *OutputTrack) Frames() <-chan media.Frame { return t.frames }

// Stop implements device.Track.
func (t *OutputTrack) Stop() {
	t.unregister(t)
	t.close()
}

func (t *OutputTrack) close() {
	t.closeOnce.Do(func() { close(t.frames) })
}

// push forwards a composited frame, paced down to the track's fixed rate.
// Slow consumers drop frames rather than stall the render loop.
func (t *OutputTrack) push(f media.Frame, now time.Time) {
	t.mu.Lock()
	if !t.lastPush.IsZero() && now.Sub(t.lastPush) < time.Second/time.Duration(t.fps) {
		t.mu.Unlock()
		return
	}
	t.lastPush = now
	t.mu.Unlock()

	select {
	case t.frames <- f:
	default:
	}
}
