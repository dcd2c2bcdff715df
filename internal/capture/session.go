package capture

import (
	"context"

	"github.com/google/uuid"

	"github.com/lumodate/capturekit/internal/compositor"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/media"
	"github.com/lumodate/capturekit/internal/mixer"
	"github.com/lumodate/capturekit/internal/timer"
)

// session is the controller's working state for one select/record/review
// cycle. The generation is compared when asynchronous completions (recorder
// finalize, mix render, timer deadline) come back, so a superseded session
// cannot mutate its successor.
type session struct {
	id  string
	gen uint64

	greenScreen bool
	stream      *device.Stream
	comp        *compositor.Compositor
	out         *compositor.OutputTrack
	clock       *timer.Timer

	token    int64
	recorded *media.Recorded
	handle   media.Handle

	overlay   *mixer.Overlay
	mixCancel context.CancelFunc
}

func newSession(gen uint64, greenScreen bool, clock *timer.Timer) *session {
	return &session{
		id:          uuid.NewString(),
		gen:         gen,
		greenScreen: greenScreen,
		clock:       clock,
	}
}

// abortMix cancels an in-flight render, if any.
func (s *session) abortMix() {
	if s.mixCancel != nil {
		s.mixCancel()
		s.mixCancel = nil
	}
}
