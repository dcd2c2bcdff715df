package device

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lumodate/capturekit/internal/log"
)

// Acquirer owns at most one open stream at a time and walks the constraint
// fallback ladder on open.
type Acquirer struct {
	driver    Driver
	preferred Constraints
	logger    zerolog.Logger

	mu     sync.Mutex
	stream *Stream
	facing FacingMode
}

// AcquirerOption customises an Acquirer.
type AcquirerOption func(*Acquirer)

// WithPreferred sets the preferred resolution/frame rate for the top rungs
// of the ladder.
func WithPreferred(width, height, frameRate int) AcquirerOption {
	return func(a *Acquirer) {
		a.preferred.Width = width
		a.preferred.Height = height
		a.preferred.FrameRate = frameRate
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) AcquirerOption {
	return func(a *Acquirer) { a.logger = l }
}

// NewAcquirer builds an acquirer bound to one driver.
func NewAcquirer(driver Driver, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		driver:    driver,
		preferred: Constraints{Width: 640, Height: 360, FrameRate: 30},
		logger:    log.WithComponent("device"),
		facing:    FacingUser,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ladder returns the descending constraint sets tried on open.
func (a *Acquirer) ladder(facing FacingMode) []Constraints {
	preferred := a.preferred
	preferred.Facing = facing
	preferred.Audio = true

	unconstrained := Constraints{Audio: true, Facing: facing}
	videoPreferred := a.preferred
	videoPreferred.Facing = facing
	videoOnly := Constraints{Facing: facing}

	return []Constraints{preferred, unconstrained, videoPreferred, videoOnly}
}

// Open acquires a stream for the given facing mode. Any previously open
// stream is released first so at most one handle exists.
func (a *Acquirer) Open(ctx context.Context, facing FacingMode) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openLocked(ctx, facing)
}

func (a *Acquirer) openLocked(ctx context.Context, facing FacingMode) (*Stream, error) {
	if a.stream != nil {
		a.stream.StopAll()
		a.stream = nil
		openStreams.Dec()
	}

	var lastErr error
	for i, c := range a.ladder(facing) {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		s, err := a.driver.Open(ctx, c)
		if err != nil {
			lastErr = err
			a.logger.Debug().
				Int("rung", i).
				Bool("audio", c.Audio).
				Str(log.FieldFacing, string(c.Facing)).
				Err(err).
				Msg("constraint rung failed")
			continue
		}
		if i > 0 {
			ladderFallbacks.Inc()
		}
		a.stream = s
		a.facing = facing
		acquisitions.WithLabelValues("ok").Inc()
		openStreams.Inc()
		a.logger.Info().
			Str(log.FieldDevice, a.driver.Name()).
			Str(log.FieldFacing, string(facing)).
			Bool("audio", s.HasAudio()).
			Int("rung", i).
			Msg("stream acquired")
		return s, nil
	}

	code := CodeOf(lastErr)
	acquisitions.WithLabelValues(string(code)).Inc()
	a.logger.Warn().Str("code", string(code)).Err(lastErr).Msg("acquisition failed")
	if _, ok := lastErr.(*Error); ok {
		return nil, lastErr
	}
	return nil, NewError(code, lastErr)
}

// Close releases the current stream, stopping every track. Safe to call
// repeatedly and with nothing open.
func (a *Acquirer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return
	}
	a.stream.StopAll()
	a.stream = nil
	openStreams.Dec()
	a.logger.Info().Msg("stream released")
}

// ToggleFacing stops the current stream and reopens with the opposite
// facing mode. Callers must not toggle mid-recording: recording state is
// not preserved.
func (a *Acquirer) ToggleFacing(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openLocked(ctx, a.facing.Opposite())
}

// Facing returns the facing mode of the most recent successful open.
func (a *Acquirer) Facing() FacingMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.facing
}

// Current returns the open stream, or nil.
func (a *Acquirer) Current() *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}
