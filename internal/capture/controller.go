package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumodate/capturekit/internal/compositor"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/frameclock"
	"github.com/lumodate/capturekit/internal/log"
	"github.com/lumodate/capturekit/internal/media"
	"github.com/lumodate/capturekit/internal/mixer"
	"github.com/lumodate/capturekit/internal/recorder"
	"github.com/lumodate/capturekit/internal/timer"
)

// Poster receives the finished deliverable. The implementation owns what
// happens to it (upload, disk, test capture).
type Poster interface {
	Post(ctx context.Context, f File, caption string) error
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(ctx context.Context, f File, caption string) error

// Post implements Poster.
func (fn PosterFunc) Post(ctx context.Context, f File, caption string) error {
	return fn(ctx, f, caption)
}

// Controller drives one capture session at a time through the
// select/record/review flow.
type Controller struct {
	acquirer *device.Acquirer
	engine   *recorder.Engine
	mixer    *mixer.Mixer
	handles  *media.HandleRegistry
	clock    frameclock.Clock
	poster   Poster
	logger   zerolog.Logger

	maxDuration time.Duration
	compCfg     compositor.Config

	mu      sync.Mutex
	machine *Machine[Phase, event]
	status  Status
	sess    *session
	gen     uint64
	closed  bool
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithMaxDuration caps one recording; the deadline auto-stops it.
func WithMaxDuration(d time.Duration) ControllerOption {
	return func(c *Controller) { c.maxDuration = d }
}

// WithCompositorConfig seeds green-screen sessions.
func WithCompositorConfig(cfg compositor.Config) ControllerOption {
	return func(c *Controller) { c.compCfg = cfg }
}

// WithPoster sets the deliverable collaborator.
func WithPoster(p Poster) ControllerOption {
	return func(c *Controller) { c.poster = p }
}

// WithControllerLogger overrides the component logger.
func WithControllerLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController wires the pipeline components together.
func NewController(acq *device.Acquirer, engine *recorder.Engine, mix *mixer.Mixer, clock frameclock.Clock, opts ...ControllerOption) *Controller {
	c := &Controller{
		acquirer:    acq,
		engine:      engine,
		mixer:       mix,
		handles:     media.NewHandleRegistry(),
		clock:       clock,
		logger:      log.WithComponent("capture"),
		maxDuration: 30 * time.Second,
		compCfg:     compositor.DefaultConfig(),
		machine:     newPhaseMachine(),
		status:      Status{Kind: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the controller's current phase.
func (c *Controller) Phase() Phase { return c.machine.State() }

// Status returns the current status tag.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Handles exposes the registry so hosts can resolve review media.
func (c *Controller) Handles() *media.HandleRegistry { return c.handles }

// EnterRecord moves select -> record: it acquires the camera and, when
// greenScreen is set, brings up the compositor bound to that stream. Any
// failure returns to select with an error status and no open resources.
func (c *Controller) EnterRecord(ctx context.Context, greenScreen bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if _, err := c.machine.Fire(eventArm); err != nil {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.status = Status{Kind: StatusRequestingPermission}
	c.mu.Unlock()

	return c.prepare(ctx, greenScreen)
}

// prepare opens the stream and optional compositor for a session whose
// phase is already record. On failure it falls back to select.
func (c *Controller) prepare(ctx context.Context, greenScreen bool) error {
	stream, err := c.acquirer.Open(ctx, c.acquirer.Facing())
	if err != nil {
		c.failToSelect(fmt.Sprintf("camera unavailable: %s", device.CodeOf(err)))
		return err
	}

	var comp *compositor.Compositor
	if greenScreen {
		comp, err = compositor.New(c.clock, c.compCfg, c.logger)
		if err != nil {
			c.acquirer.Close()
			c.failToSelect("green-screen unavailable")
			return err
		}
		comp.Attach(compositor.NewTrackSource(stream.Video()))
		comp.Start()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if comp != nil {
			comp.Stop()
		}
		c.acquirer.Close()
		return ErrSessionClosed
	}

	c.gen++
	s := newSession(c.gen, greenScreen, timer.New(c.clock))
	s.stream = stream
	s.comp = comp
	c.sess = s
	c.status = Status{Kind: StatusReady}

	sessionsStarted.Inc()
	c.logger.Info().
		Str(log.FieldSessionID, s.id).
		Bool("green_screen", greenScreen).
		Msg("session armed")
	return nil
}

// failToSelect returns the machine to select with an error status.
func (c *Controller) failToSelect(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.machine.Fire(eventAbort)
	c.status = Status{Kind: StatusError, Message: msg}
}

// StartRecording begins encoding the session's stream (composited output
// when green-screen is active) and arms the deadline timer. Calling it
// while already recording returns the existing token.
func (c *Controller) StartRecording() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrSessionClosed
	}
	s := c.sess
	if s == nil || c.machine.State() != PhaseRecord {
		return 0, ErrWrongPhase
	}

	recordStream := s.stream
	if s.comp != nil {
		if s.out == nil {
			s.out = s.comp.OutputStream(c.compCfg.OutputFPS)
		}
		recordStream = device.NewStream(s.out, s.stream.Audio())
	}

	token, err := c.engine.Start(recordStream)
	if err != nil {
		c.status = Status{Kind: StatusError, Message: err.Error()}
		return 0, err
	}
	alreadyRecording := s.token == token && c.status.Kind == StatusRecording
	s.token = token
	c.status = Status{Kind: StatusRecording}

	if !alreadyRecording {
		gen := s.gen
		s.clock.Start(c.maxDuration, func() {
			go c.deadlineStop(gen)
		})
		c.logger.Info().
			Str(log.FieldSessionID, s.id).
			Int64(log.FieldToken, token).
			Msg("recording started")
	}
	return token, nil
}

// deadlineStop is the timer's one-shot callback. It only acts if the
// session that armed it is still the current one and still recording.
func (c *Controller) deadlineStop(gen uint64) {
	c.mu.Lock()
	current := !c.closed && c.sess != nil && c.sess.gen == gen &&
		c.machine.State() == PhaseRecord && c.status.Kind == StatusRecording
	c.mu.Unlock()
	if !current {
		return
	}
	if _, err := c.StopRecording(context.Background()); err != nil && !errors.Is(err, ErrWrongPhase) {
		c.logger.Warn().Err(err).Msg("deadline stop failed")
	}
}

// StopRecording finalizes the active recording and, on success, moves
// record -> review: the camera and compositor are closed and the media is
// registered under a fresh handle. It is safe to call repeatedly; all
// callers resolve the same media.
func (c *Controller) StopRecording(ctx context.Context) (*media.Recorded, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s := c.sess
	if s == nil {
		c.mu.Unlock()
		return nil, ErrWrongPhase
	}
	// A stop that lands after another stop already moved the session to
	// review resolves the same media, no matter how late it arrives.
	if c.machine.State() == PhaseReview && s.recorded != nil {
		rec := s.recorded
		c.mu.Unlock()
		return rec, nil
	}
	if c.machine.State() != PhaseRecord || c.status.Kind == StatusReady {
		c.mu.Unlock()
		return nil, ErrWrongPhase
	}
	c.status = Status{Kind: StatusStopping}
	gen := s.gen
	token := s.token
	c.mu.Unlock()

	rec, err := c.engine.Stop(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess == nil || c.sess.gen != gen {
		// A superseded session's completion must not touch the current one.
		return rec, err
	}
	if err != nil {
		_, _ = c.machine.Fire(eventAbort)
		c.releaseCaptureLocked(c.sess)
		c.sess = nil
		c.status = Status{Kind: StatusError, Message: err.Error()}
		return nil, err
	}
	if c.machine.State() == PhaseRecord {
		_, _ = c.machine.Fire(eventFinish)
		c.releaseCaptureLocked(c.sess)
		c.sess.recorded = rec
		c.sess.handle = c.handles.Create(rec.Blob)
		c.status = Status{Kind: StatusIdle}
		c.logger.Info().
			Str(log.FieldSessionID, c.sess.id).
			Int64(log.FieldToken, token).
			Int("bytes", rec.Blob.Size()).
			Msg("recording finished")
	}
	return rec, nil
}

// releaseCaptureLocked tears down the live capture resources of a session:
// timer, output track, compositor and camera. Review state is untouched.
func (c *Controller) releaseCaptureLocked(s *session) {
	s.clock.Reset()
	if s.out != nil {
		s.out.Stop()
		s.out = nil
	}
	if s.comp != nil {
		s.comp.Stop()
		s.comp = nil
	}
	if s.stream != nil {
		c.acquirer.Close()
		s.stream = nil
	}
}

// Elapsed returns the running recording time of the current session.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.clock.Elapsed()
}

// Recorded returns the review media, if any.
func (c *Controller) Recorded() *media.Recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.recorded
}

// SetOverlay attaches overlay audio for the pending post. Review only.
func (c *Controller) SetOverlay(o mixer.Overlay) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.machine.State() != PhaseReview {
		return ErrWrongPhase
	}
	c.sess.overlay = &o
	return nil
}

// ClearOverlay removes the pending overlay.
func (c *Controller) ClearOverlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		c.sess.overlay = nil
	}
}

// Overlay returns the pending overlay, if set.
func (c *Controller) Overlay() *mixer.Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.overlay == nil {
		return nil
	}
	o := *c.sess.overlay
	return &o
}

// Discard leaves review for select: it aborts any in-flight mix, clears
// the overlay, and revokes the media handle exactly once.
func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.machine.State() != PhaseReview {
		return ErrWrongPhase
	}
	_, _ = c.machine.Fire(eventDiscard)
	c.dropSessionLocked()
	c.status = Status{Kind: StatusIdle}
	return nil
}

// Retry discards the review media and immediately re-opens the camera for
// another take.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil || c.machine.State() != PhaseReview {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	greenScreen := c.sess.greenScreen
	_, _ = c.machine.Fire(eventRetry)
	c.dropSessionLocked()
	c.status = Status{Kind: StatusRequestingPermission}
	c.mu.Unlock()

	return c.prepare(ctx, greenScreen)
}

// Post renders the overlay mix when one is set (otherwise posts the
// unmixed media), hands the named file to the poster, and returns to
// select. A cancelled mix keeps the session in review; a failed mix keeps
// the unmixed media postable.
func (c *Controller) Post(ctx context.Context, caption string) (*File, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s := c.sess
	if s == nil || c.machine.State() != PhaseReview {
		c.mu.Unlock()
		return nil, ErrWrongPhase
	}
	if s.recorded == nil {
		c.mu.Unlock()
		return nil, ErrNoRecordedMedia
	}
	gen := s.gen
	rec := s.recorded

	if s.overlay != nil {
		overlay := *s.overlay
		mixCtx, cancel := context.WithCancel(ctx)
		s.mixCancel = cancel
		c.mu.Unlock()

		mixed, err := c.mixer.Render(mixCtx, mixer.Request{Video: rec.Blob, Overlay: overlay})
		cancel()

		c.mu.Lock()
		if c.closed || c.sess == nil || c.sess.gen != gen {
			c.mu.Unlock()
			return nil, mixer.ErrCancelled
		}
		c.sess.mixCancel = nil
		if err != nil {
			if !errors.Is(err, mixer.ErrCancelled) {
				// The unmixed recording stays postable.
				c.status = Status{Kind: StatusError, Message: err.Error()}
			}
			c.mu.Unlock()
			return nil, err
		}
		old := c.sess.handle
		c.sess.recorded = mixed
		c.sess.handle = c.handles.Create(mixed.Blob)
		if old != "" {
			_ = c.handles.Release(old)
		}
		rec = mixed
	}
	file := File{Name: deliverableName(rec), Blob: rec.Blob, CreatedAt: rec.CreatedAt}
	c.mu.Unlock()

	if c.poster != nil {
		if err := c.poster.Post(ctx, file, caption); err != nil {
			c.mu.Lock()
			if !c.closed && c.sess != nil && c.sess.gen == gen {
				c.status = Status{Kind: StatusError, Message: err.Error()}
			}
			c.mu.Unlock()
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess == nil || c.sess.gen != gen {
		return &file, nil
	}
	_, _ = c.machine.Fire(eventPost)
	c.dropSessionLocked()
	c.status = Status{Kind: StatusIdle}
	posts.Inc()
	return &file, nil
}

// dropSessionLocked discards all session state: in-flight mix, live
// capture resources, overlay and the media handle.
func (c *Controller) dropSessionLocked() {
	s := c.sess
	if s == nil {
		return
	}
	s.abortMix()
	c.releaseCaptureLocked(s)
	if s.handle != "" {
		_ = c.handles.Release(s.handle)
		s.handle = ""
	}
	s.overlay = nil
	s.recorded = nil
	c.sess = nil
}

// Shutdown tears the controller down from any phase. Further calls on the
// controller return ErrSessionClosed.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.dropSessionLocked()
	c.status = Status{Kind: StatusIdle}
}

// deliverableName derives the artifact file name from the media.
func deliverableName(rec *media.Recorded) string {
	return fmt.Sprintf("capture-%s%s", rec.CreatedAt.UTC().Format("20060102-150405"), extForMIME(rec.Blob.MIME))
}

func extForMIME(mime string) string {
	switch {
	case strings.HasPrefix(mime, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mime, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(mime, "video/x-capturekit"):
		return ".ckv"
	default:
		return ".bin"
	}
}
