package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumodate/capturekit/internal/compositor"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/frameclock"
	"github.com/lumodate/capturekit/internal/media"
	"github.com/lumodate/capturekit/internal/mixer"
	"github.com/lumodate/capturekit/internal/recorder"
)

type capturedPost struct {
	mu    sync.Mutex
	files []File
}

func (p *capturedPost) Post(_ context.Context, f File, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, f)
	return nil
}

func (p *capturedPost) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

type testRig struct {
	ctrl   *Controller
	engine *recorder.Engine
	sink   *capturedPost
}

func newTestRig(t *testing.T, driverOpts []device.SyntheticOption, ctrlOpts ...ControllerOption) *testRig {
	t.Helper()

	clock := frameclock.NewTicker(60)
	t.Cleanup(clock.Close)

	drv := device.NewSynthetic(driverOpts...)
	acq := device.NewAcquirer(drv)
	engine := recorder.NewEngine(recorder.NewCKVFactory())
	mix := mixer.New(engine)
	sink := &capturedPost{}

	opts := append([]ControllerOption{WithPoster(sink)}, ctrlOpts...)
	ctrl := NewController(acq, engine, mix, clock, opts...)
	t.Cleanup(ctrl.Shutdown)

	return &testRig{ctrl: ctrl, engine: engine, sink: sink}
}

// recordBriefly arms a session, records for roughly d and stops, leaving
// the controller in review.
func recordBriefly(t *testing.T, c *Controller, greenScreen bool, d time.Duration) *media.Recorded {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, c.EnterRecord(ctx, greenScreen))
	require.Equal(t, PhaseRecord, c.Phase())

	_, err := c.StartRecording()
	require.NoError(t, err)
	require.Equal(t, StatusRecording, c.Status().Kind)

	time.Sleep(d)

	rec, err := c.StopRecording(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, PhaseReview, c.Phase())
	return rec
}

func TestVideoOnlyFallbackSessionProceeds(t *testing.T) {
	rig := newTestRig(t, []device.SyntheticOption{device.WithoutAudio()})
	ctx := context.Background()

	require.NoError(t, rig.ctrl.EnterRecord(ctx, false))
	require.Equal(t, PhaseRecord, rig.ctrl.Phase())
	require.Equal(t, StatusReady, rig.ctrl.Status().Kind)

	_, err := rig.ctrl.StartRecording()
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	rec, err := rig.ctrl.StopRecording(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Blob.Data)
	require.NoError(t, rig.ctrl.Discard())
	require.Equal(t, PhaseSelect, rig.ctrl.Phase())
}

func TestRapidDoubleStopThenFreshSession(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	require.NoError(t, rig.ctrl.EnterRecord(ctx, false))
	tok1, err := rig.ctrl.StartRecording()
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	type stopResult struct {
		rec *media.Recorded
		err error
	}
	results := make(chan stopResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			rec, err := rig.ctrl.StopRecording(ctx)
			results <- stopResult{rec, err}
		}()
	}
	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	require.Same(t, first.rec, second.rec, "both stops resolve one RecordedMedia")
	require.Equal(t, PhaseReview, rig.ctrl.Phase())

	// A new take gets a fresh, independent token.
	require.NoError(t, rig.ctrl.Retry(ctx))
	require.Equal(t, PhaseRecord, rig.ctrl.Phase())
	tok2, err := rig.ctrl.StartRecording()
	require.NoError(t, err)
	require.Greater(t, tok2, tok1)
}

func TestStopAfterReviewResolvesSameMedia(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	first := recordBriefly(t, rig.ctrl, false, 200*time.Millisecond)
	require.Equal(t, PhaseReview, rig.ctrl.Phase())

	// A stop arriving after the transition to review must resolve the
	// same media as the stop that caused it, not fail the phase guard.
	for i := 0; i < 3; i++ {
		again, err := rig.ctrl.StopRecording(ctx)
		require.NoError(t, err)
		require.Same(t, first, again)
	}
	require.Equal(t, PhaseReview, rig.ctrl.Phase())
}

func TestStartRecordingTwiceReturnsSameToken(t *testing.T) {
	rig := newTestRig(t, nil)
	require.NoError(t, rig.ctrl.EnterRecord(context.Background(), false))

	tok1, err := rig.ctrl.StartRecording()
	require.NoError(t, err)
	tok2, err := rig.ctrl.StartRecording()
	require.NoError(t, err)
	require.Equal(t, tok1, tok2)
}

// blockedDecoder parks until the render context is cancelled.
type blockedDecoder struct{}

func (blockedDecoder) Decode(ctx context.Context, _ media.Blob) (media.Clip, error) {
	<-ctx.Done()
	return media.Clip{}, ctx.Err()
}

func TestMixAbortKeepsUnmixedMediaPostable(t *testing.T) {
	clock := frameclock.NewTicker(60)
	t.Cleanup(clock.Close)

	drv := device.NewSynthetic()
	engine := recorder.NewEngine(recorder.NewCKVFactory())
	mix := mixer.New(engine, mixer.WithDecoder(blockedDecoder{}))
	sink := &capturedPost{}
	ctrl := NewController(device.NewAcquirer(drv), engine, mix, clock, WithPoster(sink))
	t.Cleanup(ctrl.Shutdown)

	unmixed := recordBriefly(t, ctrl, false, 200*time.Millisecond)

	require.NoError(t, ctrl.SetOverlay(mixer.Overlay{
		Source:   mixer.EncodeWAV(media.Clip{Samples: make([]float32, 8000), Channels: 2, SampleRate: 8000}),
		Volume:   0.5,
		OffsetMs: -1000,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Post(ctx, "caption")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, mixer.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("post did not observe the abort")
	}

	// Cancellation is not a failure: still in review, media unchanged.
	require.Equal(t, PhaseReview, ctrl.Phase())
	require.NotEqual(t, StatusError, ctrl.Status().Kind)
	require.Same(t, unmixed, ctrl.Recorded())

	// The unmixed recording posts fine once the overlay is dropped.
	ctrl.ClearOverlay()
	f, err := ctrl.Post(context.Background(), "caption")
	require.NoError(t, err)
	require.Equal(t, unmixed.Blob.Data, f.Blob.Data)
	require.Equal(t, PhaseSelect, ctrl.Phase())
	require.Equal(t, 1, sink.count())

	// Every minted handle was revoked exactly once.
	require.Equal(t, ctrl.Handles().Created(), ctrl.Handles().Released())
	require.Zero(t, ctrl.Handles().Outstanding())
}

func TestPostWithOverlayReplacesMedia(t *testing.T) {
	rig := newTestRig(t, nil)
	unmixed := recordBriefly(t, rig.ctrl, false, 300*time.Millisecond)

	require.NoError(t, rig.ctrl.SetOverlay(mixer.Overlay{
		Source: mixer.EncodeWAV(media.Clip{
			Samples:    make([]float32, 5*8000*2), // 5s, comfortably longer than the take
			Channels:   2,
			SampleRate: 8000,
		}),
		Volume: 1,
	}))

	f, err := rig.ctrl.Post(context.Background(), "caption")
	require.NoError(t, err)
	require.NotEqual(t, unmixed.Blob.Data, f.Blob.Data, "posted media is the mixed render")
	require.Equal(t, PhaseSelect, rig.ctrl.Phase())
	require.Equal(t, rig.ctrl.Handles().Created(), rig.ctrl.Handles().Released())
}

func TestGreenScreenSession(t *testing.T) {
	rig := newTestRig(t, nil)
	rec := recordBriefly(t, rig.ctrl, true, 300*time.Millisecond)
	require.NotEmpty(t, rec.Blob.Data)
	require.NoError(t, rig.ctrl.Discard())
}

func TestCompositorFailureFallsBackToSelect(t *testing.T) {
	cfg := compositor.DefaultConfig()
	cfg.NewTarget = func(int, int) (*image.RGBA, error) {
		return nil, errors.New("no graphics context")
	}
	rig := newTestRig(t, nil, WithCompositorConfig(cfg))

	err := rig.ctrl.EnterRecord(context.Background(), true)
	require.ErrorIs(t, err, compositor.ErrUnavailable)
	require.Equal(t, PhaseSelect, rig.ctrl.Phase())
	require.Equal(t, StatusError, rig.ctrl.Status().Kind)

	// The stream acquired before the probe failed must be released.
	require.Nil(t, rig.ctrl.acquirer.Current())

	// A non-green-screen take still works afterwards.
	require.NoError(t, rig.ctrl.EnterRecord(context.Background(), false))
}

func TestAcquisitionFailureStaysInSelect(t *testing.T) {
	rig := newTestRig(t, []device.SyntheticOption{
		device.WithFailure(device.NewError(device.CodePermissionDenied, errors.New("denied"))),
	})

	err := rig.ctrl.EnterRecord(context.Background(), false)
	require.Error(t, err)
	require.Equal(t, device.CodePermissionDenied, device.CodeOf(err))
	require.Equal(t, PhaseSelect, rig.ctrl.Phase())
	require.Equal(t, StatusError, rig.ctrl.Status().Kind)
}

func TestDeadlineAutoStops(t *testing.T) {
	rig := newTestRig(t, nil, WithMaxDuration(150*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, rig.ctrl.EnterRecord(ctx, false))
	_, err := rig.ctrl.StartRecording()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rig.ctrl.Phase() == PhaseReview
	}, 3*time.Second, 10*time.Millisecond, "deadline did not stop the recording")
	require.NotNil(t, rig.ctrl.Recorded())
}

func TestPhaseGuards(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.ctrl.StartRecording()
	require.ErrorIs(t, err, ErrWrongPhase)
	_, err = rig.ctrl.StopRecording(ctx)
	require.ErrorIs(t, err, ErrWrongPhase)
	require.ErrorIs(t, rig.ctrl.Discard(), ErrWrongPhase)
	require.ErrorIs(t, rig.ctrl.SetOverlay(mixer.Overlay{}), ErrWrongPhase)
	_, err = rig.ctrl.Post(ctx, "")
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestShutdownReleasesEverything(t *testing.T) {
	rig := newTestRig(t, nil)
	recordBriefly(t, rig.ctrl, false, 150*time.Millisecond)

	rig.ctrl.Shutdown()
	require.Equal(t, rig.ctrl.Handles().Created(), rig.ctrl.Handles().Released())
	require.ErrorIs(t, rig.ctrl.EnterRecord(context.Background(), false), ErrSessionClosed)
}
