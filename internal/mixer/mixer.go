// Package mixer renders a recorded video together with an overlay audio
// clip into a new deliverable. Rendering is offline and deterministic: the
// source container is replayed frame by frame into a fresh encoder instead
// of being re-captured in real time.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lumodate/capturekit/internal/ckv"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/log"
	"github.com/lumodate/capturekit/internal/media"
	"github.com/lumodate/capturekit/internal/recorder"
)

var (
	// ErrCancelled reports a render aborted through its context. It is a
	// user action, not a failure, and callers should treat it as such.
	ErrCancelled = errors.New("mixer: render cancelled")

	// ErrNoOverlay reports a request without overlay audio.
	ErrNoOverlay = errors.New("mixer: no overlay audio")

	// ErrEmptyVideo reports a request whose source video has no frames.
	ErrEmptyVideo = errors.New("mixer: source video is empty")

	// ErrMixFailed wraps decode and encode failures during a render.
	ErrMixFailed = errors.New("mixer: mix failed")
)

// Overlay is the audio layered over a recording.
type Overlay struct {
	Source media.Blob
	// Volume is a linear gain in [0,1] applied to the overlay samples.
	Volume float64
	// OffsetMs aligns the overlay against the video. Positive values delay
	// the overlay's start; negative values skip into the overlay buffer.
	OffsetMs int
}

// Request describes one render.
type Request struct {
	Video   media.Blob
	Overlay Overlay
}

// Mixer re-encodes recordings with overlay audio mixed in. It shares the
// recorder's codec ladder so a mixed deliverable negotiates the same way
// the original recording did.
type Mixer struct {
	factory recorder.EncoderFactory
	ladder  []recorder.Codec
	decoder AudioDecoder
	logger  zerolog.Logger
}

// MixerOption customises a Mixer.
type MixerOption func(*Mixer)

// WithDecoder replaces the built-in WAV decoder.
func WithDecoder(d AudioDecoder) MixerOption {
	return func(m *Mixer) { m.decoder = d }
}

// WithMixerLogger overrides the component logger.
func WithMixerLogger(l zerolog.Logger) MixerOption {
	return func(m *Mixer) { m.logger = l }
}

// New builds a mixer that encodes through the given engine's factory and
// ladder.
func New(engine *recorder.Engine, opts ...MixerOption) *Mixer {
	m := &Mixer{
		factory: engine.Factory(),
		ladder:  engine.Ladder(),
		decoder: WAVDecoder{},
		logger:  log.WithComponent("mixer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Render produces a new deliverable from the request. The input blobs are
// not modified; repeated renders of the same request yield the same frame
// and sample content.
//
// The output duration is min(video − startDelay, overlay − bufferSkip)
// where a positive offset contributes startDelay and a negative offset
// contributes bufferSkip. A render never extends the video.
func (m *Mixer) Render(ctx context.Context, req Request) (*media.Recorded, error) {
	started := time.Now()
	rec, err := m.render(ctx, req)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	rendersTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		renderSeconds.Observe(time.Since(started).Seconds())
	}
	return rec, err
}

func (m *Mixer) render(ctx context.Context, req Request) (*media.Recorded, error) {
	if req.Video.Empty() {
		return nil, ErrEmptyVideo
	}
	if req.Overlay.Source.Empty() {
		return nil, ErrNoOverlay
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	src, err := ckv.Parse(req.Video.Data)
	if err != nil {
		return nil, wrapMixFailed(fmt.Errorf("parse source video: %w", err))
	}
	if src.FrameCount() == 0 {
		return nil, ErrEmptyVideo
	}

	clip, err := m.decoder.Decode(ctx, req.Overlay.Source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, wrapMixFailed(fmt.Errorf("decode overlay: %w", err))
	}
	if clip.FrameCount() == 0 {
		return nil, ErrNoOverlay
	}

	offset := time.Duration(req.Overlay.OffsetMs) * time.Millisecond
	var delay, skip time.Duration
	if offset > 0 {
		delay = offset
	} else {
		skip = -offset
	}

	outDur := src.Duration() - delay
	if rem := clip.Duration() - skip; rem < outDur {
		outDur = rem
	}
	if outDur <= 0 {
		return nil, wrapMixFailed(errors.New("overlay alignment leaves nothing to render"))
	}

	fps := src.Header.FPS
	if fps <= 0 {
		fps = 30
	}
	frames := int(outDur * time.Duration(fps) / time.Second)
	if frames < 1 {
		frames = 1
	}

	audio := m.mixAudio(src, clip, req.Overlay.Volume, delay, skip, outDur)

	mime, err := recorder.Negotiate(m.factory, m.ladder, true)
	if err != nil {
		return nil, wrapMixFailed(err)
	}
	enc, err := m.factory.New(mime)
	if err != nil {
		return nil, wrapMixFailed(err)
	}

	m.logger.Info().
		Str(log.FieldCodec, mime).
		Int(log.FieldFPS, fps).
		Dur("output", outDur).
		Int("offset_ms", req.Overlay.OffsetMs).
		Msg("render started")

	blob, err := m.replay(ctx, src, audio, enc, mime, fps, frames)
	if err != nil {
		return nil, err
	}
	return &media.Recorded{Blob: *blob, CreatedAt: time.Now()}, nil
}

// mixAudio builds the output sample buffer in the overlay's format. The
// source recording's own audio is summed in when its layout matches;
// resampling is out of scope, so a mismatched base track is replaced by
// the overlay.
func (m *Mixer) mixAudio(src *ckv.Reader, clip media.Clip, volume float64, delay, skip, outDur time.Duration) media.Clip {
	ch := clip.Channels
	rate := clip.SampleRate
	gain := float32(volume)

	totalFrames := int(outDur * time.Duration(rate) / time.Second)
	out := make([]float32, totalFrames*ch)

	if src.Header.HasAudio && src.Header.Channels == ch && src.Header.SampleRate == rate {
		base := ckv.Float32FromPCM16(src.Audio())
		n := len(base)
		if n > len(out) {
			n = len(out)
		}
		copy(out[:n], base[:n])
	}

	delayFrames := int(delay * time.Duration(rate) / time.Second)
	skipFrames := int(skip * time.Duration(rate) / time.Second)
	clipFrames := clip.FrameCount()

	for i := delayFrames; i < totalFrames; i++ {
		ci := i - delayFrames + skipFrames
		if ci >= clipFrames {
			break
		}
		for c := 0; c < ch; c++ {
			out[i*ch+c] += clip.Samples[ci*ch+c] * gain
		}
	}
	return media.Clip{Samples: out, Channels: ch, SampleRate: rate}
}

// replay feeds decoded source frames and the mixed audio through a fresh
// encoder and assembles its output chunks.
func (m *Mixer) replay(ctx context.Context, src *ckv.Reader, audio media.Clip, enc recorder.Encoder, mime string, fps, frames int) (*media.Blob, error) {
	videoCh := make(chan media.Frame)
	audioCh := make(chan media.AudioChunk)
	stream := device.NewStream(&offlineVideo{ch: videoCh}, &offlineAudio{ch: audioCh})

	var (
		chunkMu sync.Mutex
		chunks  [][]byte
	)
	onChunk := func(b []byte) {
		chunkMu.Lock()
		chunks = append(chunks, b)
		chunkMu.Unlock()
	}

	events := make(chan recorder.Notification, 8)
	onEvent := func(n recorder.Notification) {
		select {
		case events <- n:
		default:
		}
	}

	if err := enc.Start(stream, onChunk, onEvent); err != nil {
		return nil, wrapMixFailed(err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Closing both channels is what ends the encoder, so it must
		// happen on every exit path including cancellation.
		defer close(videoCh)
		defer close(audioCh)

		for i := 0; i < frames; i++ {
			img, err := src.DecodeFrame(i % src.FrameCount())
			if err != nil {
				return wrapMixFailed(err)
			}
			canvas := image.NewRGBA(img.Bounds())
			draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
			pts := time.Duration(i) * time.Second / time.Duration(fps)

			// Audio leads its frame so the encoder sees the sample
			// format before it commits a header.
			if samples := sliceForFrame(audio, i, fps); len(samples) > 0 {
				select {
				case audioCh <- media.AudioChunk{
					Samples:    samples,
					Channels:   audio.Channels,
					SampleRate: audio.SampleRate,
					PTS:        pts,
				}:
				case <-gctx.Done():
					return abortErr(ctx)
				}
			}

			select {
			case videoCh <- media.Frame{Image: canvas, PTS: pts}:
			case <-gctx.Done():
				return abortErr(ctx)
			}
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case n := <-events:
				switch n.Event {
				case recorder.EventStopped:
					return nil
				case recorder.EventError:
					return wrapMixFailed(n.Err)
				}
			case <-gctx.Done():
				return abortErr(ctx)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunkMu.Lock()
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range chunks {
		data = append(data, c...)
	}
	chunkMu.Unlock()

	return &media.Blob{Data: data, MIME: mime}, nil
}

// sliceForFrame returns the interleaved samples covering video frame i.
func sliceForFrame(audio media.Clip, i, fps int) []float32 {
	totalFrames := audio.FrameCount()
	start := i * audio.SampleRate / fps
	end := (i + 1) * audio.SampleRate / fps
	if start >= totalFrames {
		return nil
	}
	if end > totalFrames {
		end = totalFrames
	}
	return audio.Samples[start*audio.Channels : end*audio.Channels]
}

// abortErr maps a group shutdown onto the right error: the caller's
// context means the user aborted, anything else surfaces from the peer
// goroutine through the group.
func abortErr(outer context.Context) error {
	if outer.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func wrapMixFailed(err error) error {
	if err == nil {
		return ErrMixFailed
	}
	return &mixError{cause: err}
}

type mixError struct{ cause error }

func (e *mixError) Error() string { return "mixer: mix failed: " + e.cause.Error() }
func (e *mixError) Unwrap() error { return e.cause }
func (e *mixError) Is(target error) bool {
	return target == ErrMixFailed
}

type offlineVideo struct{ ch chan media.Frame }

func (t *offlineVideo) Kind() device.TrackKind     { return device.KindVideo }
func (t *offlineVideo) Frames() <-chan media.Frame { return t.ch }
func (t *offlineVideo) Stop()                      {}

type offlineAudio struct{ ch chan media.AudioChunk }

func (t *offlineAudio) Kind() device.TrackKind          { return device.KindAudio }
func (t *offlineAudio) Chunks() <-chan media.AudioChunk { return t.ch }
func (t *offlineAudio) Stop()                           {}
