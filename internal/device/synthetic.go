package device

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumodate/capturekit/internal/media"
)

// Stats summarises a synthetic driver's production counters.
type Stats struct {
	FirstFrameLatency time.Duration
	FramesProduced    int64
	FramesDropped     int64
}

// Synthetic is an in-process capture driver that renders a deterministic
// test pattern and a sine tone. It backs the demo binary and every test
// that needs live tracks without hardware.
type Synthetic struct {
	name     string
	hasAudio bool
	failWith error

	firstFrame atomic.Int64 // ns latency, set once
	produced   atomic.Int64
	dropped    atomic.Int64
}

// SyntheticOption customises a Synthetic driver.
type SyntheticOption func(*Synthetic)

// WithoutAudio simulates a host with no audio input hardware: rungs that
// request audio fail with DEVICE_NOT_FOUND.
func WithoutAudio() SyntheticOption {
	return func(s *Synthetic) { s.hasAudio = false }
}

// WithFailure makes every open fail with err.
func WithFailure(err error) SyntheticOption {
	return func(s *Synthetic) { s.failWith = err }
}

// NewSynthetic builds a synthetic driver.
func NewSynthetic(opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{name: "synthetic", hasAudio: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Driver.
func (s *Synthetic) Name() string { return s.name }

// Open implements Driver.
func (s *Synthetic) Open(ctx context.Context, c Constraints) (*Stream, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	if c.Audio && !s.hasAudio {
		return nil, NewError(CodeDeviceNotFound, errNoAudioInput)
	}

	width, height, fps := c.Width, c.Height, c.FrameRate
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 360
	}
	if fps == 0 {
		fps = 30
	}

	opened := time.Now()
	video := newSyntheticVideo(s, width, height, fps, c.Facing, opened)
	var audio AudioTrack
	if c.Audio {
		audio = newSyntheticAudio()
	}
	return NewStream(video, audio), nil
}

// Stats returns production counters accumulated across all opened tracks.
func (s *Synthetic) Stats() Stats {
	return Stats{
		FirstFrameLatency: time.Duration(s.firstFrame.Load()),
		FramesProduced:    s.produced.Load(),
		FramesDropped:     s.dropped.Load(),
	}
}

var errNoAudioInput = &noAudioError{}

type noAudioError struct{}

func (*noAudioError) Error() string { return "no audio input device" }

type syntheticVideo struct {
	frames   chan media.Frame
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSyntheticVideo(drv *Synthetic, width, height, fps int, facing FacingMode, opened time.Time) *syntheticVideo {
	ctx, cancel := context.WithCancel(context.Background())
	t := &syntheticVideo{
		frames: make(chan media.Frame, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	interval := time.Second / time.Duration(fps)

	go func() {
		defer close(t.done)
		defer close(t.frames)
		for idx := 0; ; idx++ {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			frame := media.Frame{
				Image: drawPattern(width, height, idx, facing),
				PTS:   time.Duration(idx) * interval,
			}
			if idx == 0 {
				drv.firstFrame.CompareAndSwap(0, int64(time.Since(opened)))
			}
			select {
			case t.frames <- frame:
				drv.produced.Add(1)
			default:
				drv.dropped.Add(1)
			}
		}
	}()
	return t
}

func (t *syntheticVideo) Kind() TrackKind            { return KindVideo }
func (t *syntheticVideo) Frames() <-chan media.Frame { return t.frames }

func (t *syntheticVideo) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
	})
}

type syntheticAudio struct {
	chunks   chan media.AudioChunk
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

const (
	syntheticRate     = 48000
	syntheticChannels = 2
	syntheticChunkMs  = 20
	toneHz            = 440
)

func newSyntheticAudio() *syntheticAudio {
	ctx, cancel := context.WithCancel(context.Background())
	t := &syntheticAudio{
		chunks: make(chan media.AudioChunk, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	framesPerChunk := syntheticRate * syntheticChunkMs / 1000
	limiter := rate.NewLimiter(rate.Every(syntheticChunkMs*time.Millisecond), 1)

	go func() {
		defer close(t.done)
		defer close(t.chunks)
		var sampleFrame int64
		for idx := 0; ; idx++ {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			samples := make([]float32, framesPerChunk*syntheticChannels)
			for i := 0; i < framesPerChunk; i++ {
				v := float32(0.25 * math.Sin(2*math.Pi*toneHz*float64(sampleFrame)/syntheticRate))
				samples[2*i] = v
				samples[2*i+1] = v
				sampleFrame++
			}
			chunk := media.AudioChunk{
				Samples:    samples,
				Channels:   syntheticChannels,
				SampleRate: syntheticRate,
				PTS:        time.Duration(idx) * syntheticChunkMs * time.Millisecond,
			}
			select {
			case t.chunks <- chunk:
			default:
			}
		}
	}()
	return t
}

func (t *syntheticAudio) Kind() TrackKind                 { return KindAudio }
func (t *syntheticAudio) Chunks() <-chan media.AudioChunk { return t.chunks }

func (t *syntheticAudio) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
	})
}

// drawPattern renders the deterministic test card: a full-frame green key
// field with a moving white subject block, mirrored for the user-facing
// camera so previews look natural.
func drawPattern(width, height, idx int, facing FacingMode) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	key := color.RGBA{G: 255, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, key)
		}
	}

	side := height / 4
	if side < 1 {
		side = 1
	}
	x0 := (idx * 4) % maxInt(width-side, 1)
	if facing == FacingUser {
		x0 = maxInt(width-side, 1) - 1 - x0
	}
	y0 := (height - side) / 2
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := y0; y < y0+side && y < height; y++ {
		for x := x0; x < x0+side && x < width; x++ {
			img.SetRGBA(x, y, white)
		}
	}
	return img
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
