package recorder

import (
	"fmt"
	"sync"

	"github.com/lumodate/capturekit/internal/ckv"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/media"
)

// CKVFactory builds the in-process reference encoder emitting the ckv
// container. It is the generic fallback at the bottom of the codec ladder
// and the only encoder available on hosts without native codec support.
type CKVFactory struct {
	FPS int
}

// NewCKVFactory returns a factory recording at the default 30 fps.
func NewCKVFactory() *CKVFactory {
	return &CKVFactory{FPS: 30}
}

// Supports implements EncoderFactory.
func (f *CKVFactory) Supports(mime string) bool {
	return mime == ckv.MIMEVideo || mime == ckv.MIMEVideoAudio
}

// New implements EncoderFactory.
func (f *CKVFactory) New(mime string) (Encoder, error) {
	if !f.Supports(mime) {
		return nil, fmt.Errorf("ckv encoder: unsupported mime %q", mime)
	}
	fps := f.FPS
	if fps <= 0 {
		fps = 30
	}
	return &ckvEncoder{mime: mime, fps: fps, stop: make(chan struct{})}, nil
}

type ckvEncoder struct {
	mime     string
	fps      int
	stop     chan struct{}
	stopOnce sync.Once
}

// Start implements Encoder.
func (e *ckvEncoder) Start(stream *device.Stream, onChunk func([]byte), onEvent func(Notification)) error {
	go e.run(stream, onChunk, onEvent)
	return nil
}

// RequestStop implements Encoder.
func (e *ckvEncoder) RequestStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *ckvEncoder) run(stream *device.Stream, onChunk func([]byte), onEvent func(Notification)) {
	onEvent(Notification{Event: EventStarted})

	videoCh := stream.Video().Frames()
	var audioCh <-chan media.AudioChunk
	wantAudio := e.mime == ckv.MIMEVideoAudio && stream.HasAudio()
	if wantAudio {
		audioCh = stream.Audio().Chunks()
	}

	var headerWritten bool
	var pendingAudio []media.AudioChunk

	writeHeader := func(frameW, frameH int) {
		h := ckv.Header{Width: frameW, Height: frameH, FPS: e.fps}
		if wantAudio {
			h.HasAudio = true
			h.Channels = 2
			h.SampleRate = 48000
			if len(pendingAudio) > 0 {
				h.Channels = pendingAudio[0].Channels
				h.SampleRate = pendingAudio[0].SampleRate
			}
		}
		onChunk(ckv.HeaderChunk(h))
		headerWritten = true
		for _, a := range pendingAudio {
			onChunk(ckv.AudioChunk(ckv.PCM16FromFloat32(a.Samples)))
		}
		pendingAudio = nil
	}

	for {
		select {
		case <-e.stop:
			onEvent(Notification{Event: EventStopped})
			return

		case f, ok := <-videoCh:
			if !ok {
				// Natural end of the source: flush and stop.
				onEvent(Notification{Event: EventStopped})
				return
			}
			if !headerWritten {
				writeHeader(f.Image.Bounds().Dx(), f.Image.Bounds().Dy())
			}
			jpg, err := ckv.EncodeFrame(f.Image)
			if err != nil {
				onEvent(Notification{Event: EventError, Err: err})
				return
			}
			onChunk(ckv.VideoChunk(jpg))

		case a, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			if !headerWritten {
				// Audio before the first frame: the header needs video
				// dimensions, so buffer until it can be written.
				pendingAudio = append(pendingAudio, a)
				continue
			}
			onChunk(ckv.AudioChunk(ckv.PCM16FromFloat32(a.Samples)))
		}
	}
}
