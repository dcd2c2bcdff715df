// Package recorder wraps the platform's incremental media encoder behind a
// token-guarded engine: codec negotiation down a candidate ladder, chunk
// accumulation, and exactly-once finalization with idempotent stop.
package recorder

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/log"
	"github.com/lumodate/capturekit/internal/media"
)

// Engine owns at most one in-flight recording. Tokens are minted per start
// so callbacks from a superseded recorder instance can be discarded.
type Engine struct {
	factory EncoderFactory
	ladder  []Codec
	logger  zerolog.Logger

	mu       sync.Mutex
	lastTok  int64
	active   *session
	sessions map[int64]*session

	group singleflight.Group
}

// Option customises an Engine.
type Option func(*Engine)

// WithLadder replaces the codec negotiation ladder.
func WithLadder(ladder []Codec) Option {
	return func(e *Engine) { e.ladder = ladder }
}

// WithEngineLogger overrides the component logger.
func WithEngineLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine around an encoder factory.
func NewEngine(factory EncoderFactory, opts ...Option) *Engine {
	e := &Engine{
		factory:  factory,
		ladder:   DefaultLadder,
		logger:   log.WithComponent("recorder"),
		sessions: make(map[int64]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type session struct {
	token int64
	enc   Encoder
	mime  string

	mu            sync.Mutex
	chunks        [][]byte
	started       bool
	stopQueued    bool
	stopRequested bool
	finalized     bool

	done   chan struct{}
	result *media.Recorded
	err    error
}

// Start negotiates a codec and begins recording the stream. Starting while
// a recording is active is a no-op returning the existing token: two
// concurrent recordings are not legal.
func (e *Engine) Start(stream *device.Stream) (int64, error) {
	e.mu.Lock()
	if e.active != nil {
		token := e.active.token
		e.mu.Unlock()
		return token, nil
	}

	mime, err := Negotiate(e.factory, e.ladder, stream.HasAudio())
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	enc, err := e.factory.New(mime)
	if err != nil {
		e.mu.Unlock()
		return 0, wrapRecordFailed(err)
	}

	e.lastTok++
	s := &session{
		token: e.lastTok,
		enc:   enc,
		mime:  mime,
		done:  make(chan struct{}),
	}
	e.active = s
	e.sessions[s.token] = s
	e.mu.Unlock()

	sessionsStarted.Inc()
	e.logger.Info().
		Int64(log.FieldToken, s.token).
		Str(log.FieldCodec, mime).
		Msg("recording started")

	if err := enc.Start(stream, e.chunkHandler(s), e.eventHandler(s)); err != nil {
		e.finalize(s, wrapRecordFailed(err))
		return 0, wrapRecordFailed(err)
	}
	return s.token, nil
}

// Stop finalizes the recording identified by token (0 means the current
// one) and returns its media. Stop is idempotent: repeated calls, from any
// number of call sites, resolve to the same result. If the encoder has not
// reported itself started yet, the stop is queued and applied on the
// started event.
func (e *Engine) Stop(ctx context.Context, token int64) (*media.Recorded, error) {
	e.mu.Lock()
	s := e.lookupLocked(token)
	e.mu.Unlock()
	if s == nil {
		return nil, ErrNoRecording
	}

	// All stops for one token share one flight; late callers after
	// completion re-read the stored result.
	v, err, _ := e.group.Do(strconv.FormatInt(s.token, 10), func() (interface{}, error) {
		s.requestStop()
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.result, s.err
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*media.Recorded), nil
}

// Active reports whether a recording is currently in flight.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Ladder exposes the engine's negotiation ladder (for the offline mixer,
// which re-encodes with the same codec preferences).
func (e *Engine) Ladder() []Codec { return e.ladder }

// Factory exposes the engine's encoder factory.
func (e *Engine) Factory() EncoderFactory { return e.factory }

func (e *Engine) lookupLocked(token int64) *session {
	if token == 0 {
		if e.active != nil {
			return e.active
		}
		return e.sessions[e.lastTok]
	}
	return e.sessions[token]
}

func (e *Engine) chunkHandler(s *session) func([]byte) {
	return func(chunk []byte) {
		s.mu.Lock()
		if !s.finalized {
			s.chunks = append(s.chunks, chunk)
		}
		s.mu.Unlock()
		chunksReceived.Inc()
		bytesReceived.Add(float64(len(chunk)))
	}
}

func (e *Engine) eventHandler(s *session) func(Notification) {
	return func(n Notification) {
		switch n.Event {
		case EventStarted:
			s.mu.Lock()
			s.started = true
			fireQueued := s.stopQueued && !s.stopRequested
			if fireQueued {
				s.stopRequested = true
			}
			s.mu.Unlock()
			if fireQueued {
				s.enc.RequestStop()
			}
		case EventStopped:
			e.finalize(s, nil)
		case EventError:
			e.finalize(s, wrapRecordFailed(n.Err))
		}
	}
}

// finalize assembles the blob exactly once per token, whether triggered by
// a natural stop or an error event.
func (e *Engine) finalize(s *session, err error) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	if err != nil {
		s.err = err
	} else {
		var buf bytes.Buffer
		for _, c := range s.chunks {
			buf.Write(c)
		}
		s.result = &media.Recorded{
			Blob:      media.Blob{Data: buf.Bytes(), MIME: s.mime},
			CreatedAt: time.Now(),
		}
	}
	s.chunks = nil
	s.mu.Unlock()

	e.mu.Lock()
	if e.active == s {
		e.active = nil
	}
	e.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	finalizations.WithLabelValues(outcome).Inc()
	e.logger.Info().
		Int64(log.FieldToken, s.token).
		Str("outcome", outcome).
		Msg("recording finalized")
	close(s.done)
}

func (s *session) requestStop() {
	s.mu.Lock()
	if s.finalized || s.stopRequested {
		s.mu.Unlock()
		return
	}
	if !s.started {
		// Encoder has not reported started yet: queue the stop, it is
		// applied as soon as the started event arrives.
		s.stopQueued = true
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	s.mu.Unlock()
	s.enc.RequestStop()
}

func wrapRecordFailed(err error) error {
	if err == nil {
		return ErrRecordFailed
	}
	return &recordError{cause: err}
}

type recordError struct{ cause error }

func (e *recordError) Error() string { return "recorder: recording failed: " + e.cause.Error() }
func (e *recordError) Unwrap() error { return e.cause }
func (e *recordError) Is(target error) bool {
	return target == ErrRecordFailed
}
