package recorder

import "errors"

var (
	// ErrEncoderUnsupported is returned when no codec in the negotiation
	// ladder is supported by the encoder factory.
	ErrEncoderUnsupported = errors.New("recorder: no supported codec in negotiation ladder")

	// ErrRecordFailed wraps unexpected encoder failures.
	ErrRecordFailed = errors.New("recorder: recording failed")

	// ErrNoRecording is returned by Stop when no recording was ever started.
	ErrNoRecording = errors.New("recorder: no recording to stop")
)
