package recorder

import (
	"github.com/lumodate/capturekit/internal/device"
)

// Event kinds emitted by an encoder during its lifecycle.
type Event int

const (
	// EventStarted signals the encoder is consuming the stream. Stop
	// requests issued before this point are queued by the engine.
	EventStarted Event = iota
	// EventStopped signals the final chunk has been emitted.
	EventStopped
	// EventError signals the encoder failed; it will emit nothing further.
	EventError
)

// Notification pairs an event with its error for EventError.
type Notification struct {
	Event Event
	Err   error
}

// Encoder is the platform's incremental media encoder. Implementations emit
// output chunks as they become available and report lifecycle events from
// their own goroutine.
type Encoder interface {
	// Start begins consuming the stream. onChunk and onEvent may be called
	// until EventStopped or EventError is delivered.
	Start(stream *device.Stream, onChunk func([]byte), onEvent func(Notification)) error

	// RequestStop asks the encoder to flush and stop. Idempotent.
	RequestStop()
}

// EncoderFactory creates encoders and reports which MIME types the host
// supports, driving codec negotiation.
type EncoderFactory interface {
	Supports(mime string) bool
	New(mime string) (Encoder, error)
}
