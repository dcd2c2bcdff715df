// Package capture orchestrates the pipeline components into one
// select/record/review session flow: stream acquisition, optional
// green-screen compositing, recording with a deadline, overlay mixing and
// posting. It owns cancellation and resource teardown on every exit path.
package capture

import (
	"errors"
	"time"

	"github.com/lumodate/capturekit/internal/media"
)

// Phase is the controller's coarse position in the session flow.
type Phase string

const (
	PhaseSelect Phase = "select"
	PhaseRecord Phase = "record"
	PhaseReview Phase = "review"
)

// event drives the phase machine.
type event string

const (
	eventArm     event = "arm"     // select -> record
	eventFinish  event = "finish"  // record -> review
	eventAbort   event = "abort"   // record -> select
	eventDiscard event = "discard" // review -> select
	eventRetry   event = "retry"   // review -> record
	eventPost    event = "post"    // review -> select
)

func newPhaseMachine() *Machine[Phase, event] {
	m, err := NewMachine(PhaseSelect, []Transition[Phase, event]{
		{From: PhaseSelect, Event: eventArm, To: PhaseRecord},
		{From: PhaseRecord, Event: eventFinish, To: PhaseReview},
		{From: PhaseRecord, Event: eventAbort, To: PhaseSelect},
		{From: PhaseReview, Event: eventDiscard, To: PhaseSelect},
		{From: PhaseReview, Event: eventRetry, To: PhaseRecord},
		{From: PhaseReview, Event: eventPost, To: PhaseSelect},
	})
	if err != nil {
		// The table is static; a bad edge is a programming error.
		panic(err)
	}
	return m
}

// StatusKind is the fine-grained state shown to the UI layer.
type StatusKind string

const (
	StatusIdle                 StatusKind = "idle"
	StatusRequestingPermission StatusKind = "requesting-permission"
	StatusReady                StatusKind = "ready"
	StatusRecording            StatusKind = "recording"
	StatusStopping             StatusKind = "stopping"
	StatusError                StatusKind = "error"
)

// Status combines the status tag with an error message when relevant.
type Status struct {
	Kind    StatusKind
	Message string
}

// File is the named deliverable handed to the post collaborator.
type File struct {
	Name      string
	Blob      media.Blob
	CreatedAt time.Time
}

var (
	// ErrWrongPhase reports an operation outside its legal phase.
	ErrWrongPhase = errors.New("capture: operation not valid in current phase")

	// ErrNoRecordedMedia reports review operations before media exists.
	ErrNoRecordedMedia = errors.New("capture: no recorded media")

	// ErrSessionClosed reports use of a controller after Shutdown.
	ErrSessionClosed = errors.New("capture: controller is shut down")
)
