// Package timer implements the frame-synchronized recording timer: a
// per-frame elapsed counter with a one-shot deadline callback. The timer
// never stops a recording itself; the controller wires the deadline callback
// to the recorder's stop.
package timer

import (
	"sync"
	"time"

	"github.com/lumodate/capturekit/internal/frameclock"
)

// Timer measures elapsed recording time against a frame clock.
type Timer struct {
	clock frameclock.Clock

	mu        sync.Mutex
	startedAt time.Time
	elapsed   time.Duration
	deadline  time.Duration
	onDeadly  func()
	fired     bool
	running   bool
	cancel    frameclock.CancelFunc
}

// New builds a timer driven by clock.
func New(clock frameclock.Clock) *Timer {
	return &Timer{clock: clock}
}

// Start begins ticking toward deadline. onDeadline fires exactly once when
// the elapsed time reaches the deadline; a delayed final frame cannot fire
// it twice. Restarting an already running timer resets it first.
func (t *Timer) Start(deadline time.Duration, onDeadline func()) {
	t.Reset()

	t.mu.Lock()
	t.deadline = deadline
	t.onDeadly = onDeadline
	t.fired = false
	t.running = true
	t.elapsed = 0
	t.startedAt = time.Time{}
	t.cancel = t.clock.Request(t.tick)
	t.mu.Unlock()
}

func (t *Timer) tick(now time.Time) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
	t.elapsed = now.Sub(t.startedAt)

	var fire func()
	if !t.fired && t.elapsed >= t.deadline {
		// Stop scheduling until Reset; the fired flag guards a late frame
		// that might still be in flight.
		t.fired = true
		t.running = false
		fire = t.onDeadly
	} else {
		t.cancel = t.clock.Request(t.tick)
	}
	t.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Reset stops ticking and clears elapsed state. The deadline callback will
// not fire after Reset until the next Start.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.fired = false
	t.elapsed = 0
	t.startedAt = time.Time{}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Elapsed returns the time counted since Start, frozen once the deadline
// fires and cleared by Reset.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}
