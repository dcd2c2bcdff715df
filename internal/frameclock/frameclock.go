// Package frameclock provides the frame-pacing primitive that drives the
// pipeline's continuous loops (compositor redraw, recording timer tick).
// Callbacks are one-shot: a loop re-requests itself from within its callback,
// and teardown cancels the outstanding request so no loop outlives its owner.
package frameclock

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc removes a pending callback. Safe to call more than once and
// after the callback has fired.
type CancelFunc func()

// Clock schedules a callback for the next frame.
type Clock interface {
	Request(cb func(now time.Time)) CancelFunc
}

// Ticker is a wall-clock backed Clock firing at a fixed frame rate.
type Ticker struct {
	mu      sync.Mutex
	pending map[int]func(time.Time)
	nextID  int
	done    chan struct{}
	closed  bool
	ticker  *time.Ticker
	wg      sync.WaitGroup
}

// NewTicker starts a frame clock at the given frames per second.
// Close must be called to stop the internal loop.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	t := &Ticker{
		pending: make(map[int]func(time.Time)),
		done:    make(chan struct{}),
		ticker:  time.NewTicker(time.Second / time.Duration(fps)),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Ticker) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case now := <-t.ticker.C:
			fire(&t.mu, &t.pending, now)
		}
	}
}

// Request schedules cb for the next frame.
func (t *Ticker) Request(cb func(now time.Time)) CancelFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.pending[id] = cb
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.pending, id)
	}
}

// Close stops the clock. Pending callbacks never fire.
func (t *Ticker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.pending = make(map[int]func(time.Time))
	t.mu.Unlock()
	close(t.done)
	t.ticker.Stop()
	t.wg.Wait()
}

// Manual is a deterministic Clock for tests: frames fire only when Step is
// called, and time advances exactly as told.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending map[int]func(time.Time)
	nextID  int
}

// NewManual returns a Manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, pending: make(map[int]func(time.Time))}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Request schedules cb for the next Step.
func (m *Manual) Request(cb func(now time.Time)) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.pending[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.pending, id)
	}
}

// Step advances time by d and fires every callback that was pending before
// the step. Callbacks re-requested during the step wait for the next one.
func (m *Manual) Step(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	m.mu.Unlock()
	fire(&m.mu, &m.pending, now)
}

// StepN performs n steps of d each.
func (m *Manual) StepN(n int, d time.Duration) {
	for i := 0; i < n; i++ {
		m.Step(d)
	}
}

// fire drains the pending set under the lock, then invokes the callbacks in
// registration order outside it so they can re-request.
func fire(mu *sync.Mutex, pending *map[int]func(time.Time), now time.Time) {
	mu.Lock()
	batch := *pending
	*pending = make(map[int]func(time.Time))
	mu.Unlock()

	ids := make([]int, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		batch[id](now)
	}
}
