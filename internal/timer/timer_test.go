package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumodate/capturekit/internal/frameclock"
)

const frame = 33 * time.Millisecond

func TestDeadlineFiresExactlyOnce(t *testing.T) {
	clk := frameclock.NewManual(time.Unix(0, 0))
	tm := New(clk)

	var fired int
	tm.Start(100*time.Millisecond, func() { fired++ })

	// Plenty of frames around and past the deadline.
	clk.StepN(10, frame)
	require.Equal(t, 1, fired)
}

func TestElapsedTracksFrames(t *testing.T) {
	clk := frameclock.NewManual(time.Unix(0, 0))
	tm := New(clk)

	tm.Start(time.Hour, func() { t.Fatal("deadline must not fire") })
	clk.StepN(4, frame)

	// First frame establishes the start reference, three more advance it.
	require.Equal(t, 3*frame, tm.Elapsed())
}

func TestResetRearmsDeadline(t *testing.T) {
	clk := frameclock.NewManual(time.Unix(0, 0))
	tm := New(clk)

	var fired int
	tm.Start(2*frame, func() { fired++ })
	clk.StepN(4, frame)
	require.Equal(t, 1, fired)

	// After firing, no further ticks are scheduled.
	clk.StepN(4, frame)
	require.Equal(t, 1, fired)

	tm.Start(2*frame, func() { fired++ })
	clk.StepN(4, frame)
	require.Equal(t, 2, fired, "new start/reset cycle gets its own deadline")
}

func TestResetStopsTicking(t *testing.T) {
	clk := frameclock.NewManual(time.Unix(0, 0))
	tm := New(clk)

	tm.Start(2*frame, func() { t.Fatal("deadline fired after reset") })
	clk.Step(frame)
	tm.Reset()
	clk.StepN(5, frame)
	require.Equal(t, time.Duration(0), tm.Elapsed())
}
