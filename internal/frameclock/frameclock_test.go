package frameclock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestManualFiresOncePerStep(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var fired int
	m.Request(func(time.Time) { fired++ })
	m.Step(time.Millisecond)
	m.Step(time.Millisecond)
	require.Equal(t, 1, fired, "one-shot callback must not refire")
}

func TestManualReRequestWaitsForNextStep(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var ticks int
	var loop func(time.Time)
	loop = func(time.Time) {
		ticks++
		m.Request(loop)
	}
	m.Request(loop)

	m.StepN(5, 16*time.Millisecond)
	require.Equal(t, 5, ticks)
}

func TestManualCancelPreventsFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var fired bool
	cancel := m.Request(func(time.Time) { fired = true })
	cancel()
	cancel() // idempotent
	m.Step(time.Millisecond)
	require.False(t, fired)
}

func TestManualAdvancesTime(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)

	var got time.Time
	m.Request(func(now time.Time) { got = now })
	m.Step(33 * time.Millisecond)

	require.Equal(t, start.Add(33*time.Millisecond), got)
	require.Equal(t, start.Add(33*time.Millisecond), m.Now())
}

func TestTickerFiresAndCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := NewTicker(200)
	var fired atomic.Int32

	var loop func(time.Time)
	loop = func(time.Time) {
		fired.Add(1)
		clk.Request(loop)
	}
	clk.Request(loop)

	require.Eventually(t, func() bool { return fired.Load() >= 3 }, time.Second, time.Millisecond)
	clk.Close()
	clk.Close() // idempotent
}

func TestTickerRequestAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := NewTicker(200)
	clk.Close()
	cancel := clk.Request(func(time.Time) { t.Fatal("must not fire after close") })
	cancel()
	time.Sleep(20 * time.Millisecond)
}
