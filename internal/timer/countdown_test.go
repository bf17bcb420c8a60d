package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/timer"
)

type recorder struct {
	ticks   chan int
	expired atomic.Int32
	expCh   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ticks: make(chan int, 16), expCh: make(chan struct{}, 4)}
}

func (r *recorder) options() timer.Options {
	return timer.Options{
		OnTick: func(remaining int) { r.ticks <- remaining },
		OnExpire: func() {
			r.expired.Add(1)
			r.expCh <- struct{}{}
		},
	}
}

func (r *recorder) nextTick(t *testing.T) int {
	t.Helper()
	select {
	case v := <-r.ticks:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no tick observed")
		return -1
	}
}

func TestCountdownRunsToExpiry(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	rec := newRecorder()
	c := timer.New(clk, rec.options())

	require.NoError(t, c.Start(3))
	require.Equal(t, timer.Counting, c.State())
	require.Equal(t, 3, c.Remaining())

	var seen []int
	for i := 0; i < 3; i++ {
		clk.Tick(time.Second)
		seen = append(seen, rec.nextTick(t))
	}
	require.Equal(t, []int{2, 1, 0}, seen)

	select {
	case <-rec.expCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry not signalled")
	}
	require.Equal(t, timer.Expired, c.State())

	// Further ticks find no live ticker and change nothing.
	clk.Tick(time.Second)
	clk.Tick(time.Second)
	c.Stop()
	c.Stop()

	require.Equal(t, int32(1), rec.expired.Load())
	require.Equal(t, 0, c.Remaining())
	require.Equal(t, 0, clk.Tickers())
	require.Empty(t, rec.ticks)
}

func TestCountdownStartAtZeroSkipsCounting(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	rec := newRecorder()
	c := timer.New(clk, rec.options())

	require.NoError(t, c.Start(0))
	require.Equal(t, timer.Expired, c.State())
	require.Equal(t, 0, clk.Tickers())
	require.Equal(t, int32(0), rec.expired.Load())

	require.ErrorIs(t, c.Start(5), timer.ErrNotIdle)
	c.Stop()
}

func TestCountdownRejectsNegative(t *testing.T) {
	c := timer.New(clock.NewManual(time.Unix(0, 0)), timer.Options{})
	require.ErrorIs(t, c.Start(-1), timer.ErrNegativeRemaining)
	require.Equal(t, timer.Idle, c.State())
}

func TestCountdownStopPreventsLateTicks(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	rec := newRecorder()
	c := timer.New(clk, rec.options())

	require.NoError(t, c.Start(10))
	clk.Tick(time.Second)
	require.Equal(t, 9, rec.nextTick(t))

	c.Stop()
	require.Equal(t, timer.Idle, c.State())
	require.Equal(t, 0, clk.Tickers())

	clk.Tick(time.Second)
	require.Equal(t, 9, c.Remaining())
	require.Empty(t, rec.ticks)
	require.Equal(t, int32(0), rec.expired.Load())
}

func TestCountdownStopBeforeStart(t *testing.T) {
	c := timer.New(clock.NewManual(time.Unix(0, 0)), timer.Options{})
	c.Stop()
	require.Equal(t, timer.Idle, c.State())
}
