package crossfade

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/glebovdev/twindeck/internal/queue"
	"github.com/glebovdev/twindeck/internal/ramp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPoll    = 2 * time.Millisecond
	waitFor     = 2 * time.Second
	waitTick    = time.Millisecond
	quietPeriod = 30 * time.Millisecond
)

// scriptedRamp records ramps and lets the test drive them by hand.
type scriptedRamp struct {
	mu   sync.Mutex
	runs []*scriptedRun
}

type scriptedRun struct {
	duration time.Duration
	onTick   func(float64)
	onDone   func(bool)

	mu        sync.Mutex
	done      bool
	cancelled bool
}

func (r *scriptedRamp) Run(_, _ float64, d time.Duration, onTick func(float64), onDone func(bool)) ramp.Handle {
	run := &scriptedRun{duration: d, onTick: onTick, onDone: onDone}
	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.mu.Unlock()
	return run
}

func (r *scriptedRamp) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *scriptedRamp) last() *scriptedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[len(r.runs)-1]
}

func (run *scriptedRun) markDone(cancelled bool) bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.done {
		return false
	}
	run.done = true
	run.cancelled = cancelled
	return true
}

func (run *scriptedRun) Cancel() {
	if run.markDone(true) {
		run.onDone(false)
	}
}

func (run *scriptedRun) tick(v float64) {
	run.onTick(v)
}

func (run *scriptedRun) finish() {
	if run.markDone(false) {
		run.onTick(1)
		run.onDone(true)
	}
}

func (run *scriptedRun) wasCancelled() bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.cancelled
}

type harness struct {
	c     *Controller
	a, b  *engine.Memory
	clock *engine.ManualClock
	ramp  *scriptedRamp
}

func newHarness(t *testing.T, fade time.Duration) *harness {
	t.Helper()
	clock := engine.NewManualClock()
	a := engine.NewMemory("a", engine.WithClock(clock.Now))
	b := engine.NewMemory("b", engine.WithClock(clock.Now))
	r := &scriptedRamp{}
	c := New(a, b, Options{
		CrossfadeDuration: fade,
		PollInterval:      testPoll,
		Ramp:              r,
		QueueOptions:      []queue.Option{queue.WithRand(rand.New(rand.NewPCG(1, 2)))},
	})
	t.Cleanup(func() { _ = c.Release() })
	return &harness{c: c, a: a, b: b, clock: clock, ramp: r}
}

func tracks(n int, d time.Duration) []media.Item {
	out := make([]media.Item, n)
	for i := range out {
		out[i] = media.Item{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("Track %d", i), Duration: d}
	}
	return out
}

func (h *harness) waitState(t *testing.T, want TransitionState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.TransitionState() == want }, waitFor, waitTick,
		"state never reached %s", want)
}

// startCrossfade plays n ten-second tracks and moves the clock past the
// crossfade threshold, returning once the ramp handle is stored.
func (h *harness) startCrossfade(t *testing.T, n int) *scriptedRun {
	t.Helper()
	require.NoError(t, h.c.SetQueue(tracks(n, 10*time.Second)))
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)

	h.clock.Advance(7100 * time.Millisecond)
	require.Eventually(t, func() bool {
		h.c.mu.Lock()
		defer h.c.mu.Unlock()
		return h.c.transition != nil && h.c.transition.handle != nil
	}, waitFor, waitTick, "crossfade never started")
	return h.ramp.last()
}

func TestThresholdTriggersCrossfade(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	require.NoError(t, h.c.SetQueue(tracks(2, 10*time.Second)))
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)

	h.clock.Advance(6 * time.Second)
	time.Sleep(quietPeriod)
	assert.Equal(t, 0, h.ramp.count(), "4s remaining must not trigger a 3s crossfade")

	h.clock.Advance(1100 * time.Millisecond)
	require.Eventually(t, func() bool { return h.ramp.count() == 1 }, waitFor, waitTick)

	h.waitState(t, StateTransitioning)
	assert.Equal(t, 3*time.Second, h.ramp.last().duration)
	assert.Equal(t, SlotA, h.c.ActiveSlot())
	assert.True(t, h.b.IsPlaying())
	assert.True(t, h.b.Prepared())
	assert.Equal(t, 1, h.b.CurrentIndex())
	assert.Equal(t, time.Duration(0), h.b.Position())
	assert.Equal(t, 0.0, h.b.Volume())
	assert.Equal(t, 1.0, h.a.Volume())
}

func TestUnknownDurationNeverTriggers(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	require.NoError(t, h.c.SetQueue(tracks(2, 0)))
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)

	h.clock.Advance(time.Hour)
	time.Sleep(quietPeriod)

	assert.Equal(t, 0, h.ramp.count())
	assert.Equal(t, StateMonitoring, h.c.TransitionState())
	assert.False(t, h.b.IsPlaying())
}

func TestNoNextItemStopsMonitoring(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	require.NoError(t, h.c.SetQueue(tracks(1, 10*time.Second)))
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)

	h.clock.Advance(7100 * time.Millisecond)
	h.waitState(t, StateIdle)

	assert.Equal(t, 0, h.ramp.count())
	assert.True(t, h.a.IsPlaying(), "the last item plays out on its own")
	assert.False(t, h.b.IsPlaying())
}

func TestDisabledCrossfadeKeepsPolling(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.c.SetQueue(tracks(2, 10*time.Second)))
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)

	h.clock.Advance(9500 * time.Millisecond)
	time.Sleep(quietPeriod)
	assert.Equal(t, 0, h.ramp.count())
	assert.Equal(t, StateMonitoring, h.c.TransitionState())

	h.c.SetCrossfadeDuration(3 * time.Second)
	require.Eventually(t, func() bool { return h.ramp.count() == 1 }, waitFor, waitTick)
}

func TestTicksMixBothEngines(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	run := h.startCrossfade(t, 2)

	run.tick(0.25)
	assert.InDelta(t, 0.75, h.a.Volume(), 1e-9)
	assert.InDelta(t, 0.25, h.b.Volume(), 1e-9)
	assert.InDelta(t, 0.25, h.c.Progress(), 1e-9)

	run.tick(0.6)
	assert.InDelta(t, 0.4, h.a.Volume(), 1e-9)
	assert.InDelta(t, 0.6, h.b.Volume(), 1e-9)
}

func TestCompletionSwapsRolesAndRearms(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	run := h.startCrossfade(t, 3)

	run.tick(0.5)
	run.finish()

	assert.Equal(t, SlotB, h.c.ActiveSlot())
	assert.Same(t, h.b, h.c.ActiveEngine())
	assert.False(t, h.a.IsPlaying(), "faded-out engine must be stopped")
	assert.Equal(t, 1.0, h.a.Volume())
	assert.Equal(t, 1.0, h.b.Volume())
	assert.True(t, h.b.IsPlaying())
	assert.Equal(t, 0.0, h.c.Progress())

	item, ok := h.c.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, "t1", item.ID)

	h.waitState(t, StateMonitoring)

	h.clock.Advance(7100 * time.Millisecond)
	require.Eventually(t, func() bool { return h.ramp.count() == 2 }, waitFor, waitTick)
	h.waitState(t, StateTransitioning)
	assert.True(t, h.a.IsPlaying())
	assert.Equal(t, 2, h.a.CurrentIndex())

	h.ramp.last().finish()
	assert.Equal(t, SlotA, h.c.ActiveSlot())
	assert.False(t, h.b.IsPlaying())
}

func TestPauseMidCrossfadeRollsBack(t *testing.T) {
	for _, progress := range []float64{0.1, 0.5, 0.9} {
		t.Run(fmt.Sprintf("t_%v", progress), func(t *testing.T) {
			h := newHarness(t, 3*time.Second)
			run := h.startCrossfade(t, 2)

			run.tick(progress)
			require.NoError(t, h.c.Pause())

			assert.True(t, run.wasCancelled())
			assert.Equal(t, SlotA, h.c.ActiveSlot(), "rollback must not swap roles")
			assert.Equal(t, StateIdle, h.c.TransitionState())
			assert.False(t, h.b.IsPlaying())
			assert.Equal(t, 1.0, h.b.Volume())
			assert.Equal(t, 1.0, h.a.Volume())
			assert.False(t, h.a.IsPlaying())
			assert.Equal(t, 0, h.a.CurrentIndex())
		})
	}
}

func TestStartTransitionIsNotReentrant(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	h.startCrossfade(t, 3)

	assert.False(t, h.c.startTransition())
	assert.Equal(t, 1, h.ramp.count())
	assert.Equal(t, StateTransitioning, h.c.TransitionState())
}

func TestStartTransitionWithoutNextItemTouchesNothing(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	require.NoError(t, h.c.SetQueue(tracks(1, 10*time.Second)))

	assert.False(t, h.c.startTransition())
	assert.Equal(t, StateIdle, h.c.TransitionState())
	assert.Equal(t, 0, h.ramp.count())
	assert.False(t, h.b.Prepared())
	assert.False(t, h.b.IsPlaying())
	assert.Equal(t, 1.0, h.b.Volume())
}

func TestInactiveEngineEventsAreIgnored(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	require.NoError(t, h.c.SetQueue(tracks(2, 10*time.Second)))

	require.NoError(t, h.b.Play())
	time.Sleep(quietPeriod)
	assert.Equal(t, StateIdle, h.c.TransitionState())

	h.b.Pause()
	require.NoError(t, h.c.Play())
	h.waitState(t, StateMonitoring)
}

func TestIncrementalEditDuringCrossfadeIsMirrored(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	run := h.startCrossfade(t, 3)

	require.NoError(t, h.c.AddItem(media.Item{ID: "extra", Duration: 10 * time.Second}))
	require.NoError(t, h.c.RemoveItem(2))

	assert.False(t, run.wasCancelled())
	assert.Equal(t, StateTransitioning, h.c.TransitionState())
	want := []string{"t0", "t1", "extra"}
	assert.Equal(t, want, media.IDs(h.a.Items()))
	assert.Equal(t, want, media.IDs(h.b.Items()))

	run.finish()
	assert.Equal(t, SlotB, h.c.ActiveSlot())
	next, ok := h.b.NextIndex()
	require.True(t, ok)
	assert.Equal(t, "extra", h.b.Items()[next].ID)
}

func TestWholeQueueEditsCancelCrossfade(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *Controller) error
	}{
		{"set queue", func(c *Controller) error { return c.SetQueue(tracks(4, 10*time.Second)) }},
		{"shuffle", func(c *Controller) error { return c.SetShuffle(true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 3*time.Second)
			run := h.startCrossfade(t, 3)
			// Keeps the re-armed monitor from starting another crossfade.
			h.c.SetCrossfadeDuration(0)

			require.NoError(t, tt.edit(h.c))

			assert.True(t, run.wasCancelled())
			assert.Equal(t, SlotA, h.c.ActiveSlot())
			assert.False(t, h.b.IsPlaying())
			assert.Equal(t, 1.0, h.a.Volume())
			assert.True(t, h.a.IsPlaying())
			assert.Equal(t, media.IDs(h.c.Items()), media.IDs(h.a.Items()))
			assert.Equal(t, media.IDs(h.c.Items()), media.IDs(h.b.Items()))
		})
	}
}

// A ticker-driven ramp runs its callbacks on its own goroutine; the edit
// must still find the incoming engine stopped when it returns.
func TestQueueEditRollsBackBeforeReturning(t *testing.T) {
	clock := engine.NewManualClock()
	a := engine.NewMemory("a", engine.WithClock(clock.Now))
	b := engine.NewMemory("b", engine.WithClock(clock.Now))
	c := New(a, b, Options{
		CrossfadeDuration: 3 * time.Second,
		PollInterval:      testPoll,
		Ramp:              ramp.NewTicker(time.Millisecond),
	})
	t.Cleanup(func() { _ = c.Release() })

	require.NoError(t, c.SetQueue(tracks(3, 10*time.Second)))
	require.NoError(t, c.Play())
	require.Eventually(t, func() bool { return c.TransitionState() == StateMonitoring }, waitFor, waitTick)

	clock.Advance(7100 * time.Millisecond)
	require.Eventually(t, func() bool { return c.Progress() > 0 }, waitFor, waitTick, "ramp never ticked")
	require.True(t, b.IsPlaying())
	c.SetCrossfadeDuration(0)

	require.NoError(t, c.SetQueue(tracks(4, 10*time.Second)))

	assert.False(t, b.IsPlaying(), "incoming engine still playing after the edit returned")
	assert.Equal(t, 1.0, b.Volume())
	assert.Equal(t, 1.0, a.Volume())
	assert.NotEqual(t, StateTransitioning, c.TransitionState())
	assert.Equal(t, SlotA, c.ActiveSlot())

	time.Sleep(quietPeriod)
	assert.Equal(t, 1.0, a.Volume(), "a ramp tick landed after rollback")
	assert.Equal(t, 1.0, b.Volume())
	assert.False(t, b.IsPlaying())
}

func TestClearQueueCancelsCrossfade(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	run := h.startCrossfade(t, 2)
	h.c.SetCrossfadeDuration(0)

	require.NoError(t, h.c.ClearQueue())

	assert.True(t, run.wasCancelled())
	assert.Empty(t, h.c.Items())
	assert.False(t, h.a.IsPlaying())
	assert.False(t, h.b.IsPlaying())
	h.waitState(t, StateIdle)
}

func TestTransportFollowsActiveSlot(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	h.startCrossfade(t, 3).finish()
	require.Equal(t, SlotB, h.c.ActiveSlot())

	require.NoError(t, h.c.Pause())
	assert.False(t, h.b.IsPlaying())
	assert.False(t, h.a.IsPlaying())
	assert.False(t, h.c.IsPlaying())

	require.NoError(t, h.c.Play())
	assert.True(t, h.b.IsPlaying())
	assert.False(t, h.a.IsPlaying())

	require.NoError(t, h.c.Seek(2*time.Second))
	assert.Equal(t, 2*time.Second, h.b.Position())
	assert.Equal(t, 10*time.Second, h.c.Duration())
}

func TestNextAndPrevious(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.c.SetQueue(tracks(3, time.Minute)))
	require.NoError(t, h.c.Play())

	moved, err := h.c.Next()
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 1, h.c.CurrentIndex())

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.c.Previous())
	assert.Equal(t, 1, h.c.CurrentIndex(), "previous past the threshold restarts the item")
	assert.Equal(t, time.Duration(0), h.c.Position())

	require.NoError(t, h.c.Previous())
	assert.Equal(t, 0, h.c.CurrentIndex())

	require.NoError(t, h.c.SeekToItem(2, 0))
	moved, err = h.c.Next()
	require.NoError(t, err)
	assert.False(t, moved)

	assert.ErrorIs(t, h.c.SeekToItem(3, 0), queue.ErrIndexOutOfRange)
}

func TestOnItemIdentityChanged(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.c.SetQueue(tracks(2, time.Minute)))

	assert.True(t, h.c.OnItemIdentityChanged(media.Item{ID: "t1"}, media.Item{ID: "t1-resolved"}))
	assert.Equal(t, []string{"t0", "t1-resolved"}, media.IDs(h.c.OriginalOrder()))
	assert.Equal(t, media.IDs(h.c.Items()), media.IDs(h.a.Items()))
	assert.Equal(t, media.IDs(h.c.Items()), media.IDs(h.b.Items()))
	assert.False(t, h.c.OnItemIdentityChanged(media.Item{ID: "nope"}, media.Item{ID: "x"}))
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := newHarness(t, 3*time.Second)
	run := h.startCrossfade(t, 2)

	require.NoError(t, h.c.Release())
	require.NoError(t, h.c.Release())

	assert.True(t, run.wasCancelled())
	assert.Equal(t, StateIdle, h.c.TransitionState())
	assert.ErrorIs(t, h.c.Play(), ErrReleased)
	assert.ErrorIs(t, h.c.SetQueue(tracks(1, time.Minute)), ErrReleased)
	assert.ErrorIs(t, h.a.Play(), engine.ErrReleased)
	assert.ErrorIs(t, h.b.Play(), engine.ErrReleased)
}

func TestTransitionStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "MONITORING", StateMonitoring.String())
	assert.Equal(t, "CROSSFADING", StateTransitioning.String())
	assert.Equal(t, "UNKNOWN", TransitionState(9).String())
	assert.Equal(t, "B", SlotA.Other().String())
}
