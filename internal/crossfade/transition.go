package crossfade

import (
	"sync"

	"github.com/glebovdev/twindeck/internal/ramp"
	"github.com/rs/zerolog/log"
)

// transition is one crossfade from slot `from` to slot `to`.
//
// mu is held while the incoming engine is primed and while a tick sets
// volumes; whoever ends the transition takes it first, so no tick lands
// after completion or rollback. Lock order is mu, then Controller.mu.
type transition struct {
	mu       sync.Mutex
	id       uint64
	from, to Slot
	handle   ramp.Handle
	progress float64
}

// startTransition primes the inactive engine with the active engine's next
// item and starts the volume ramp. It returns false when nothing started.
func (c *Controller) startTransition() bool {
	c.mu.Lock()
	if c.released || c.state == StateTransitioning || c.crossfade <= 0 {
		c.mu.Unlock()
		return false
	}
	c.transitionID++
	tr := &transition{id: c.transitionID, from: c.active, to: c.active.Other()}
	c.transition = tr
	c.state = StateTransitioning
	from, to := c.slots[tr.from], c.slots[tr.to]
	fade := c.crossfade
	c.mu.Unlock()

	// Reading the active engine may deliver its play-state events, which can
	// cancel tr, so the snapshot is taken before tr.mu.
	items := from.Items()
	next, ok := from.NextIndex()
	if !ok || next < 0 || next >= len(items) {
		log.Debug().Str("engine", from.Name()).Msg("Next item unresolvable, skipping crossfade")
		c.finishTransition(tr)
		return false
	}

	tr.mu.Lock()
	c.mu.Lock()
	cancelled := c.transition != tr
	c.mu.Unlock()
	if cancelled {
		tr.mu.Unlock()
		log.Debug().Uint64("transition", tr.id).Msg("Crossfade cancelled before priming")
		return false
	}

	// Only the incoming engine is driven while tr.mu is held; its events are
	// ignored because it is not active.
	to.SetQueue(items, next, 0)
	to.SetVolume(0)
	from.SetVolume(1)

	if err := to.Prepare(); err != nil {
		log.Warn().Err(err).Str("engine", to.Name()).Msg("Failed to prepare next item, skipping crossfade")
		tr.mu.Unlock()
		c.rollback(tr, false)
		return false
	}
	if err := to.Play(); err != nil {
		log.Warn().Err(err).Str("engine", to.Name()).Msg("Failed to start next item, skipping crossfade")
		tr.mu.Unlock()
		c.rollback(tr, false)
		return false
	}

	log.Debug().
		Uint64("transition", tr.id).
		Str("from", tr.from.String()).
		Str("to", tr.to.String()).
		Str("item", items[next].ID).
		Dur("duration", fade).
		Msg("Crossfade started")

	handle := c.ramp.Run(0, 1, fade,
		func(v float64) { c.onRampTick(tr, v) },
		func(finished bool) { c.onRampDone(tr, finished) },
	)

	c.mu.Lock()
	tr.handle = handle
	stale := c.transition != tr
	c.mu.Unlock()
	tr.mu.Unlock()

	// Released while priming.
	if stale {
		handle.Cancel()
	}
	return true
}

// cancelTransition interrupts the running crossfade, if any, and rolls it
// back before returning. A crossfade still being primed is waited for.
func (c *Controller) cancelTransition() {
	c.mu.Lock()
	tr := c.transition
	c.mu.Unlock()

	if tr != nil {
		c.rollback(tr, true)
	}
}

func (c *Controller) onRampTick(tr *transition, value float64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	c.mu.Lock()
	if c.transition != tr {
		c.mu.Unlock()
		return
	}
	tr.progress = value
	from, to := c.slots[tr.from], c.slots[tr.to]
	c.mu.Unlock()

	outgoing, incoming := ramp.Linear(value)
	from.SetVolume(outgoing)
	to.SetVolume(incoming)
}

func (c *Controller) onRampDone(tr *transition, finished bool) {
	if finished {
		c.complete(tr)
		return
	}
	c.rollback(tr, true)
}

// complete hands the active label to the faded-in engine and stops the
// faded-out one.
func (c *Controller) complete(tr *transition) {
	tr.mu.Lock()
	c.mu.Lock()
	if c.transition != tr {
		c.mu.Unlock()
		tr.mu.Unlock()
		return
	}
	c.transition = nil
	c.state = StateIdle
	c.active = tr.to
	from, to := c.slots[tr.from], c.slots[tr.to]
	c.mu.Unlock()
	tr.mu.Unlock()

	from.Stop()
	from.SetVolume(1)
	to.SetVolume(1)

	log.Info().
		Uint64("transition", tr.id).
		Str("active", tr.to.String()).
		Msg("Crossfade complete")

	// The new active engine has been playing since it was primed, so no
	// fresh play event will arrive to re-arm the monitor.
	if to.IsPlaying() {
		c.startMonitor()
	}
}

// rollback silences and stops the primed engine and leaves the labels alone.
// With rearm set, monitoring resumes if the active engine is still playing.
// Only the first call for a transition does anything.
func (c *Controller) rollback(tr *transition, rearm bool) {
	tr.mu.Lock()
	c.mu.Lock()
	if c.transition != tr {
		c.mu.Unlock()
		tr.mu.Unlock()
		return
	}
	c.transition = nil
	c.state = StateIdle
	from, to := c.slots[tr.from], c.slots[tr.to]
	handle := tr.handle
	c.mu.Unlock()
	tr.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	to.Stop()
	to.SetVolume(1)
	from.SetVolume(1)

	log.Debug().Uint64("transition", tr.id).Msg("Crossfade rolled back")

	if rearm && from.IsPlaying() {
		c.startMonitor()
	}
}

// finishTransition clears a transition that never touched an engine.
func (c *Controller) finishTransition(tr *transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transition == tr {
		c.transition = nil
		c.state = StateIdle
	}
}
