package crossfade

import (
	"context"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 250 * time.Millisecond

// startMonitor replaces any running monitor with a fresh one watching the
// active engine.
func (c *Controller) startMonitor() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	if c.monitorCancel != nil {
		c.monitorCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.monitorCancel = cancel
	c.monitorID++
	id := c.monitorID
	if c.state != StateTransitioning {
		c.state = StateMonitoring
	}
	c.mu.Unlock()

	log.Debug().Uint64("monitor", id).Msg("Crossfade monitor started")
	go c.monitor(ctx, id)
}

// stopMonitor cancels the running monitor. It never touches an engine.
func (c *Controller) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitorCancel != nil {
		c.monitorCancel()
		c.monitorCancel = nil
	}
	if c.state == StateMonitoring {
		c.state = StateIdle
	}
}

func (c *Controller) monitor(ctx context.Context, id uint64) {
	defer c.monitorExited(id)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.sample(ctx) {
			return
		}
	}
}

func (c *Controller) monitorExited(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitorID != id {
		return
	}
	c.monitorCancel = nil
	if c.state == StateMonitoring {
		c.state = StateIdle
	}
	log.Debug().Uint64("monitor", id).Msg("Crossfade monitor stopped")
}

// sample takes one reading of the active engine and reports whether the
// monitor should stop.
func (c *Controller) sample(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == StateTransitioning || c.released {
		c.mu.Unlock()
		return true
	}
	active := c.slots[c.active]
	fade := c.crossfade
	c.mu.Unlock()

	if !active.IsPlaying() {
		return true
	}
	if fade <= 0 {
		return false
	}

	duration := active.Duration()
	if duration == engine.UnknownDuration || duration <= 0 {
		return false
	}

	remaining := duration - active.Position()
	if remaining >= fade {
		return false
	}

	if _, ok := active.NextIndex(); !ok {
		log.Debug().Str("engine", active.Name()).Msg("No next item, letting track end without crossfade")
		return true
	}
	if ctx.Err() != nil {
		return true
	}

	log.Debug().
		Str("engine", active.Name()).
		Dur("remaining", remaining).
		Dur("crossfade", fade).
		Msg("Crossfade threshold reached")
	c.startTransition()
	return true
}
