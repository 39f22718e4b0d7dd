// Package ramp runs one-shot timed value ramps and holds the crossfade mix curve.
package ramp

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTickInterval = 20 * time.Millisecond

// Handle controls a running ramp.
type Handle interface {
	// Cancel stops the ramp. onDone(false) fires unless the ramp already finished.
	Cancel()
}

// Runner starts ramps from `from` to `to` over d. onTick receives each
// intermediate value; onDone fires exactly once, with finished=true on
// natural completion and false on cancellation.
type Runner interface {
	Run(from, to float64, d time.Duration, onTick func(value float64), onDone func(finished bool)) Handle
}

// Linear maps crossfade progress t to the outgoing and incoming gains.
func Linear(t float64) (outgoing, incoming float64) {
	if t <= 0 {
		return 1, 0
	}
	if t >= 1 {
		return 0, 1
	}
	return 1 - t, t
}

// Lerp interpolates between from and to at progress t in [0, 1].
func Lerp(from, to, t float64) float64 {
	if t <= 0 {
		return from
	}
	if t >= 1 {
		return to
	}
	return from + (to-from)*t
}

// Ticker is a Runner backed by time.Ticker; callbacks run on the ramp's goroutine.
type Ticker struct {
	Interval time.Duration
}

func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{Interval: interval}
}

type tickerHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *tickerHandle) Cancel() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

func (r *Ticker) Run(from, to float64, d time.Duration, onTick func(float64), onDone func(bool)) Handle {
	h := &tickerHandle{stop: make(chan struct{})}

	go func() {
		if d <= 0 {
			onTick(to)
			onDone(true)
			return
		}

		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		start := time.Now()

		for {
			select {
			case <-h.stop:
				log.Debug().Msg("Ramp cancelled")
				onDone(false)
				return
			case now := <-ticker.C:
				t := float64(now.Sub(start)) / float64(d)
				if t >= 1 {
					onTick(to)
					onDone(true)
					return
				}
				onTick(Lerp(from, to, t))
			}
		}
	}()

	return h
}
