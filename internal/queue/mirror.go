// Package queue keeps the canonical playlist, its pre-shuffle order, and the
// queues of both playback engines in lockstep.
package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/rs/zerolog/log"
)

var ErrIndexOutOfRange = errors.New("queue index out of range")

// ActiveFunc returns the engine the listener currently hears.
type ActiveFunc func() engine.Engine

// Mirror applies every queue edit to the live queue, to the original
// (unshuffled) order and identically to both engines.
type Mirror struct {
	mu       sync.Mutex
	engines  [2]engine.Engine
	active   ActiveFunc
	rng      *rand.Rand
	live     *order
	original *order
	shuffle  bool
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithRand sets the random source used for shuffling.
func WithRand(rng *rand.Rand) Option {
	return func(m *Mirror) {
		m.rng = rng
	}
}

func NewMirror(a, b engine.Engine, active ActiveFunc, opts ...Option) *Mirror {
	m := &Mirror{
		engines:  [2]engine.Engine{a, b},
		active:   active,
		live:     newOrder(nil),
		original: newOrder(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		seed := uint64(time.Now().UnixNano())
		m.rng = rand.New(rand.NewPCG(seed, seed>>17|1))
	}
	return m
}

func (m *Mirror) each(fn func(e engine.Engine)) {
	for _, e := range m.engines {
		fn(e)
	}
}

func rangeError(index, size int) error {
	return fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, index, size)
}

// Items returns a copy of the live queue.
func (m *Mirror) Items() []media.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return media.Clone(m.live.items)
}

// OriginalOrder returns a copy of the pre-shuffle order.
func (m *Mirror) OriginalOrder() []media.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return media.Clone(m.original.items)
}

func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.len()
}

func (m *Mirror) ShuffleEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuffle
}

// SetQueue replaces the whole queue and resets the original order to items.
func (m *Mirror) SetQueue(items []media.Item, startIndex int, startPosition time.Duration) error {
	if len(items) > 0 && (startIndex < 0 || startIndex >= len(items)) {
		return rangeError(startIndex, len(items))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.live = newOrder(items)
	m.original = newOrder(items)
	m.each(func(e engine.Engine) {
		e.SetQueue(items, startIndex, startPosition)
	})

	log.Debug().Int("count", len(items)).Int("start", startIndex).Msg("Queue replaced")
	return nil
}

func (m *Mirror) AddItems(items ...media.Item) {
	if len(items) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.live.len()
	m.live.insert(at, items...)
	m.original.insert(m.original.len(), items...)
	m.each(func(e engine.Engine) {
		e.InsertItems(at, items)
	})

	log.Debug().Int("count", len(items)).Msg("Items appended")
}

// InsertItems inserts before the live item at index. The original order
// gets the new items right before that same logical item.
func (m *Mirror) InsertItems(index int, items ...media.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index > m.live.len() {
		return rangeError(index, m.live.len())
	}
	if len(items) == 0 {
		return nil
	}

	at := m.original.len()
	if index < m.live.len() {
		if p := m.live.locate(m.original, index, index+1)[0]; p >= 0 {
			at = p
		}
	}
	m.original.insert(at, items...)
	m.live.insert(index, items...)
	m.each(func(e engine.Engine) {
		e.InsertItems(index, items)
	})

	log.Debug().Int("index", index).Int("count", len(items)).Msg("Items inserted")
	return nil
}

// RemoveItems removes live positions [from, to) and the same logical items
// from the original order.
func (m *Mirror) RemoveItems(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRangeLocked(from, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	m.original.removePositions(m.live.locate(m.original, from, to))
	m.live.replaceRange(from, to, nil)
	m.each(func(e engine.Engine) {
		e.RemoveItems(from, to)
	})

	log.Debug().Int("from", from).Int("to", to).Msg("Items removed")
	return nil
}

// ReplaceItems swaps live positions [from, to) for items, updating the
// original order at the same logical positions.
func (m *Mirror) ReplaceItems(from, to int, items ...media.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRangeLocked(from, to); err != nil {
		return err
	}

	positions := m.live.locate(m.original, from, to)
	m.replaceOriginalLocked(from, positions, items)
	m.live.replaceRange(from, to, items)
	m.each(func(e engine.Engine) {
		e.ReplaceItems(from, to, items)
	})

	log.Debug().Int("from", from).Int("to", to).Int("count", len(items)).Msg("Items replaced")
	return nil
}

func (m *Mirror) replaceOriginalLocked(from int, positions []int, items []media.Item) {
	anchor := -1
	for k, p := range positions {
		if k < len(items) && p >= 0 {
			m.original.set(p, items[k])
			anchor = p + 1
		}
	}

	switch {
	case len(items) < len(positions):
		m.original.removePositions(positions[len(items):])
	case len(items) > len(positions):
		extra := items[len(positions):]
		if anchor < 0 {
			anchor = m.original.len()
			if from < m.live.len() {
				if p := m.live.locate(m.original, from, from+1)[0]; p >= 0 {
					anchor = p
				}
			}
		}
		m.original.insert(anchor, extra...)
	}
}

func (m *Mirror) checkRangeLocked(from, to int) error {
	size := m.live.len()
	if from < 0 || from > size {
		return rangeError(from, size)
	}
	if to < from || to > size {
		return rangeError(to, size)
	}
	return nil
}

func (m *Mirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.live = newOrder(nil)
	m.original = newOrder(nil)
	m.each(func(e engine.Engine) {
		e.ClearQueue()
	})

	log.Debug().Msg("Queue cleared")
}

// SetShuffle reorders the live queue. Turning shuffle on snapshots the live
// queue as the original order and plays a random permutation of it; turning
// it off restores the original order. Both engines are re-pointed at the
// item and offset the active engine was on.
func (m *Mirror) SetShuffle(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuffle == enabled {
		return
	}

	active := m.active()
	current := active.CurrentIndex()
	position := active.Position()

	currentID, occurrence := "", 0
	if current >= 0 && current < m.live.len() {
		currentID = m.live.items[current].ID
		occurrence = m.live.occurrence(current)
	}

	if enabled {
		m.original = m.live.clone()
		shuffled := media.Clone(m.original.items)
		m.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		m.live = newOrder(shuffled)
	} else {
		m.live = m.original.clone()
	}
	m.shuffle = enabled

	index := m.live.find(currentID, occurrence)
	if index < 0 {
		index, position = 0, 0
	}
	m.each(func(e engine.Engine) {
		e.SetQueue(m.live.items, index, position)
		e.SetShuffleEnabled(enabled)
	})

	log.Debug().Bool("shuffle", enabled).Int("index", index).Msg("Shuffle changed")
}

// ItemIdentityChanged swaps old for updated at old's position in the
// original order, the live queue and both engines. Engines replace the item
// in place and keep their play offset. Unknown items are ignored.
func (m *Mirror) ItemIdentityChanged(old, updated media.Item) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.original.find(old.ID, 0)
	if p < 0 {
		return false
	}
	m.original.set(p, updated)
	if q := m.live.find(old.ID, 0); q >= 0 {
		m.live.set(q, updated)
		m.each(func(e engine.Engine) {
			e.ReplaceItems(q, q+1, []media.Item{updated})
		})
	}

	log.Debug().Str("old", old.ID).Str("new", updated.ID).Msg("Item identity changed")
	return true
}
