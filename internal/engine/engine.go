// Package engine defines the playback engine capability the crossfade
// controller drives, plus an in-process simulated implementation.
package engine

import (
	"errors"
	"time"

	"github.com/glebovdev/twindeck/internal/media"
)

// UnknownDuration is reported while an item's length has not resolved yet,
// e.g. for streams.
const UnknownDuration time.Duration = -1

var (
	ErrEmptyQueue = errors.New("engine queue is empty")
	ErrReleased   = errors.New("engine released")
)

// Listener receives play-state changes in the order they happen on one engine.
type Listener func(playing bool)

// Engine is one playback resource. Queue positions are 0-based; ranges are
// half-open [from, to). Implementations must be safe for concurrent use and
// must not hold internal locks while invoking listeners.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// SetQueue replaces the queue and positions it at startIndex/startPosition.
	// The playing/paused state is preserved.
	SetQueue(items []media.Item, startIndex int, startPosition time.Duration)
	// InsertItems inserts at index; index == len(Items()) appends.
	InsertItems(index int, items []media.Item)
	RemoveItems(from, to int)
	ReplaceItems(from, to int, items []media.Item)
	ClearQueue()
	Items() []media.Item

	// CurrentIndex returns -1 when the queue is empty.
	CurrentIndex() int
	// NextIndex returns the index that plays after the current one, if any.
	NextIndex() (int, bool)

	Prepare() error
	Play() error
	Pause()
	// Stop halts playback and rewinds the current item; the queue is kept.
	Stop()
	SeekTo(index int, position time.Duration)

	Position() time.Duration
	// Duration of the current item, or UnknownDuration.
	Duration() time.Duration
	IsPlaying() bool

	// SetVolume sets the linear gain in [0, 1].
	SetVolume(volume float64)
	Volume() float64

	SetShuffleEnabled(enabled bool)
	ShuffleEnabled() bool

	Subscribe(listener Listener) (unsubscribe func())
	Release() error
}

// ClampVolume keeps a linear gain inside [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
