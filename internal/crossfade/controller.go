// Package crossfade drives two playback engines so that the end of one item
// overlaps the start of the next. One engine is audible (active) while the
// other is primed with the upcoming item and faded in over the configured
// crossfade duration, after which the two swap roles.
package crossfade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/glebovdev/twindeck/internal/queue"
	"github.com/glebovdev/twindeck/internal/ramp"
	"github.com/rs/zerolog/log"
)

// ErrReleased is returned by operations on a released controller.
var ErrReleased = errors.New("crossfade controller released")

// previousRestartThreshold is how far into an item Previous rewinds to its
// start instead of moving back one item.
const previousRestartThreshold = 3 * time.Second

type Options struct {
	// CrossfadeDuration of zero or less disables crossfading.
	CrossfadeDuration time.Duration
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Ramp defaults to a ramp.Ticker at ramp.DefaultTickInterval.
	Ramp ramp.Runner
	// QueueOptions are passed to the queue mirror.
	QueueOptions []queue.Option
}

// Controller is the single playback facade the rest of the program sees.
// Queue edits reach both engines; transport calls reach the active one.
type Controller struct {
	mu           sync.Mutex
	slots        [2]engine.Engine
	active       Slot
	state        TransitionState
	crossfade    time.Duration
	transition   *transition
	transitionID uint64

	monitorCancel context.CancelFunc
	monitorID     uint64
	pollInterval  time.Duration

	ramp        ramp.Runner
	mirror      *queue.Mirror
	unsubscribe []func()
	released    bool
}

// New takes ownership of both engines; slot A starts as the active one.
func New(a, b engine.Engine, opts Options) *Controller {
	c := &Controller{
		slots:        [2]engine.Engine{a, b},
		active:       SlotA,
		crossfade:    opts.CrossfadeDuration,
		pollInterval: opts.PollInterval,
		ramp:         opts.Ramp,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.ramp == nil {
		c.ramp = ramp.NewTicker(ramp.DefaultTickInterval)
	}
	c.mirror = queue.NewMirror(a, b, c.ActiveEngine, opts.QueueOptions...)

	for i, e := range c.slots {
		slot := Slot(i)
		c.unsubscribe = append(c.unsubscribe, e.Subscribe(func(playing bool) {
			c.onPlayingChanged(slot, playing)
		}))
	}

	log.Debug().
		Str("a", a.Name()).
		Str("b", b.Name()).
		Dur("crossfade", c.crossfade).
		Dur("poll", c.pollInterval).
		Msg("Crossfade controller created")
	return c
}

// onPlayingChanged reacts to play-state events. Events from the inactive
// engine are ignored.
func (c *Controller) onPlayingChanged(slot Slot, playing bool) {
	c.mu.Lock()
	relevant := !c.released && slot == c.active
	c.mu.Unlock()

	if !relevant {
		return
	}
	if playing {
		c.startMonitor()
		return
	}
	c.stopMonitor()
	c.cancelTransition()
}

// ActiveEngine returns the engine currently labelled active.
func (c *Controller) ActiveEngine() engine.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[c.active]
}

func (c *Controller) ActiveSlot() Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) TransitionState() TransitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the ramp position of the running crossfade, or 0.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transition == nil {
		return 0
	}
	return c.transition.progress
}

func (c *Controller) CrossfadeDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crossfade
}

// SetCrossfadeDuration takes effect at the next poll. A running crossfade
// keeps its original length.
func (c *Controller) SetCrossfadeDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossfade = d
	log.Debug().Dur("crossfade", d).Msg("Crossfade duration changed")
}

func (c *Controller) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Queue

// Items returns the live queue in play order.
func (c *Controller) Items() []media.Item {
	return c.mirror.Items()
}

// OriginalOrder returns the queue as it was before shuffling.
func (c *Controller) OriginalOrder() []media.Item {
	return c.mirror.OriginalOrder()
}

func (c *Controller) Len() int {
	return c.mirror.Len()
}

func (c *Controller) SetQueue(items []media.Item) error {
	return c.SetQueueAt(items, 0, 0)
}

// SetQueueAt replaces the queue. A running crossfade is cancelled first.
func (c *Controller) SetQueueAt(items []media.Item, startIndex int, startPosition time.Duration) error {
	if c.isReleased() {
		return ErrReleased
	}
	c.cancelTransition()
	return c.mirror.SetQueue(items, startIndex, startPosition)
}

func (c *Controller) AddItem(item media.Item) error {
	return c.AddItems(item)
}

func (c *Controller) AddItems(items ...media.Item) error {
	if c.isReleased() {
		return ErrReleased
	}
	c.mirror.AddItems(items...)
	return nil
}

func (c *Controller) InsertItem(index int, item media.Item) error {
	return c.InsertItems(index, item)
}

func (c *Controller) InsertItems(index int, items ...media.Item) error {
	if c.isReleased() {
		return ErrReleased
	}
	return c.mirror.InsertItems(index, items...)
}

func (c *Controller) RemoveItem(index int) error {
	return c.RemoveItems(index, index+1)
}

func (c *Controller) RemoveItems(from, to int) error {
	if c.isReleased() {
		return ErrReleased
	}
	return c.mirror.RemoveItems(from, to)
}

func (c *Controller) ReplaceItem(index int, item media.Item) error {
	return c.ReplaceItems(index, index+1, item)
}

func (c *Controller) ReplaceItems(from, to int, items ...media.Item) error {
	if c.isReleased() {
		return ErrReleased
	}
	return c.mirror.ReplaceItems(from, to, items...)
}

// ClearQueue empties the queue. A running crossfade is cancelled first.
func (c *Controller) ClearQueue() error {
	if c.isReleased() {
		return ErrReleased
	}
	c.cancelTransition()
	c.mirror.Clear()
	return nil
}

// SetShuffle toggles shuffle. A running crossfade is cancelled first.
func (c *Controller) SetShuffle(enabled bool) error {
	if c.isReleased() {
		return ErrReleased
	}
	if c.mirror.ShuffleEnabled() == enabled {
		return nil
	}
	c.cancelTransition()
	c.mirror.SetShuffle(enabled)
	return nil
}

func (c *Controller) ShuffleEnabled() bool {
	return c.mirror.ShuffleEnabled()
}

// OnItemIdentityChanged replaces old with updated in the original order and
// the live queue. It reports whether old was found.
func (c *Controller) OnItemIdentityChanged(old, updated media.Item) bool {
	if c.isReleased() {
		return false
	}
	return c.mirror.ItemIdentityChanged(old, updated)
}

// Transport

func (c *Controller) Play() error {
	if c.isReleased() {
		return ErrReleased
	}
	e := c.ActiveEngine()
	if err := e.Prepare(); err != nil {
		return fmt.Errorf("prepare %s: %w", e.Name(), err)
	}
	if err := e.Play(); err != nil {
		return fmt.Errorf("play %s: %w", e.Name(), err)
	}
	return nil
}

// Pause pauses the active engine, which also cancels any running crossfade.
func (c *Controller) Pause() error {
	if c.isReleased() {
		return ErrReleased
	}
	c.ActiveEngine().Pause()
	return nil
}

func (c *Controller) TogglePause() error {
	if c.IsPlaying() {
		return c.Pause()
	}
	return c.Play()
}

func (c *Controller) Stop() error {
	if c.isReleased() {
		return ErrReleased
	}
	c.ActiveEngine().Stop()
	c.stopMonitor()
	c.cancelTransition()
	return nil
}

// Seek moves within the current item. A running crossfade is cancelled.
func (c *Controller) Seek(position time.Duration) error {
	if c.isReleased() {
		return ErrReleased
	}
	c.cancelTransition()
	e := c.ActiveEngine()
	e.SeekTo(e.CurrentIndex(), position)
	return nil
}

// SeekToItem jumps to the item at index. A running crossfade is cancelled.
func (c *Controller) SeekToItem(index int, position time.Duration) error {
	if c.isReleased() {
		return ErrReleased
	}
	if size := c.mirror.Len(); index < 0 || index >= size {
		return fmt.Errorf("%w: %d (size %d)", queue.ErrIndexOutOfRange, index, size)
	}
	c.cancelTransition()
	c.ActiveEngine().SeekTo(index, position)
	return nil
}

// Next skips to the following item. It reports false at the end of the queue.
func (c *Controller) Next() (bool, error) {
	if c.isReleased() {
		return false, ErrReleased
	}
	next, ok := c.ActiveEngine().NextIndex()
	if !ok {
		return false, nil
	}
	return true, c.SeekToItem(next, 0)
}

// Previous rewinds the current item, or moves back one item when the current
// one has barely started.
func (c *Controller) Previous() error {
	if c.isReleased() {
		return ErrReleased
	}
	e := c.ActiveEngine()
	index := e.CurrentIndex()
	if index < 0 {
		return engine.ErrEmptyQueue
	}
	if index == 0 || e.Position() > previousRestartThreshold {
		return c.SeekToItem(index, 0)
	}
	return c.SeekToItem(index-1, 0)
}

// CurrentItem returns the item the active engine is on.
func (c *Controller) CurrentItem() (media.Item, bool) {
	index := c.ActiveEngine().CurrentIndex()
	items := c.mirror.Items()
	if index < 0 || index >= len(items) {
		return media.Item{}, false
	}
	return items[index], true
}

func (c *Controller) CurrentIndex() int {
	return c.ActiveEngine().CurrentIndex()
}

func (c *Controller) Position() time.Duration {
	return c.ActiveEngine().Position()
}

func (c *Controller) Duration() time.Duration {
	return c.ActiveEngine().Duration()
}

func (c *Controller) IsPlaying() bool {
	return c.ActiveEngine().IsPlaying()
}

// Release stops monitoring and any crossfade, then releases both engines.
// Calling it again is a no-op.
func (c *Controller) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	if c.monitorCancel != nil {
		c.monitorCancel()
		c.monitorCancel = nil
	}
	tr := c.transition
	c.transition = nil
	c.state = StateIdle
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	slots := c.slots
	var handle ramp.Handle
	if tr != nil {
		handle = tr.handle
	}
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	for _, fn := range unsubscribe {
		fn()
	}

	var errs []error
	for _, e := range slots {
		if err := e.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", e.Name(), err))
		}
	}

	log.Debug().Msg("Crossfade controller released")
	return errors.Join(errs...)
}
