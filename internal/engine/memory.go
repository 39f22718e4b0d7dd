package engine

import (
	"sync"
	"time"

	"github.com/glebovdev/twindeck/internal/media"
	"github.com/rs/zerolog/log"
)

// Memory is a simulated engine: it keeps a queue and a transport clock but
// renders nothing. Items with a zero Duration report UnknownDuration.
// When the current item runs out it advances to the next one, or stops at
// the end of the queue.
type Memory struct {
	name  string
	clock Clock

	mu        sync.Mutex
	items     []media.Item
	index     int
	playing   bool
	prepared  bool
	basePos   time.Duration
	startedAt time.Time
	volume    float64
	shuffle   bool
	released  bool

	listeners Listeners
}

var _ Engine = (*Memory)(nil)

// MemoryOption configures a Memory engine.
type MemoryOption func(*Memory)

// WithClock makes the engine read time from clock instead of time.Now.
func WithClock(clock Clock) MemoryOption {
	return func(m *Memory) {
		m.clock = clock
	}
}

func NewMemory(name string, opts ...MemoryOption) *Memory {
	m := &Memory{
		name:   name,
		clock:  time.Now,
		index:  -1,
		volume: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Name() string { return m.name }

// unlock releases m.mu and then delivers queued play-state events in order.
func (m *Memory) unlock() {
	flush := m.listeners.Take()
	m.mu.Unlock()
	flush.Deliver()
}

func (m *Memory) setPlayingLocked(playing bool) {
	if m.playing == playing {
		return
	}
	now := m.clock()
	if playing {
		m.startedAt = now
	} else {
		m.basePos += now.Sub(m.startedAt)
	}
	m.playing = playing
	m.listeners.Queue(playing)
	log.Debug().Str("engine", m.name).Bool("playing", playing).Msg("Play state changed")
}

func (m *Memory) durationLocked() time.Duration {
	if m.index < 0 || m.index >= len(m.items) {
		return UnknownDuration
	}
	if d := m.items[m.index].Duration; d > 0 {
		return d
	}
	return UnknownDuration
}

func (m *Memory) positionLocked() time.Duration {
	pos := m.basePos
	if m.playing {
		pos += m.clock().Sub(m.startedAt)
	}
	return pos
}

// advanceLocked rolls over finished items the way a real engine would while
// nobody was looking.
func (m *Memory) advanceLocked() {
	for m.playing {
		d := m.durationLocked()
		if d == UnknownDuration {
			return
		}
		pos := m.positionLocked()
		if pos < d {
			return
		}
		if m.index+1 < len(m.items) {
			now := m.clock()
			m.index++
			m.basePos = pos - d
			m.startedAt = now
			continue
		}
		m.setPlayingLocked(false)
		m.basePos = d
	}
}

func (m *Memory) seekLocked(index int, position time.Duration) {
	if position < 0 {
		position = 0
	}
	m.index = index
	m.basePos = position
	m.startedAt = m.clock()
}

func (m *Memory) SetQueue(items []media.Item, startIndex int, startPosition time.Duration) {
	m.mu.Lock()
	defer m.unlock()

	m.items = media.Clone(items)
	if len(m.items) == 0 {
		m.setPlayingLocked(false)
		m.seekLocked(-1, 0)
		return
	}
	if startIndex < 0 || startIndex >= len(m.items) {
		startIndex = 0
	}
	m.seekLocked(startIndex, startPosition)
}

func (m *Memory) InsertItems(index int, items []media.Item) {
	if index < 0 {
		index = len(m.Items())
	}
	m.ReplaceItems(index, index, items)
}

func (m *Memory) RemoveItems(from, to int) {
	m.ReplaceItems(from, to, nil)
}

func (m *Memory) ReplaceItems(from, to int, items []media.Item) {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()

	if from >= to && len(items) == 0 {
		return
	}

	s := SpliceQueue(m.items, m.index, from, to, items)
	m.items = s.Items
	switch {
	case s.Stopped:
		m.setPlayingLocked(false)
		m.seekLocked(s.Index, 0)
	case s.Moved:
		m.seekLocked(s.Index, 0)
	default:
		// An item replaced in place keeps playing from the same offset.
		m.index = s.Index
	}
}

func (m *Memory) ClearQueue() {
	m.SetQueue(nil, 0, 0)
}

func (m *Memory) Items() []media.Item {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	return media.Clone(m.items)
}

func (m *Memory) CurrentIndex() int {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	return m.index
}

func (m *Memory) NextIndex() (int, bool) {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	if m.index < 0 || m.index+1 >= len(m.items) {
		return -1, false
	}
	return m.index + 1, true
}

func (m *Memory) Prepare() error {
	m.mu.Lock()
	defer m.unlock()
	if m.released {
		return ErrReleased
	}
	m.prepared = true
	return nil
}

func (m *Memory) Play() error {
	m.mu.Lock()
	defer m.unlock()
	if m.released {
		return ErrReleased
	}
	if m.index < 0 {
		return ErrEmptyQueue
	}
	m.setPlayingLocked(true)
	return nil
}

func (m *Memory) Pause() {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	m.setPlayingLocked(false)
}

func (m *Memory) Stop() {
	m.mu.Lock()
	defer m.unlock()
	m.setPlayingLocked(false)
	m.basePos = 0
	m.prepared = false
}

func (m *Memory) SeekTo(index int, position time.Duration) {
	m.mu.Lock()
	defer m.unlock()
	if index < 0 || index >= len(m.items) {
		return
	}
	m.seekLocked(index, position)
}

// SetPosition moves the transport within the current item without
// touching play state.
func (m *Memory) SetPosition(position time.Duration) {
	m.mu.Lock()
	defer m.unlock()
	m.seekLocked(m.index, position)
}

func (m *Memory) Position() time.Duration {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	return m.positionLocked()
}

func (m *Memory) Duration() time.Duration {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	return m.durationLocked()
}

func (m *Memory) IsPlaying() bool {
	m.mu.Lock()
	defer m.unlock()
	m.advanceLocked()
	return m.playing
}

// Prepared reports whether Prepare ran since the last Stop.
func (m *Memory) Prepared() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.prepared
}

func (m *Memory) SetVolume(volume float64) {
	m.mu.Lock()
	defer m.unlock()
	m.volume = ClampVolume(volume)
}

func (m *Memory) Volume() float64 {
	m.mu.Lock()
	defer m.unlock()
	return m.volume
}

func (m *Memory) SetShuffleEnabled(enabled bool) {
	m.mu.Lock()
	defer m.unlock()
	m.shuffle = enabled
}

func (m *Memory) ShuffleEnabled() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.shuffle
}

func (m *Memory) Subscribe(listener Listener) func() {
	m.mu.Lock()
	id := m.listeners.Add(listener)
	m.unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.listeners.Remove(id)
			m.unlock()
		})
	}
}

func (m *Memory) Release() error {
	m.mu.Lock()
	if m.released {
		m.unlock()
		return nil
	}
	m.setPlayingLocked(false)
	m.released = true
	m.unlock()

	m.mu.Lock()
	m.listeners.Reset()
	m.items = nil
	m.index = -1
	m.unlock()
	return nil
}
