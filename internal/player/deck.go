package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	resampleQuality = 4
	resolveTimeout  = 2 * time.Minute
)

// errFetching means the current item is still downloading; it loads when
// the download finishes.
var errFetching = errors.New("source is still downloading")

// Deck is an engine.Engine that decodes queue items and plays them into an
// Output. Finished items roll over to the next one on their own.
type Deck struct {
	name     string
	out      *Output
	resolver Resolver

	mu       sync.Mutex
	items    []media.Item
	index    int
	offset   time.Duration
	playing  bool
	gain     float64
	shuffle  bool
	released bool
	gen      uint64

	stream beep.StreamSeekCloser
	format beep.Format
	volume *effects.Volume
	ctrl   *beep.Ctrl

	listeners engine.Listeners
}

var _ engine.Engine = (*Deck)(nil)

func NewDeck(name string, out *Output, resolver Resolver) *Deck {
	d := &Deck{
		name:     name,
		out:      out,
		resolver: resolver,
		index:    -1,
		gain:     1,
	}
	out.attach(d)
	return d
}

func (d *Deck) Name() string { return d.name }

func (d *Deck) unlock() {
	flush := d.listeners.Take()
	d.mu.Unlock()
	flush.Deliver()
}

func (d *Deck) setPlayingLocked(playing bool) {
	if d.playing == playing {
		return
	}
	d.playing = playing
	d.listeners.Queue(playing)
	log.Debug().Str("deck", d.name).Bool("playing", playing).Msg("Play state changed")
}

// loadLocked decodes the current item and adds it to the speaker mix at
// d.offset, paused unless the deck is playing.
func (d *Deck) loadLocked() error {
	d.unloadLocked()

	if d.index < 0 || d.index >= len(d.items) {
		return engine.ErrEmptyQueue
	}
	if err := d.out.initSpeaker(); err != nil {
		return err
	}

	item := d.items[d.index]
	path, ok := d.resolver.Lookup(item)
	if !ok {
		if item.Source == "" {
			return fmt.Errorf("item %s has no source", item.ID)
		}
		d.fetchInBackground(item, d.gen)
		return errFetching
	}
	return d.openLocked(item, path)
}

// openLocked decodes path as item and adds it to the mix. Nothing may be
// loaded yet.
func (d *Deck) openLocked(item media.Item, path string) error {
	stream, format, err := openFile(path)
	if err != nil {
		return err
	}

	if d.offset > 0 {
		n := format.SampleRate.N(d.offset)
		if length := stream.Len(); length > 0 && n >= length {
			n = length - 1
		}
		if err := stream.Seek(n); err != nil {
			log.Warn().Err(err).Str("deck", d.name).Msg("Failed to seek, starting from the beginning")
		}
	}

	d.gen++
	gen := d.gen
	resampled := beep.Resample(resampleQuality, format.SampleRate, d.out.SampleRate(), stream)
	ended := beep.Callback(func() {
		// Runs under the speaker lock; the deck lock is taken elsewhere.
		go d.onItemEnded(gen)
	})

	level, silent := mixLevel(d.out.Volume(), d.gain)
	d.stream = stream
	d.format = format
	d.volume = &effects.Volume{
		Streamer: beep.Seq(resampled, ended),
		Base:     2,
		Volume:   level,
		Silent:   silent,
	}
	d.ctrl = &beep.Ctrl{Streamer: d.volume, Paused: !d.playing}
	speaker.Play(d.ctrl)

	log.Debug().
		Str("deck", d.name).
		Str("item", item.DisplayName()).
		Int("sample_rate", int(format.SampleRate)).
		Dur("offset", d.offset).
		Msg("Item loaded")
	return nil
}

// unloadLocked takes the current stream out of the mix and closes it.
func (d *Deck) unloadLocked() {
	if d.ctrl != nil {
		speaker.Lock()
		d.ctrl.Streamer = nil
		speaker.Unlock()
	}
	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			log.Debug().Err(err).Str("deck", d.name).Msg("Failed to close stream")
		}
	}
	d.gen++
	d.stream = nil
	d.volume = nil
	d.ctrl = nil
}

// fetch downloads item into the cache. It must be called without d.mu held.
func (d *Deck) fetch(item media.Item) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	path, err := d.resolver.Resolve(ctx, item)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", item.DisplayName(), err)
	}
	return path, nil
}

// fetchInBackground downloads item and loads it, unless the deck has moved
// on since gen.
func (d *Deck) fetchInBackground(item media.Item, gen uint64) {
	go func() {
		path, err := d.fetch(item)

		d.mu.Lock()
		defer d.unlock()
		if gen != d.gen || d.released || d.stream != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Str("deck", d.name).Msg("Failed to fetch item")
			d.setPlayingLocked(false)
			return
		}
		if err := d.openLocked(item, path); err != nil {
			log.Error().Err(err).Str("deck", d.name).Msg("Failed to load fetched item")
			d.setPlayingLocked(false)
		}
	}()
}

// fetchCurrent makes sure the current item is local before the caller takes
// d.mu to load it.
func (d *Deck) fetchCurrent() error {
	d.mu.Lock()
	if d.index < 0 || d.index >= len(d.items) || d.stream != nil {
		d.unlock()
		return nil
	}
	item := d.items[d.index]
	d.unlock()

	if _, ok := d.resolver.Lookup(item); ok {
		return nil
	}
	_, err := d.fetch(item)
	return err
}

func (d *Deck) onItemEnded(gen uint64) {
	d.mu.Lock()
	defer d.unlock()

	if gen != d.gen || d.released {
		return
	}

	if d.index+1 >= len(d.items) {
		d.unloadLocked()
		d.offset = 0
		d.setPlayingLocked(false)
		log.Debug().Str("deck", d.name).Msg("Reached end of queue")
		return
	}

	d.index++
	d.offset = 0
	if err := d.loadLocked(); err != nil && !errors.Is(err, errFetching) {
		log.Error().Err(err).Str("deck", d.name).Msg("Failed to load next item")
		d.setPlayingLocked(false)
	}
}

// reloadLocked reopens the current item if the deck had one loaded.
func (d *Deck) reloadLocked(wasLoaded bool) {
	if !wasLoaded && !d.playing {
		return
	}
	if err := d.loadLocked(); err != nil && !errors.Is(err, errFetching) {
		log.Error().Err(err).Str("deck", d.name).Msg("Failed to load item")
		d.setPlayingLocked(false)
	}
}

func (d *Deck) SetQueue(items []media.Item, startIndex int, startPosition time.Duration) {
	d.mu.Lock()
	defer d.unlock()

	wasLoaded := d.stream != nil
	d.unloadLocked()
	d.items = media.Clone(items)
	if len(d.items) == 0 {
		d.index, d.offset = -1, 0
		d.setPlayingLocked(false)
		return
	}
	if startIndex < 0 || startIndex >= len(d.items) {
		startIndex = 0
	}
	d.index = startIndex
	d.offset = max(startPosition, 0)
	d.reloadLocked(wasLoaded)
}

func (d *Deck) InsertItems(index int, items []media.Item) {
	d.mu.Lock()
	n := len(d.items)
	d.mu.Unlock()
	if index < 0 {
		index = n
	}
	d.ReplaceItems(index, index, items)
}

func (d *Deck) RemoveItems(from, to int) {
	d.ReplaceItems(from, to, nil)
}

func (d *Deck) ReplaceItems(from, to int, items []media.Item) {
	d.mu.Lock()
	defer d.unlock()

	if from >= to && len(items) == 0 {
		return
	}

	var previous media.Item
	if d.index >= 0 && d.index < len(d.items) {
		previous = d.items[d.index]
	}
	s := engine.SpliceQueue(d.items, d.index, from, to, items)
	d.items = s.Items
	d.index = s.Index

	switch {
	case s.Stopped:
		d.unloadLocked()
		d.offset = 0
		d.setPlayingLocked(false)
	case s.Moved:
		wasLoaded := d.stream != nil
		d.unloadLocked()
		d.offset = 0
		d.reloadLocked(wasLoaded)
	case s.Replaced && d.items[d.index].Source == previous.Source:
		// Same audio under a new descriptor; keep the loaded stream.
	case s.Replaced:
		wasLoaded := d.stream != nil
		d.offset = d.positionLocked()
		d.unloadLocked()
		d.reloadLocked(wasLoaded)
	}
}

func (d *Deck) ClearQueue() {
	d.SetQueue(nil, 0, 0)
}

func (d *Deck) Items() []media.Item {
	d.mu.Lock()
	defer d.unlock()
	return media.Clone(d.items)
}

func (d *Deck) CurrentIndex() int {
	d.mu.Lock()
	defer d.unlock()
	return d.index
}

func (d *Deck) NextIndex() (int, bool) {
	d.mu.Lock()
	defer d.unlock()
	if d.index < 0 || d.index+1 >= len(d.items) {
		return -1, false
	}
	return d.index + 1, true
}

// Prepare downloads and decodes the current item so that Play starts
// without delay. The download runs without holding the deck lock.
func (d *Deck) Prepare() error {
	if err := d.fetchCurrent(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.unlock()

	if d.released {
		return engine.ErrReleased
	}
	if d.index < 0 {
		return engine.ErrEmptyQueue
	}
	if d.stream != nil {
		return nil
	}
	return d.loadLocked()
}

// Play starts the current item. If it is still downloading, the deck counts
// as playing and sound starts once the download lands.
func (d *Deck) Play() error {
	if err := d.fetchCurrent(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.unlock()

	if d.released {
		return engine.ErrReleased
	}
	if d.index < 0 {
		return engine.ErrEmptyQueue
	}
	if d.stream == nil {
		err := d.loadLocked()
		if errors.Is(err, errFetching) {
			d.setPlayingLocked(true)
			return nil
		}
		if err != nil {
			return err
		}
	}

	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()
	d.setPlayingLocked(true)
	return nil
}

func (d *Deck) Pause() {
	d.mu.Lock()
	defer d.unlock()

	if d.ctrl != nil {
		speaker.Lock()
		d.ctrl.Paused = true
		speaker.Unlock()
	}
	d.setPlayingLocked(false)
}

func (d *Deck) Stop() {
	d.mu.Lock()
	defer d.unlock()

	d.unloadLocked()
	d.offset = 0
	d.setPlayingLocked(false)
}

func (d *Deck) SeekTo(index int, position time.Duration) {
	d.mu.Lock()
	defer d.unlock()

	if index < 0 || index >= len(d.items) {
		return
	}
	position = max(position, 0)

	if index == d.index && d.stream != nil {
		n := d.format.SampleRate.N(position)
		speaker.Lock()
		if length := d.stream.Len(); length > 0 && n >= length {
			n = length - 1
		}
		err := d.stream.Seek(n)
		speaker.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("deck", d.name).Msg("Seek failed")
		}
		return
	}

	wasLoaded := d.stream != nil
	d.unloadLocked()
	d.index = index
	d.offset = position
	d.reloadLocked(wasLoaded)
}

func (d *Deck) positionLocked() time.Duration {
	if d.stream == nil {
		return d.offset
	}
	speaker.Lock()
	pos := d.stream.Position()
	speaker.Unlock()
	return d.format.SampleRate.D(pos)
}

func (d *Deck) Position() time.Duration {
	d.mu.Lock()
	defer d.unlock()
	return d.positionLocked()
}

// Duration is the decoded length of the current item, or the catalog
// duration before it is loaded.
func (d *Deck) Duration() time.Duration {
	d.mu.Lock()
	defer d.unlock()

	if d.stream != nil {
		speaker.Lock()
		length := d.stream.Len()
		speaker.Unlock()
		if length > 0 {
			return d.format.SampleRate.D(length)
		}
		return engine.UnknownDuration
	}
	if d.index >= 0 && d.index < len(d.items) && d.items[d.index].Duration > 0 {
		return d.items[d.index].Duration
	}
	return engine.UnknownDuration
}

func (d *Deck) IsPlaying() bool {
	d.mu.Lock()
	defer d.unlock()
	return d.playing
}

func (d *Deck) applyVolumeLocked() {
	if d.volume == nil {
		return
	}
	level, silent := mixLevel(d.out.Volume(), d.gain)
	speaker.Lock()
	d.volume.Volume = level
	d.volume.Silent = silent
	speaker.Unlock()
}

// SetVolume sets the deck's crossfade gain. The master volume lives on the Output.
func (d *Deck) SetVolume(volume float64) {
	d.mu.Lock()
	defer d.unlock()
	d.gain = engine.ClampVolume(volume)
	d.applyVolumeLocked()
}

func (d *Deck) Volume() float64 {
	d.mu.Lock()
	defer d.unlock()
	return d.gain
}

func (d *Deck) refreshVolume() {
	d.mu.Lock()
	defer d.unlock()
	d.applyVolumeLocked()
}

func (d *Deck) SetShuffleEnabled(enabled bool) {
	d.mu.Lock()
	defer d.unlock()
	d.shuffle = enabled
}

func (d *Deck) ShuffleEnabled() bool {
	d.mu.Lock()
	defer d.unlock()
	return d.shuffle
}

func (d *Deck) Subscribe(listener engine.Listener) func() {
	d.mu.Lock()
	id := d.listeners.Add(listener)
	d.unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.listeners.Remove(id)
			d.unlock()
		})
	}
}

func (d *Deck) Release() error {
	d.mu.Lock()
	if d.released {
		d.unlock()
		return nil
	}
	d.unloadLocked()
	d.setPlayingLocked(false)
	d.released = true
	d.unlock()

	d.mu.Lock()
	d.listeners.Reset()
	d.items = nil
	d.index = -1
	d.unlock()

	log.Debug().Str("deck", d.name).Msg("Deck released")
	return nil
}
