// Package player renders audio through the system speaker. Each Deck is one
// playback engine; both decks of the crossfade controller mix into a single
// shared Output.
package player

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	SpeakerBufferSize   = time.Millisecond * 250
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	DefaultVolume       = 70
)

// Output owns the process-wide speaker and the master volume.
type Output struct {
	mu            sync.Mutex
	sampleRate    beep.SampleRate
	speakerInit   bool
	volumePercent int
	decks         []*Deck
}

func NewOutput(volumePercent int) *Output {
	return &Output{
		sampleRate:    DefaultSampleRate,
		volumePercent: volumePercent,
	}
}

func (o *Output) initSpeaker() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.speakerInit {
		return nil
	}
	if err := speaker.Init(o.sampleRate, o.sampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	o.speakerInit = true
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", o.sampleRate, SpeakerBufferSize)
	return nil
}

func (o *Output) SampleRate() beep.SampleRate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sampleRate
}

func (o *Output) attach(d *Deck) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decks = append(o.decks, d)
}

// SetVolume sets the master volume in percent and re-applies it to every deck.
func (o *Output) SetVolume(volumePercent int) {
	o.mu.Lock()
	o.volumePercent = volumePercent
	decks := append([]*Deck(nil), o.decks...)
	o.mu.Unlock()

	for _, d := range decks {
		d.refreshVolume()
	}
	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, percentToExponent(float64(volumePercent)))
}

func (o *Output) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volumePercent
}

// Close stops all sound. The speaker itself stays initialized.
func (o *Output) Close() {
	o.mu.Lock()
	initialized := o.speakerInit
	o.mu.Unlock()

	if initialized {
		speaker.Clear()
	}
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

// mixLevel combines the master volume with a deck's linear crossfade gain
// into an effects.Volume setting with base 2.
func mixLevel(volumePercent int, gain float64) (volume float64, silent bool) {
	if volumePercent <= 0 || gain <= 0 {
		return MinVolumeDB, true
	}
	if gain > 1 {
		gain = 1
	}
	return percentToExponent(float64(volumePercent)) + math.Log2(gain), false
}
