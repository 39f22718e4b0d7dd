package engine

import (
	"testing"
	"time"

	"github.com/glebovdev/twindeck/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracks(durations ...time.Duration) []media.Item {
	out := make([]media.Item, len(durations))
	for i, d := range durations {
		out[i] = media.Item{ID: string(rune('a' + i)), Duration: d}
	}
	return out
}

func newTestMemory() (*Memory, *ManualClock) {
	clock := NewManualClock()
	return NewMemory("test", WithClock(clock.Now)), clock
}

func TestMemoryPlayPauseEvents(t *testing.T) {
	m, _ := newTestMemory()
	var events []bool
	m.Subscribe(func(playing bool) { events = append(events, playing) })

	assert.ErrorIs(t, m.Play(), ErrEmptyQueue)

	m.SetQueue(tracks(time.Minute), 0, 0)
	require.NoError(t, m.Play())
	require.NoError(t, m.Play())
	m.Pause()
	m.Pause()

	assert.Equal(t, []bool{true, false}, events)
}

func TestMemoryPositionFollowsClock(t *testing.T) {
	m, clock := newTestMemory()
	m.SetQueue(tracks(time.Minute), 0, 5*time.Second)

	clock.Advance(time.Second)
	assert.Equal(t, 5*time.Second, m.Position(), "paused engine must not move")

	require.NoError(t, m.Play())
	clock.Advance(3 * time.Second)
	assert.Equal(t, 8*time.Second, m.Position())

	m.Pause()
	clock.Advance(10 * time.Second)
	assert.Equal(t, 8*time.Second, m.Position())
}

func TestMemoryAdvancesToNextItem(t *testing.T) {
	m, clock := newTestMemory()
	var events []bool
	m.Subscribe(func(playing bool) { events = append(events, playing) })

	m.SetQueue(tracks(10*time.Second, 10*time.Second), 0, 0)
	require.NoError(t, m.Play())

	clock.Advance(12 * time.Second)
	assert.Equal(t, 1, m.CurrentIndex())
	assert.Equal(t, 2*time.Second, m.Position())
	_, ok := m.NextIndex()
	assert.False(t, ok)

	clock.Advance(20 * time.Second)
	assert.False(t, m.IsPlaying())
	assert.Equal(t, 1, m.CurrentIndex())
	assert.Equal(t, []bool{true, false}, events)
}

func TestMemoryUnknownDuration(t *testing.T) {
	m, clock := newTestMemory()
	m.SetQueue(tracks(0, time.Minute), 0, 0)
	require.NoError(t, m.Play())

	clock.Advance(time.Hour)
	assert.Equal(t, UnknownDuration, m.Duration())
	assert.Equal(t, 0, m.CurrentIndex())
	assert.True(t, m.IsPlaying())
}

func TestMemoryQueueEditsTrackCurrentItem(t *testing.T) {
	tests := []struct {
		name        string
		edit        func(m *Memory)
		wantIndex   int
		wantID      string
		wantPos     time.Duration
		wantPlaying bool
	}{
		{
			name:        "insert before current shifts index",
			edit:        func(m *Memory) { m.InsertItems(0, []media.Item{{ID: "x"}}) },
			wantIndex:   2,
			wantID:      "b",
			wantPos:     4 * time.Second,
			wantPlaying: true,
		},
		{
			name:        "insert after current keeps index",
			edit:        func(m *Memory) { m.InsertItems(2, []media.Item{{ID: "x"}}) },
			wantIndex:   1,
			wantID:      "b",
			wantPos:     4 * time.Second,
			wantPlaying: true,
		},
		{
			name:        "remove before current shifts index",
			edit:        func(m *Memory) { m.RemoveItems(0, 1) },
			wantIndex:   0,
			wantID:      "b",
			wantPos:     4 * time.Second,
			wantPlaying: true,
		},
		{
			name:        "remove current moves to following item",
			edit:        func(m *Memory) { m.RemoveItems(1, 2) },
			wantIndex:   1,
			wantID:      "c",
			wantPos:     0,
			wantPlaying: true,
		},
		{
			name:        "remove current and tail stops on last item",
			edit:        func(m *Memory) { m.RemoveItems(1, 3) },
			wantIndex:   0,
			wantID:      "a",
			wantPos:     0,
			wantPlaying: false,
		},
		{
			name:        "replace current in place keeps offset",
			edit:        func(m *Memory) { m.ReplaceItems(1, 2, []media.Item{{ID: "B", Duration: time.Minute}}) },
			wantIndex:   1,
			wantID:      "B",
			wantPos:     4 * time.Second,
			wantPlaying: true,
		},
		{
			name: "set queue preserves play state",
			edit: func(m *Memory) {
				m.SetQueue(tracks(time.Minute, time.Minute, time.Minute), 2, time.Second)
			},
			wantIndex:   2,
			wantID:      "c",
			wantPos:     time.Second,
			wantPlaying: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestMemory()
			m.SetQueue(tracks(time.Minute, time.Minute, time.Minute), 1, 0)
			require.NoError(t, m.Play())
			clock.Advance(4 * time.Second)

			tt.edit(m)

			require.Equal(t, tt.wantIndex, m.CurrentIndex())
			assert.Equal(t, tt.wantID, m.Items()[tt.wantIndex].ID)
			assert.Equal(t, tt.wantPos, m.Position())
			assert.Equal(t, tt.wantPlaying, m.IsPlaying())
		})
	}
}

func TestMemoryClearQueueStops(t *testing.T) {
	m, _ := newTestMemory()
	m.SetQueue(tracks(time.Minute), 0, 0)
	require.NoError(t, m.Play())

	m.ClearQueue()
	assert.False(t, m.IsPlaying())
	assert.Equal(t, -1, m.CurrentIndex())
	assert.Equal(t, UnknownDuration, m.Duration())
}

func TestMemoryVolumeIsClamped(t *testing.T) {
	m, _ := newTestMemory()
	m.SetVolume(1.5)
	assert.Equal(t, 1.0, m.Volume())
	m.SetVolume(-1)
	assert.Equal(t, 0.0, m.Volume())
}

func TestMemoryUnsubscribeAndRelease(t *testing.T) {
	m, _ := newTestMemory()
	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })

	m.SetQueue(tracks(time.Minute), 0, 0)
	require.NoError(t, m.Play())
	unsubscribe()
	unsubscribe()
	m.Pause()
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	assert.ErrorIs(t, m.Play(), ErrReleased)
	assert.ErrorIs(t, m.Prepare(), ErrReleased)
	assert.Empty(t, m.Items())
}

func TestManualClockAdvance(t *testing.T) {
	clock := NewManualClock()
	start := clock.Now()
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, clock.Now().Sub(start))
}
