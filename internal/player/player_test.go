package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

func TestPercentToExponent(t *testing.T) {
	tests := []struct {
		percent  float64
		expected float64
	}{
		{0, MinVolumeDB},
		{100, 0},
		{-10, MinVolumeDB},
		{150, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("percent_%v", tt.percent), func(t *testing.T) {
			result := percentToExponent(tt.percent)
			if result != tt.expected {
				t.Errorf("percentToExponent(%v) = %v, want %v", tt.percent, result, tt.expected)
			}
		})
	}
}

func TestPercentToExponentCurve(t *testing.T) {
	p25 := percentToExponent(25)
	p50 := percentToExponent(50)
	p75 := percentToExponent(75)

	if p25 >= p50 || p50 >= p75 {
		t.Error("Volume curve should be monotonically increasing")
	}

	if p25 <= MinVolumeDB || p75 >= 0 {
		t.Error("Mid-range volumes should be between min and max")
	}
}

func TestMixLevel(t *testing.T) {
	tests := []struct {
		name       string
		percent    int
		gain       float64
		wantVolume float64
		wantSilent bool
	}{
		{"full", 100, 1, 0, false},
		{"half gain", 100, 0.5, -1, false},
		{"quarter gain", 100, 0.25, -2, false},
		{"zero gain", 100, 0, MinVolumeDB, true},
		{"muted master", 0, 1, MinVolumeDB, true},
		{"gain above one", 100, 2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			volume, silent := mixLevel(tt.percent, tt.gain)
			if silent != tt.wantSilent {
				t.Errorf("mixLevel(%d, %v) silent = %v, want %v", tt.percent, tt.gain, silent, tt.wantSilent)
			}
			if math.Abs(volume-tt.wantVolume) > 1e-9 {
				t.Errorf("mixLevel(%d, %v) volume = %v, want %v", tt.percent, tt.gain, volume, tt.wantVolume)
			}
		})
	}
}

func TestMixLevelAddsMasterAndGain(t *testing.T) {
	master := percentToExponent(50)
	volume, _ := mixLevel(50, 0.5)
	if math.Abs(volume-(master-1)) > 1e-9 {
		t.Errorf("mixLevel(50, 0.5) = %v, want %v", volume, master-1)
	}
}

func TestDecoderFor(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"song.mp3", true},
		{"SONG.MP3", true},
		{"take.wav", true},
		{"cover.png", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := decoderFor(tt.path)
			if tt.ok && err != nil {
				t.Errorf("decoderFor(%q) error = %v", tt.path, err)
			}
			if !tt.ok && !errors.Is(err, ErrNoDecoder) {
				t.Errorf("decoderFor(%q) error = %v, want ErrNoDecoder", tt.path, err)
			}
			if SupportedExtension(tt.path) != tt.ok {
				t.Errorf("SupportedExtension(%q) = %v, want %v", tt.path, !tt.ok, tt.ok)
			}
		})
	}
}

func writeSilentWAV(t *testing.T, dir string, length time.Duration) string {
	t.Helper()
	format := beep.Format{SampleRate: DefaultSampleRate, NumChannels: 2, Precision: 2}
	path := filepath.Join(dir, "silence.wav")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	if err := wav.Encode(f, beep.Silence(format.SampleRate.N(length)), format); err != nil {
		t.Fatalf("wav.Encode() error = %v", err)
	}
	return path
}

func TestOpenFileDecodesWAV(t *testing.T) {
	path := writeSilentWAV(t, t.TempDir(), 2*time.Second)

	stream, format, err := openFile(path)
	if err != nil {
		t.Fatalf("openFile() error = %v", err)
	}
	defer stream.Close()

	if format.SampleRate != DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", format.SampleRate, DefaultSampleRate)
	}
	if got := format.SampleRate.D(stream.Len()); got != 2*time.Second {
		t.Errorf("decoded length = %v, want 2s", got)
	}
}

func TestOpenFileErrors(t *testing.T) {
	if _, _, err := openFile("missing.flac"); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("openFile(flac) error = %v, want ErrNoDecoder", err)
	}
	if _, _, err := openFile(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("openFile() expected error for missing file")
	}
}

type stubFetcher struct {
	path   string
	cached map[string]string
	urls   []string
}

func (s *stubFetcher) Get(url string) (string, bool) {
	path, ok := s.cached[url]
	return path, ok
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	s.urls = append(s.urls, url)
	return s.path, nil
}

// blockingFetcher holds every download until release is closed, then fails it.
type blockingFetcher struct {
	started chan string
	release chan struct{}
}

func (b *blockingFetcher) Get(string) (string, bool) { return "", false }

func (b *blockingFetcher) Fetch(_ context.Context, url string) (string, error) {
	b.started <- url
	<-b.release
	return "", errors.New("connection reset")
}

func TestResolver(t *testing.T) {
	fetcher := &stubFetcher{path: "/cache/abc.mp3"}
	r := Resolver{Fetcher: fetcher}

	local, err := r.Resolve(context.Background(), media.Item{ID: "1", Source: "/music/a.mp3"})
	if err != nil || local != "/music/a.mp3" {
		t.Errorf("Resolve(local) = %q, %v", local, err)
	}

	remote, err := r.Resolve(context.Background(), media.Item{ID: "2", Source: "https://cdn.example.com/b.mp3"})
	if err != nil || remote != "/cache/abc.mp3" {
		t.Errorf("Resolve(remote) = %q, %v", remote, err)
	}
	if len(fetcher.urls) != 1 {
		t.Errorf("fetcher called %d times, want 1", len(fetcher.urls))
	}

	if _, err := r.Resolve(context.Background(), media.Item{ID: "3"}); err == nil {
		t.Error("Resolve() expected error for empty source")
	}
	if _, err := (Resolver{}).Resolve(context.Background(), media.Item{ID: "4", Source: "http://x/y.mp3"}); err == nil {
		t.Error("Resolve() expected error for remote source without fetcher")
	}
}

func TestResolverLookup(t *testing.T) {
	fetcher := &stubFetcher{cached: map[string]string{"https://cdn.example.com/hit.mp3": "/cache/hit.mp3"}}
	r := Resolver{Fetcher: fetcher}

	tests := []struct {
		name   string
		source string
		want   string
		ok     bool
	}{
		{"local", "/music/a.mp3", "/music/a.mp3", true},
		{"cached remote", "https://cdn.example.com/hit.mp3", "/cache/hit.mp3", true},
		{"uncached remote", "https://cdn.example.com/miss.mp3", "", false},
		{"no source", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Lookup(media.Item{ID: "x", Source: tt.source})
			if got != tt.want || ok != tt.ok {
				t.Errorf("Lookup(%q) = %q, %v, want %q, %v", tt.source, got, ok, tt.want, tt.ok)
			}
		})
	}
	if len(fetcher.urls) != 0 {
		t.Errorf("Lookup() downloaded %v", fetcher.urls)
	}
	if _, ok := (Resolver{}).Lookup(media.Item{ID: "y", Source: "http://x/y.mp3"}); ok {
		t.Error("Lookup() without fetcher should miss remote sources")
	}
}

func TestDeckStaysResponsiveWhileDownloading(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan string, 1), release: make(chan struct{})}
	d := NewDeck("a", NewOutput(DefaultVolume), Resolver{Fetcher: fetcher})
	d.SetQueue([]media.Item{{ID: "r", Source: "https://cdn.example.com/r.mp3", Duration: time.Minute}}, 0, 3*time.Second)

	prepared := make(chan error, 1)
	go func() { prepared <- d.Prepare() }()

	select {
	case <-fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Prepare() never started the download")
	}

	answered := make(chan struct{})
	go func() {
		d.Position()
		d.IsPlaying()
		d.CurrentIndex()
		d.SetVolume(0.5)
		close(answered)
	}()
	select {
	case <-answered:
	case <-time.After(2 * time.Second):
		t.Fatal("deck calls blocked behind the download")
	}

	close(fetcher.release)
	select {
	case err := <-prepared:
		if err == nil || !strings.Contains(err.Error(), "connection reset") {
			t.Errorf("Prepare() error = %v, want the download error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Prepare() did not return after the download failed")
	}
	if d.IsPlaying() {
		t.Error("failed Prepare() left the deck playing")
	}
}

func deckItems(n int) []media.Item {
	out := make([]media.Item, n)
	for i := range out {
		out[i] = media.Item{ID: fmt.Sprintf("i%d", i), Source: fmt.Sprintf("/music/%d.mp3", i), Duration: time.Minute}
	}
	return out
}

// Decks that never play do not touch the speaker.
func TestDeckQueueBookkeeping(t *testing.T) {
	d := NewDeck("a", NewOutput(DefaultVolume), Resolver{})

	if d.CurrentIndex() != -1 {
		t.Errorf("empty deck CurrentIndex() = %d, want -1", d.CurrentIndex())
	}
	if err := d.Play(); !errors.Is(err, engine.ErrEmptyQueue) {
		t.Errorf("Play() on empty deck error = %v, want ErrEmptyQueue", err)
	}

	d.SetQueue(deckItems(3), 1, 5*time.Second)
	if d.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", d.CurrentIndex())
	}
	if d.Position() != 5*time.Second {
		t.Errorf("Position() = %v, want 5s", d.Position())
	}
	if d.Duration() != time.Minute {
		t.Errorf("Duration() = %v, want catalog duration", d.Duration())
	}

	d.InsertItems(0, []media.Item{{ID: "x"}})
	if d.CurrentIndex() != 2 {
		t.Errorf("after insert CurrentIndex() = %d, want 2", d.CurrentIndex())
	}

	d.RemoveItems(2, 3)
	if d.CurrentIndex() != 2 || d.Items()[2].ID != "i2" {
		t.Errorf("after removing current, index = %d item = %s", d.CurrentIndex(), d.Items()[d.CurrentIndex()].ID)
	}
	if d.Position() != 0 {
		t.Errorf("moving to a new item should reset position, got %v", d.Position())
	}

	next, ok := d.NextIndex()
	if ok {
		t.Errorf("NextIndex() = %d at end of queue", next)
	}

	d.ClearQueue()
	if d.CurrentIndex() != -1 || d.IsPlaying() {
		t.Error("ClearQueue() should leave an empty, stopped deck")
	}
}

func TestDeckVolumeAndRelease(t *testing.T) {
	d := NewDeck("b", NewOutput(DefaultVolume), Resolver{})
	var events []bool
	d.Subscribe(func(playing bool) { events = append(events, playing) })

	d.SetVolume(1.7)
	if d.Volume() != 1 {
		t.Errorf("Volume() = %v, want clamped 1", d.Volume())
	}
	d.SetVolume(0.3)
	if d.Volume() != 0.3 {
		t.Errorf("Volume() = %v, want 0.3", d.Volume())
	}

	d.SetShuffleEnabled(true)
	if !d.ShuffleEnabled() {
		t.Error("ShuffleEnabled() = false after enabling")
	}

	if err := d.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := d.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if err := d.Prepare(); !errors.Is(err, engine.ErrReleased) {
		t.Errorf("Prepare() after release error = %v, want ErrReleased", err)
	}
	if len(events) != 0 {
		t.Errorf("idle deck emitted events %v", events)
	}
}

func TestOutputVolume(t *testing.T) {
	out := NewOutput(40)
	NewDeck("a", out, Resolver{})
	out.SetVolume(80)
	if out.Volume() != 80 {
		t.Errorf("Volume() = %d, want 80", out.Volume())
	}
	if out.SampleRate() != DefaultSampleRate {
		t.Errorf("SampleRate() = %d, want %d", out.SampleRate(), DefaultSampleRate)
	}
}
