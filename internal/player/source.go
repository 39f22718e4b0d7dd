package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebovdev/twindeck/internal/media"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

var ErrNoDecoder = errors.New("no decoder for source")

// Fetcher turns a remote URL into a local file. Get only reports files that
// are already local; Fetch may download.
type Fetcher interface {
	Get(url string) (string, bool)
	Fetch(ctx context.Context, url string) (string, error)
}

// Resolver maps an item's Source to a readable local path.
type Resolver struct {
	Fetcher Fetcher
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Lookup returns a local path for item without downloading anything.
func (r Resolver) Lookup(item media.Item) (string, bool) {
	if item.Source == "" {
		return "", false
	}
	if !isRemote(item.Source) {
		return item.Source, true
	}
	if r.Fetcher == nil {
		return "", false
	}
	return r.Fetcher.Get(item.Source)
}

func (r Resolver) Resolve(ctx context.Context, item media.Item) (string, error) {
	if item.Source == "" {
		return "", fmt.Errorf("item %s has no source", item.ID)
	}
	if !isRemote(item.Source) {
		return item.Source, nil
	}
	if r.Fetcher == nil {
		return "", fmt.Errorf("cannot fetch remote source %s without a cache", item.Source)
	}
	return r.Fetcher.Fetch(ctx, item.Source)
}

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
}

func decoderFor(path string) (decodeFunc, error) {
	ext := strings.ToLower(filepath.Ext(path))
	dec, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, ext)
	}
	return dec, nil
}

// SupportedExtension reports whether path has a decodable file extension.
func SupportedExtension(path string) bool {
	_, err := decoderFor(path)
	return err == nil
}

// openFile decodes the audio file at path. The returned stream owns the file.
func openFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	dec, err := decoderFor(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	stream, format, err := dec(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return stream, format, nil
}
