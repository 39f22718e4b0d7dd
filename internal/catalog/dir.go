package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glebovdev/twindeck/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AcceptFunc reports whether a file should be part of the library.
type AcceptFunc func(path string) bool

// DefaultAccept takes mp3 and wav files.
func DefaultAccept(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav":
		return true
	}
	return false
}

// ScanDir walks dir and returns one item per accepted file, sorted by path.
// An item's id is derived from its path and modification time, so a file
// that is rewritten in place gets a new id.
func ScanDir(dir string, accept AcceptFunc) ([]media.Item, error) {
	if accept == nil {
		accept = DefaultAccept
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	var items []media.Item
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !accept(path) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		key := fmt.Sprintf("file://%s@%d", path, info.ModTime().UnixNano())
		artist, title := splitName(path)
		items = append(items, media.Item{
			ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
			Title:  title,
			Artist: artist,
			Album:  filepath.Base(filepath.Dir(path)),
			Source: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	slices.SortFunc(items, func(a, b media.Item) int {
		return strings.Compare(a.Source, b.Source)
	})
	return items, nil
}

// splitName reads "Artist - Title.ext" file names.
func splitName(path string) (artist, title string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if a, t, ok := strings.Cut(base, " - "); ok {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "", base
}

// Directory is a Source backed by a local folder.
type Directory struct {
	Path   string
	Accept AcceptFunc
}

func (d Directory) Load(ctx context.Context) ([]media.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := ScanDir(d.Path, d.Accept)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return items, nil
}

func (d Directory) String() string {
	return d.Path
}
