// Package media defines the track descriptor shared by the queue, the engines and the UI.
package media

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is an immutable track descriptor. Identity is ID, never a queue position.
type Item struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album"`
	Source   string        `json:"source"` // Local path or http(s) URL
	Duration time.Duration `json:"duration"`
}

// NewItem builds an Item for source, assigning a random id.
func NewItem(source, title, artist string, duration time.Duration) Item {
	return Item{
		ID:       uuid.NewString(),
		Title:    title,
		Artist:   artist,
		Source:   source,
		Duration: duration,
	}
}

// Same reports whether two items refer to the same logical track.
func (i Item) Same(other Item) bool {
	return i.ID == other.ID
}

// WithID returns a copy of the item carrying a new identity.
func (i Item) WithID(id string) Item {
	i.ID = id
	return i
}

// DisplayName returns "Artist - Title", falling back to whatever is known.
func (i Item) DisplayName() string {
	switch {
	case i.Artist != "" && i.Title != "":
		return fmt.Sprintf("%s - %s", i.Artist, i.Title)
	case i.Title != "":
		return i.Title
	case i.Source != "":
		return i.Source
	default:
		return i.ID
	}
}

// IDs returns the ids of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// Clone returns a copy of items that does not share the backing array.
func Clone(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
