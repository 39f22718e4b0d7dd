// Package catalog loads playable items from a remote JSON playlist or a
// local music directory.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebovdev/twindeck/internal/media"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const requestTimeout = 30 * time.Second

var ErrEmptyPlaylist = errors.New("playlist has no playable tracks")

// Source yields the items of a library.
type Source interface {
	Load(ctx context.Context) ([]media.Item, error)
	String() string
}

// Track is one entry of a playlist document.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms"`
}

// Item converts t to a queue item. Tracks without an id get one derived
// from their URL so it stays stable across reloads.
func (t Track) Item() media.Item {
	id := t.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(t.URL)).String()
	}
	return media.Item{
		ID:       id,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Source:   t.URL,
		Duration: time.Duration(t.DurationMs) * time.Millisecond,
	}
}

// Playlist is the document served at a playlist URL.
type Playlist struct {
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
}

// Client fetches playlists over HTTP.
type Client struct {
	client *resty.Client
}

// NewClient creates a playlist client with sensible defaults.
func NewClient() *Client {
	return &Client{
		client: resty.New().
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json"),
	}
}

// GetPlaylist downloads and parses the playlist at url. Tracks without a URL
// are skipped.
func (c *Client) GetPlaylist(ctx context.Context, url string) ([]media.Item, error) {
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("playlist returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var playlist Playlist
	if err := json.Unmarshal(resp.Body(), &playlist); err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	items := make([]media.Item, 0, len(playlist.Tracks))
	for _, t := range playlist.Tracks {
		if t.URL == "" {
			continue
		}
		items = append(items, t.Item())
	}
	if len(items) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return items, nil
}

// RemotePlaylist is a Source backed by a playlist URL.
type RemotePlaylist struct {
	Client *Client
	URL    string
}

func (p RemotePlaylist) Load(ctx context.Context) ([]media.Item, error) {
	return p.Client.GetPlaylist(ctx, p.URL)
}

func (p RemotePlaylist) String() string {
	return p.URL
}
