// Package cache keeps downloaded audio files on disk, keyed by source URL.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached audio files are valid (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	// AudioSubdir is the subdirectory for cached audio.
	AudioSubdir = "audio"
	// AppName is used for the cache directory name.
	AppName = "twindeck"

	downloadTimeout = 5 * time.Minute
)

// Cache manages disk-based caching of remote audio files.
type Cache struct {
	baseDir string
	expiry  time.Duration
	client  *resty.Client
}

// NewCache creates a Cache in the user cache directory. A non-positive
// expiry falls back to DefaultExpiry.
func NewCache(expiry time.Duration) (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}
	return New(cacheDir, expiry), nil
}

// New creates a Cache rooted at baseDir.
func New(baseDir string, expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Cache{
		baseDir: baseDir,
		expiry:  expiry,
		client:  resty.New().SetTimeout(downloadTimeout),
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func (c *Cache) audioDir() string {
	return filepath.Join(c.baseDir, AudioSubdir)
}

func hashURL(url string) string {
	hash := md5.Sum([]byte(url))
	return hex.EncodeToString(hash[:])
}

// extension keeps the source's file extension so decoders can be chosen by name.
func extension(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return strings.ToLower(path.Ext(u.Path))
	}
	return ""
}

// Path returns where the file for url lives in the cache, whether or not it exists.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.audioDir(), hashURL(url)+extension(url))
}

// Get returns the cached file for url. Expired files are removed.
func (c *Cache) Get(url string) (string, bool) {
	filePath := c.Path(url)

	info, err := os.Stat(filePath)
	if err != nil {
		return "", false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(filePath); err != nil {
			log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
		}
		return "", false
	}

	return filePath, true
}

// Save stores the contents of r as the cached file for url.
func (c *Cache) Save(url string, r io.Reader) (string, error) {
	dir := c.audioDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close cache file: %w", err)
	}

	filePath := c.Path(url)
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store cache file: %w", err)
	}
	return filePath, nil
}

// Fetch returns a local path for url, downloading it on a cache miss.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	if filePath, ok := c.Get(url); ok {
		log.Debug().Str("url", url).Msg("Audio cache hit")
		return filePath, nil
	}

	log.Debug().Str("url", url).Msg("Downloading audio")
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return "", fmt.Errorf("download returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	return c.Save(url, body)
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	dir := c.audioDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(dir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
