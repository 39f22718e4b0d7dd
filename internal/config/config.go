package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "twindeck"
	AppTagline      = "Crossfading terminal player"
	AppDescription  = "A terminal music player that overlaps the end of each track with the start of the next"
	AppProjectURL   = "https://github.com/glebovdev/twindeck"
	AppProjectShort = "github.com/glebovdev/twindeck"

	ConfigDir      = ".config/twindeck"
	ConfigFileName = "config.yml"

	DefaultVolume = 70
	MinVolume     = 0
	MaxVolume     = 100

	DefaultCrossfadeSeconds = 6
	MinCrossfadeSeconds     = 0
	MaxCrossfadeSeconds     = 12

	DefaultPollIntervalMs    = 250
	DefaultRampTickMs        = 20
	DefaultCacheExpiryHours  = 7 * 24
	DefaultRefreshIntervalS  = 300
	minPollIntervalMs        = 10
	minRampTickMs            = 5
	minRefreshIntervalSecond = 10
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	return min(max(volume, MinVolume), MaxVolume)
}

// ClampCrossfade keeps the crossfade length within [0, 12] seconds.
// Zero disables crossfading.
func ClampCrossfade(seconds int) int {
	return min(max(seconds, MinCrossfadeSeconds), MaxCrossfadeSeconds)
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/twindeck/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background            string `yaml:"background"`
	Foreground            string `yaml:"foreground"`
	Borders               string `yaml:"borders"`
	Highlight             string `yaml:"highlight"`
	MutedVolume           string `yaml:"muted_volume"`
	HeaderBackground      string `yaml:"header_background"`
	QueueHeaderBackground string `yaml:"queue_header_background"`
	QueueHeaderForeground string `yaml:"queue_header_foreground"`
	HelpBackground        string `yaml:"help_background"`
	HelpForeground        string `yaml:"help_foreground"`
	HelpHotkey            string `yaml:"help_hotkey"`
	CrossfadeBar          string `yaml:"crossfade_bar"`
	ModalBackground       string `yaml:"modal_background"`
}

type Config struct {
	Volume           int      `yaml:"volume"`
	CrossfadeSeconds int      `yaml:"crossfade_seconds"`
	PollIntervalMs   int      `yaml:"poll_interval_ms"`
	RampTickMs       int      `yaml:"ramp_tick_ms"`
	Shuffle          bool     `yaml:"shuffle"`
	LastItem         string   `yaml:"last_item"`
	Autostart        bool     `yaml:"autostart"`
	PlaylistURL      string   `yaml:"playlist_url"`
	LibraryDir       string   `yaml:"library_dir"`
	CacheExpiryHours int      `yaml:"cache_expiry_hours"`
	RefreshInterval  int      `yaml:"refresh_interval_seconds"`
	Favorites        []string `yaml:"favorites"`
	Theme            Theme    `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.CrossfadeSeconds = ClampCrossfade(c.CrossfadeSeconds)
	if c.PollIntervalMs < minPollIntervalMs {
		c.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.RampTickMs < minRampTickMs {
		c.RampTickMs = DefaultRampTickMs
	}
	if c.CacheExpiryHours <= 0 {
		c.CacheExpiryHours = DefaultCacheExpiryHours
	}
	if c.RefreshInterval != 0 && c.RefreshInterval < minRefreshIntervalSecond {
		c.RefreshInterval = minRefreshIntervalSecond
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:           DefaultVolume,
		CrossfadeSeconds: DefaultCrossfadeSeconds,
		PollIntervalMs:   DefaultPollIntervalMs,
		RampTickMs:       DefaultRampTickMs,
		CacheExpiryHours: DefaultCacheExpiryHours,
		RefreshInterval:  DefaultRefreshIntervalS,
		Favorites:        []string{},
		Theme: Theme{
			Background:            "#1a1b25",
			Foreground:            "#a3aacb",
			Borders:               "#40445b",
			Highlight:             "#ff9d65",
			MutedVolume:           "#fe0702",
			HeaderBackground:      "#473533",
			QueueHeaderBackground: "#3a3d4f",
			QueueHeaderForeground: "#c8d0e8",
			HelpBackground:        "#322f45",
			HelpForeground:        "#9aa3c6",
			HelpHotkey:            "#ff9d65",
			CrossfadeBar:          "#7dcfff",
			ModalBackground:       "#282a36",
		},
	}
}

func (c *Config) Crossfade() time.Duration {
	return time.Duration(c.CrossfadeSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) RampTick() time.Duration {
	return time.Duration(c.RampTickMs) * time.Millisecond
}

func (c *Config) CacheExpiry() time.Duration {
	return time.Duration(c.CacheExpiryHours) * time.Hour
}

// RefreshEvery returns zero when periodic library refresh is off.
func (c *Config) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c *Config) IsFavorite(itemID string) bool {
	return slices.Contains(c.Favorites, itemID)
}

func (c *Config) ToggleFavorite(itemID string) {
	if i := slices.Index(c.Favorites, itemID); i >= 0 {
		c.Favorites = slices.Delete(c.Favorites, i, i+1)
		return
	}
	c.Favorites = append(c.Favorites, itemID)
}

// RenameItem follows an item whose id changed in the library.
func (c *Config) RenameItem(oldID, newID string) {
	if c.LastItem == oldID {
		c.LastItem = newID
	}
	if i := slices.Index(c.Favorites, oldID); i >= 0 {
		c.Favorites[i] = newID
	}
}

func (c *Config) CleanupFavorites(validIDs map[string]bool) {
	cleaned := []string{}
	for _, id := range c.Favorites {
		if validIDs[id] {
			cleaned = append(cleaned, id)
		}
	}
	c.Favorites = cleaned
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
