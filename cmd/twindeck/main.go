package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/twindeck/internal/cache"
	"github.com/glebovdev/twindeck/internal/catalog"
	"github.com/glebovdev/twindeck/internal/config"
	"github.com/glebovdev/twindeck/internal/crossfade"
	"github.com/glebovdev/twindeck/internal/engine"
	"github.com/glebovdev/twindeck/internal/library"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/glebovdev/twindeck/internal/player"
	"github.com/glebovdev/twindeck/internal/ramp"
	"github.com/glebovdev/twindeck/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	simulatedTracks      = 12
	simulatedTrackLength = 20 * time.Second
)

var (
	versionFlag   = flag.Bool("version", false, "Show version information")
	debugFlag     = flag.Bool("debug", false, "Enable debug logging")
	simulateFlag  = flag.Bool("simulate", false, "Play a silent synthetic queue instead of real audio")
	dirFlag       = flag.String("dir", "", "Play audio files from this directory")
	playlistFlag  = flag.String("playlist", "", "Play tracks from a JSON playlist URL")
	crossfadeFlag = flag.Int("crossfade", -1, "Crossfade length in seconds (0 disables, max 12)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

// applyFlags lets command-line flags override the saved configuration.
func applyFlags(cfg *config.Config) {
	if *dirFlag != "" {
		cfg.LibraryDir = *dirFlag
		cfg.PlaylistURL = ""
	}
	if *playlistFlag != "" {
		cfg.PlaylistURL = *playlistFlag
		cfg.LibraryDir = ""
	}
	if *crossfadeFlag >= 0 {
		cfg.CrossfadeSeconds = config.ClampCrossfade(*crossfadeFlag)
	}
}

func librarySource(cfg *config.Config) (catalog.Source, error) {
	if cfg.PlaylistURL != "" {
		return catalog.RemotePlaylist{Client: catalog.NewClient(), URL: cfg.PlaylistURL}, nil
	}

	dir := cfg.LibraryDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("no library directory configured: %w", err)
		}
		dir = filepath.Join(home, "Music")
	}
	return catalog.Directory{Path: dir, Accept: player.SupportedExtension}, nil
}

// simulatedSource produces a fixed queue of silent tracks for the in-memory
// engines.
type simulatedSource struct {
	count  int
	length time.Duration
}

func (s simulatedSource) Load(ctx context.Context) ([]media.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]media.Item, s.count)
	for i := range items {
		title := fmt.Sprintf("Track %02d", i+1)
		items[i] = media.NewItem("sim://"+title, title, "Simulator", s.length).
			WithID(fmt.Sprintf("sim-%02d", i+1))
		items[i].Album = "Synthetic"
	}
	return items, nil
}

func (s simulatedSource) String() string {
	return "simulator"
}

// buildEngines returns the two decks and where their queue comes from.
func buildEngines(cfg *config.Config, output *player.Output) (engine.Engine, engine.Engine, catalog.Source, error) {
	if *simulateFlag {
		source := simulatedSource{count: simulatedTracks, length: simulatedTrackLength}
		return engine.NewMemory("sim-a"), engine.NewMemory("sim-b"), source, nil
	}

	audioCache, err := cache.NewCache(cfg.CacheExpiry())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open audio cache: %w", err)
	}
	go func() {
		if err := audioCache.CleanExpired(); err != nil {
			log.Warn().Err(err).Msg("Failed to clean expired cache entries")
		}
	}()

	source, err := librarySource(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver := player.Resolver{Fetcher: audioCache}
	a := player.NewDeck("deck-a", output, resolver)
	b := player.NewDeck("deck-b", output, resolver)
	return a, b, source, nil
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging(*debugFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	applyFlags(cfg)

	output := player.NewOutput(cfg.Volume)
	a, b, source, err := buildEngines(cfg, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	controller := crossfade.New(a, b, crossfade.Options{
		CrossfadeDuration: cfg.Crossfade(),
		PollInterval:      cfg.PollInterval(),
		Ramp:              ramp.NewTicker(cfg.RampTick()),
	})
	lib := library.NewService(source)
	app := ui.NewUI(cfg, controller, lib, output)

	shutdown := func() {
		if err := controller.Release(); err != nil {
			log.Error().Err(err).Msg("Failed to release playback engines")
		}
		output.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	uiDone := make(chan error, 1)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		app.Shutdown()
	}()

	log.Info().Str("source", source.String()).Msg("Starting UI...")

	// Run UI in a goroutine so we can handle signals properly
	go func() {
		uiDone <- app.Run()
	}()

	if err := <-uiDone; err != nil {
		log.Error().Err(err).Msg("Error running UI")
		shutdown()
		os.Exit(1)
	}

	shutdown()
	log.Info().Msgf("%s stopped", config.AppName)
}
