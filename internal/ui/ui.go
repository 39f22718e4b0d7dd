package ui

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/twindeck/internal/config"
	"github.com/glebovdev/twindeck/internal/crossfade"
	"github.com/glebovdev/twindeck/internal/library"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/glebovdev/twindeck/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	CrossfadeStep         = 1
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	PlayerPanelHeight     = 12
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime = 1200 * time.Millisecond
	MinStatusDisplayTime  = 300 * time.Millisecond
	libraryLoadTimeout    = 30 * time.Second
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

type UI struct {
	app             *tview.Application
	library         *library.Service
	controller      *crossfade.Controller
	output          *player.Output
	queueList       *tview.Table
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	playerPanel     *tview.Flex
	titleView       *tview.TextView
	artistView      *tview.TextView
	albumView       *tview.TextView
	positionView    *tview.TextView
	deckView        *tview.TextView
	volumeView      *tview.Flex
	mainLayout      *tview.Flex
	loadingScreen   *tview.Flex
	loadingText     *tview.TextView
	progressBar     *tview.TextView
	pages           *tview.Pages
	stopUpdates     chan struct{}
	playingIndex    int
	playingItemID   string
	selectedItemID  string
	volume          volumeState
	config          *config.Config
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	animationFrame  int
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer
	colors          struct {
		background            tcell.Color
		foreground            tcell.Color
		borders               tcell.Color
		highlight             tcell.Color
		headerBackground      tcell.Color
		queueHeaderBackground tcell.Color
		queueHeaderForeground tcell.Color
		helpBackground        tcell.Color
		helpForeground        tcell.Color
		helpHotkey            tcell.Color
		crossfadeBar          tcell.Color
		modalBackground       tcell.Color
	}
}

func NewUI(cfg *config.Config, controller *crossfade.Controller, lib *library.Service, output *player.Output) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		library:       lib,
		controller:    controller,
		output:        output,
		stopUpdates:   make(chan struct{}),
		playingIndex:  -1,
		volume:        newVolumeState(cfg.Volume),
		config:        cfg,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.queueHeaderBackground = config.GetColor(cfg.Theme.QueueHeaderBackground)
	ui.colors.queueHeaderForeground = config.GetColor(cfg.Theme.QueueHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.crossfadeBar = config.GetColor(cfg.Theme.CrossfadeBar)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	output.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer(controller)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	ui.config.Volume = ui.volume.persisted()
	ui.mu.Unlock()

	if item, ok := ui.controller.CurrentItem(); ok {
		ui.config.LastItem = item.ID
	}
	ui.config.Shuffle = ui.controller.ShuffleEnabled()
	ui.config.CrossfadeSeconds = int(ui.controller.CrossfadeDuration() / time.Second)

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.library.StopPeriodicRefresh()
	ui.SaveConfig()
	if err := ui.controller.Stop(); err != nil && !errors.Is(err, crossfade.ErrReleased) {
		log.Debug().Err(err).Msg("Stop on exit failed")
	}
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.loadLibraryAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Loading library... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderProgressBar(0))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func renderProgressBar(percent int) string {
	const width = 30
	percent = min(max(percent, 0), 100)
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderProgressBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderProgressBar(p); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

func (ui *UI) loadLibraryAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), libraryLoadTimeout)
	items, err := ui.library.Load(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	log.Debug().Msgf("Loaded %d items in %v", len(items), time.Since(startTime))

	<-animDone

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building queue... (2/3)")
	})

	ui.config.CleanupFavorites(ui.library.ValidIDs())
	startIndex := 0
	if ui.config.LastItem != "" {
		if index := ui.library.FindIndexByID(ui.config.LastItem); index >= 0 {
			startIndex = index
		} else {
			log.Debug().Msgf("Last item '%s' not found, starting from the top", ui.config.LastItem)
		}
	}
	if err := ui.controller.SetQueueAt(items, startIndex, 0); err != nil {
		return fmt.Errorf("failed to build queue: %w", err)
	}
	if err := ui.controller.SetShuffle(ui.config.Shuffle); err != nil {
		return fmt.Errorf("failed to restore shuffle: %w", err)
	}

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ui.setupUI()
	ui.library.OnIdentityChanged(ui.onIdentityChanged)
	if every := ui.config.RefreshEvery(); every > 0 {
		ui.library.StartPeriodicRefresh(every, ui.onLibraryRefreshed)
	}

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.queueList)
		ui.selectRow(ui.controller.CurrentIndex())
		ui.updateNowPlaying()
		ui.startUpdates()

		if ui.config.Autostart {
			log.Debug().Msg("Autostart enabled, starting playback")
			ui.runTransport("play", ui.controller.Play)
		}
	})

	return nil
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.playerPanel.SetBackgroundColor(ui.colors.background)
	ui.playerPanel.AddItem(ui.createContentPanel(), 0, 1, false)

	ui.queueList = ui.createQueueTable()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.queueList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	spacer := func() *tview.Box { return tview.NewBox().SetBackgroundColor(ui.colors.headerBackground) }

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(spacer(), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(spacer(), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(spacer(), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(spacer(), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) label(text string) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetText(text)
	tv.SetTextColor(ui.colors.foreground)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	return tv
}

func (ui *UI) valueView(bold bool) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetDynamicColors(true)
	tv.SetTextColor(ui.colors.highlight)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	if bold {
		tv.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
	}
	return tv
}

func (ui *UI) createContentPanel() *tview.Flex {
	ui.titleView = ui.valueView(true)
	ui.artistView = ui.valueView(false)
	ui.albumView = ui.valueView(false)
	ui.positionView = ui.valueView(false)
	ui.deckView = ui.valueView(false)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.label(" Title:"), 1, 0, false).
		AddItem(ui.titleView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.label(" Artist / Album:"), 1, 0, false).
		AddItem(ui.artistView, 1, 0, false).
		AddItem(ui.albumView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.label(" Position:"), 1, 0, false).
		AddItem(ui.positionView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.deckView, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	return contentWithPadding
}

func (ui *UI) highlighted(text string) string {
	return fmt.Sprintf(" [%s]%s[-]", ui.colors.highlight.String(), tview.Escape(text))
}

// updateNowPlaying redraws the panel for whatever the active deck is on.
func (ui *UI) updateNowPlaying() {
	if ui.titleView == nil {
		return
	}

	item, ok := ui.controller.CurrentItem()
	if !ok {
		ui.titleView.SetText(ui.highlighted("Nothing queued"))
		ui.artistView.SetText("")
		ui.albumView.SetText("")
		ui.positionView.SetText("")
		ui.deckView.SetText("")
		return
	}

	ui.titleView.SetText(ui.highlighted(item.DisplayName()))
	ui.artistView.SetText(ui.highlighted(orNA(item.Artist)))
	ui.albumView.SetText(ui.highlighted(orNA(item.Album)))

	position := ui.controller.Position()
	duration := ui.controller.Duration()
	ui.positionView.SetText(fmt.Sprintf(" [%s]%s / %s[-]  %s",
		ui.colors.highlight.String(),
		formatDuration(position),
		formatDuration(duration),
		renderTrackBar(position, duration)))

	ui.deckView.SetText(ui.renderDeckLine())
}

func (ui *UI) renderDeckLine() string {
	barColor := ui.colors.crossfadeBar.String()
	slot := ui.controller.ActiveSlot()
	xf := ui.controller.CrossfadeDuration()

	if ui.controller.TransitionState() == crossfade.StateTransitioning {
		progress := ui.controller.Progress()
		return fmt.Sprintf(" Deck [%s]%s ⇄ %s[-]  [%s]%s[-] %d%%",
			barColor, slot, slot.Other(),
			barColor, renderCrossfadeBar(progress), int(progress*100))
	}
	if xf <= 0 {
		return fmt.Sprintf(" Deck [%s]%s[-]  crossfade off", barColor, slot)
	}
	return fmt.Sprintf(" Deck [%s]%s[-]  crossfade %s", barColor, slot, xf)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

// startUpdates runs the redraw loop until the UI stops.
func (ui *UI) startUpdates() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	stopCh := ui.stopUpdates
	ui.mu.Unlock()
	if stopCh == nil {
		return
	}

	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-animationTicker.C:
				ui.mu.Lock()
				ui.animationFrame++
				ui.mu.Unlock()

				ui.statusRenderer.AdvanceAnimation()

				ui.app.QueueUpdateDraw(func() {
					ui.updatePlayingIndicator()
					ui.updateNowPlaying()
				})
			}
		}
	}()
}

// runTransport runs a controller call off the UI goroutine, since decks may
// decode or download before they answer.
func (ui *UI) runTransport(name string, fn func() error) {
	go func() {
		err := fn()
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, crossfade.ErrReleased) {
			log.Debug().Err(err).Str("op", name).Msg("Transport call abandoned")
			return
		}
		log.Error().Err(err).Str("op", name).Msg("Transport call failed")
		ui.app.QueueUpdateDraw(func() {
			ui.showError(err)
		})
	}()
}

func (ui *UI) onLibraryRefreshed(items []media.Item) {
	removed, added := syncQueue(ui.controller.Items(), items)
	for i := len(removed) - 1; i >= 0; i-- {
		if err := ui.controller.RemoveItem(removed[i]); err != nil {
			log.Warn().Err(err).Int("index", removed[i]).Msg("Failed to drop vanished item")
		}
	}
	if len(added) > 0 {
		if err := ui.controller.AddItems(added...); err != nil {
			log.Warn().Err(err).Msg("Failed to append new items")
		}
	}

	ui.app.QueueUpdateDraw(func() {
		ui.refreshQueueTable()
	})
}

func (ui *UI) onIdentityChanged(change library.IdentityChange) {
	if ui.controller.OnItemIdentityChanged(change.Old, change.Updated) {
		log.Debug().Str("old", change.Old.ID).Str("new", change.Updated.ID).Msg("Queue item re-identified")
	}
	ui.config.RenameItem(change.Old.ID, change.Updated.ID)
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			if ui.controller.CurrentIndex() >= 0 {
				ui.runTransport("toggle", ui.controller.TogglePause)
			} else {
				ui.playSelected()
			}
			return nil
		case 'n', 'N', '>':
			ui.nextItem()
			return nil
		case 'p', 'P', '<':
			ui.prevItem()
			return nil
		case 's', 'S':
			ui.toggleShuffle()
			return nil
		case 'x':
			ui.runTransport("stop", ui.controller.Stop)
			return nil
		case 'c':
			ui.adjustCrossfade(-CrossfadeStep)
			return nil
		case 'C':
			ui.adjustCrossfade(CrossfadeStep)
			return nil
		case 'f', 'F':
			ui.toggleFavorite()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEnter:
		ui.playSelected()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seekBy(10 * time.Second)
		return nil
	case tcell.KeyLeft:
		ui.seekBy(-10 * time.Second)
		return nil
	}
	return event
}
