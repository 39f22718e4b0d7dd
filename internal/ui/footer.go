package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/twindeck/internal/crossfade"
	"github.com/rivo/tview"
)

// StatusSource is the part of the crossfade controller the footer reads.
type StatusSource interface {
	IsPlaying() bool
	CurrentIndex() int
	Position() time.Duration
	Duration() time.Duration
	ActiveSlot() crossfade.Slot
	TransitionState() crossfade.TransitionState
	Progress() float64
	CrossfadeDuration() time.Duration
	ShuffleEnabled() bool
}

type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StatePlaying
	StatePaused
	StateCrossfading
)

func playbackState(src StatusSource) PlaybackState {
	switch {
	case src == nil || src.CurrentIndex() < 0:
		return StateIdle
	case src.TransitionState() == crossfade.StateTransitioning:
		return StateCrossfading
	case src.IsPlaying():
		return StatePlaying
	default:
		return StatePaused
	}
}

type StatusRenderer struct {
	source        StatusSource
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer(src StatusSource) *StatusRenderer {
	return &StatusRenderer{
		source:        src,
		maxAnimFrame:  4,
		ticksPerFrame: 8, // Slow down animation (8 ticks per frame)
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	switch playbackState(s.source) {
	case StatePlaying:
		return s.renderPlaying()
	case StatePaused:
		return s.renderPaused()
	case StateCrossfading:
		return s.renderCrossfading()
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a track"
	}
	return "○ IDLE │ Select a track"
}

func (s *StatusRenderer) colored(text string) string {
	if s.primaryColor == "" {
		return text
	}
	return fmt.Sprintf("[%s]%s[-]", s.primaryColor, text)
}

// tail holds the parts shared by every non-idle state.
func (s *StatusRenderer) tail(parts []string) []string {
	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	parts = append(parts, crossfadeLabel(s.source.CrossfadeDuration()))
	if s.source.ShuffleEnabled() {
		parts = append(parts, "SHUF")
	}
	return parts
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	parts := []string{
		s.colored(dots[s.animFrame]) + " PLAYING " + s.source.ActiveSlot().String(),
		formatDuration(s.source.Position()) + "/" + formatDuration(s.source.Duration()),
	}
	return joinParts(s.tail(parts))
}

func (s *StatusRenderer) renderPaused() string {
	parts := []string{
		PauseIcon + " PAUSED " + s.source.ActiveSlot().String(),
		formatDuration(s.source.Position()) + "/" + formatDuration(s.source.Duration()),
	}
	return joinParts(s.tail(parts))
}

func (s *StatusRenderer) renderCrossfading() string {
	from := s.source.ActiveSlot()
	progress := s.source.Progress()
	parts := []string{
		s.colored("⇄") + fmt.Sprintf(" %s→%s", from, from.Other()),
		formatMeter(int(progress * 100)),
	}
	return joinParts(s.tail(parts))
}

func crossfadeLabel(d time.Duration) string {
	if d <= 0 {
		return "XF off"
	}
	return fmt.Sprintf("XF %ds", int(d/time.Second))
}

// formatMeter draws percent as five rising bars.
func formatMeter(percent int) string {
	signalBars := []string{"▁", "▂", "▃", "▅", "▇"}
	const numBars = 5

	filled := min(max((percent*numBars)/100, 0), numBars)

	var bar strings.Builder
	for i := 0; i < numBars; i++ {
		if i < filled {
			bar.WriteString(signalBars[i])
		} else {
			bar.WriteString("▁")
		}
	}
	return bar.String()
}

// formatDuration renders mm:ss, or h:mm:ss past an hour. Unknown lengths
// show as --:--.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// renderTrackBar draws playback position as a fixed-width bar.
func renderTrackBar(position, duration time.Duration) string {
	const width = 20
	if duration <= 0 {
		return strings.Repeat("─", width)
	}
	filled := min(max(int(int64(position)*width/int64(duration)), 0), width)
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// renderCrossfadeBar draws crossfade progress in [0, 1].
func renderCrossfadeBar(progress float64) string {
	const width = 10
	filled := min(max(int(progress*width), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch playbackState(ui.controller) {
	case StatePaused:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] resume", keyColor, keyColor)
	case StatePlaying, StateCrossfading:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] pause  [%s]n/p[-] skip", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Space[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	ui.mu.Lock()
	muted := ui.volume.muted
	ui.mu.Unlock()

	muteText := "mute"
	if muted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]+/-[-] vol  [%s]c/C[-] fade  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fill(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fill(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fill(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fill(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fill(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		if isWide {
			ui.drawWideFooter(screen, x, y, width, min(height, FooterHeightWide), helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
