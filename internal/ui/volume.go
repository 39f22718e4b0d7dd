package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/twindeck/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeState is the master volume as the user sees it. While muted, saved
// holds the level to come back to.
type volumeState struct {
	level int
	saved int
	muted bool
}

func newVolumeState(level int) volumeState {
	level = config.ClampVolume(level)
	return volumeState{level: level, saved: level}
}

func (v *volumeState) unmute() int {
	v.muted = false
	v.level = v.saved
	return v.level
}

// adjust moves the level by delta. Any adjustment while muted unmutes first.
func (v *volumeState) adjust(delta int) int {
	if v.muted {
		return v.unmute()
	}
	v.level = config.ClampVolume(v.level + delta)
	return v.level
}

func (v *volumeState) toggleMute() int {
	if v.muted {
		return v.unmute()
	}
	v.saved = v.level
	if v.saved == 0 {
		v.saved = config.DefaultVolume
	}
	v.level = 0
	v.muted = true
	return 0
}

// persisted is the level worth saving: muting is not remembered across runs.
func (v volumeState) persisted() int {
	if v.muted {
		return v.saved
	}
	return v.level
}

func barLines(volume int) (filled, empty int) {
	filled = (config.ClampVolume(volume) * volumeBarHeight) / 100
	return filled, volumeBarHeight - filled
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	ui.mu.Lock()
	displayVolume := ui.volume.persisted()
	isMuted := ui.volume.muted
	ui.mu.Unlock()

	filledLines, emptyLines := barLines(displayVolume)

	barColor := ui.colors.highlight
	if isMuted {
		barColor = config.GetColor(ui.config.Theme.MutedVolume)
	}

	createText := func(text string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	createBarLine := func(barText string, color tcell.Color, showPercent bool) *tview.Flex {
		line := tview.NewFlex().SetDirection(tview.FlexColumn)
		line.SetBackgroundColor(ui.colors.background)

		label := createText("    ", ui.colors.foreground)
		if showPercent {
			label = createText(fmt.Sprintf("%d%%", displayVolume), barColor)
			if isMuted {
				label.SetTextStyle(tcell.StyleDefault.
					Foreground(barColor).
					Background(ui.colors.background).
					Attributes(tcell.AttrStrikeThrough))
			}
		}
		line.AddItem(label, 4, 0, false)
		line.AddItem(createText(barText, color), 0, 1, false)
		return line
	}

	container.AddItem(createText("   max", ui.colors.foreground), 1, 0, false)
	for i := 0; i < emptyLines; i++ {
		container.AddItem(createBarLine(" ░░", ui.colors.foreground, false), 1, 0, false)
	}
	for i := 0; i < filledLines; i++ {
		container.AddItem(createBarLine(" ██", barColor, i == 0), 1, 0, false)
	}
	container.AddItem(createText("   min", ui.colors.foreground), 1, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) applyVolume(level int, muted bool) {
	ui.statusRenderer.SetMuted(muted)
	ui.output.SetVolume(level)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	level := ui.volume.adjust(delta)
	muted := ui.volume.muted
	ui.mu.Unlock()

	ui.applyVolume(level, muted)
	log.Debug().Msgf("Volume adjusted to %d%%", level)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	level := ui.volume.toggleMute()
	muted := ui.volume.muted
	ui.mu.Unlock()

	ui.applyVolume(level, muted)
	log.Debug().Bool("muted", muted).Msgf("Output level %d%%", level)
}
