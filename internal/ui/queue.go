package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/twindeck/internal/config"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxTitleWidth = 40

func (ui *UI) queueTitle() string {
	title := fmt.Sprintf("Queue (%d)", ui.controller.Len())
	if ui.controller.ShuffleEnabled() {
		title += " • shuffle"
	}
	return title
}

func (ui *UI) headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(ui.colors.queueHeaderForeground).
		SetBackgroundColor(ui.colors.queueHeaderBackground).
		SetSelectable(false)
}

func (ui *UI) createQueueTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(ui.queueTitle()).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	table.SetCell(0, 0, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 1, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 2, ui.headerCell("Title").SetExpansion(2))
	table.SetCell(0, 3, ui.headerCell("Artist").SetExpansion(1))
	table.SetCell(0, 4, ui.headerCell("Album").SetExpansion(1))
	table.SetCell(0, 5, ui.headerCell("Length").SetAlign(tview.AlignRight))

	items := ui.controller.Items()
	for i, item := range items {
		ui.setQueueRow(table, i+1, i, item)
	}

	// Track selected item ID for preserving selection after refresh
	table.SetSelectionChangedFunc(func(row, column int) {
		items := ui.controller.Items()
		if row > 0 && row <= len(items) {
			ui.selectedItemID = items[row-1].ID
		}
	})

	return table
}

func (ui *UI) setQueueRow(table *tview.Table, row int, index int, item media.Item) {
	favIcon := " "
	if ui.config.IsFavorite(item.ID) {
		favIcon = "★"
	}
	table.SetCell(row, 0, tview.NewTableCell(favIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	playIcon := " "
	if index == ui.playingIndex {
		if ui.controller.IsPlaying() {
			playIcon = "➤"
		} else {
			playIcon = PauseIcon
		}
	}
	table.SetCell(row, 1, tview.NewTableCell(playIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	title := item.Title
	if title == "" {
		title = item.DisplayName()
	}
	table.SetCell(row, 2, tview.NewTableCell(tview.Escape(title)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxTitleWidth).
		SetExpansion(2))

	table.SetCell(row, 3, tview.NewTableCell(tview.Escape(item.Artist)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(27).
		SetExpansion(1))

	table.SetCell(row, 4, tview.NewTableCell(tview.Escape(item.Album)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(27).
		SetExpansion(1))

	table.SetCell(row, 5, tview.NewTableCell(formatDuration(item.Duration)).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

// refreshQueueTable redraws every row after the queue changed shape.
func (ui *UI) refreshQueueTable() {
	items := ui.controller.Items()

	ui.playingIndex = ui.controller.CurrentIndex()
	if ui.playingIndex >= 0 && ui.playingIndex < len(items) {
		ui.playingItemID = items[ui.playingIndex].ID
	}

	for row := ui.queueList.GetRowCount() - 1; row > len(items); row-- {
		ui.queueList.RemoveRow(row)
	}
	for i, item := range items {
		ui.setQueueRow(ui.queueList, i+1, i, item)
	}

	if ui.selectedItemID != "" {
		for i, item := range items {
			if item.ID == ui.selectedItemID {
				ui.queueList.Select(i+1, 0)
				break
			}
		}
	}

	ui.queueList.SetTitle(ui.queueTitle())

	log.Debug().Int("count", len(items)).Msg("Queue table refreshed")
}

func (ui *UI) selectRow(index int) {
	if index < 0 || index >= ui.controller.Len() {
		return
	}
	ui.queueList.Select(index+1, 0)
}

func (ui *UI) selectedIndex() int {
	row, _ := ui.queueList.GetSelection()
	if row <= 0 || row > ui.controller.Len() {
		return -1
	}
	return row - 1
}

func (ui *UI) playSelected() {
	index := ui.selectedIndex()
	if index < 0 {
		return
	}
	log.Info().Msgf("Starting playback at queue index %d", index)
	ui.runTransport("play", func() error {
		if err := ui.controller.SeekToItem(index, 0); err != nil {
			return err
		}
		return ui.controller.Play()
	})
}

func (ui *UI) nextItem() {
	ui.runTransport("next", func() error {
		ok, err := ui.controller.Next()
		if err != nil {
			return err
		}
		if !ok {
			log.Debug().Msg("Already at the last item")
			return nil
		}
		ui.app.QueueUpdateDraw(func() {
			ui.selectRow(ui.controller.CurrentIndex())
		})
		return nil
	})
}

func (ui *UI) prevItem() {
	ui.runTransport("previous", func() error {
		if err := ui.controller.Previous(); err != nil {
			return err
		}
		ui.app.QueueUpdateDraw(func() {
			ui.selectRow(ui.controller.CurrentIndex())
		})
		return nil
	})
}

func (ui *UI) seekBy(delta time.Duration) {
	if ui.controller.CurrentIndex() < 0 {
		return
	}
	target := max(ui.controller.Position()+delta, 0)
	if d := ui.controller.Duration(); d > 0 && target > d {
		target = d
	}
	ui.runTransport("seek", func() error {
		return ui.controller.Seek(target)
	})
}

func (ui *UI) toggleShuffle() {
	enabled := !ui.controller.ShuffleEnabled()
	ui.runTransport("shuffle", func() error {
		if err := ui.controller.SetShuffle(enabled); err != nil {
			return err
		}
		ui.app.QueueUpdateDraw(func() {
			ui.refreshQueueTable()
			ui.selectRow(ui.controller.CurrentIndex())
		})
		ui.SaveConfig()
		return nil
	})
	log.Debug().Bool("shuffle", enabled).Msg("Toggled shuffle")
}

func (ui *UI) adjustCrossfade(deltaSeconds int) {
	current := int(ui.controller.CrossfadeDuration() / time.Second)
	seconds := config.ClampCrossfade(current + deltaSeconds)
	if seconds == current {
		return
	}
	ui.controller.SetCrossfadeDuration(time.Duration(seconds) * time.Second)
	ui.updateNowPlaying()
	ui.SaveConfig()
	log.Debug().Msgf("Crossfade adjusted to %ds", seconds)
}

func (ui *UI) toggleFavorite() {
	index := ui.selectedIndex()
	if index < 0 {
		return
	}
	items := ui.controller.Items()
	if index >= len(items) {
		return
	}
	item := items[index]

	ui.config.ToggleFavorite(item.ID)

	if favCell := ui.queueList.GetCell(index+1, 0); favCell != nil {
		if ui.config.IsFavorite(item.ID) {
			favCell.SetText("★")
		} else {
			favCell.SetText(" ")
		}
	}

	go func() {
		if err := ui.config.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
		}
	}()

	log.Debug().Msgf("Toggled favorite for: %s", item.DisplayName())
}

// updatePlayingIndicator follows the active deck's current item, which moves
// on its own when a crossfade completes.
func (ui *UI) updatePlayingIndicator() {
	items := ui.controller.Items()
	current := ui.controller.CurrentIndex()

	if current != ui.playingIndex {
		previous, previousID := ui.playingIndex, ui.playingItemID
		ui.playingIndex = current
		if previous >= 0 && previous < len(items) {
			ui.setQueueRow(ui.queueList, previous+1, previous, items[previous])
		}
		if current >= 0 && current < len(items) {
			ui.playingItemID = items[current].ID
			// The cursor follows playback unless the user moved it elsewhere.
			if ui.selectedItemID == "" || ui.selectedItemID == previousID {
				ui.selectRow(current)
			}
		}
	}

	if current < 0 || current >= len(items) {
		return
	}

	row := current + 1
	playing := ui.controller.IsPlaying()

	if playCell := ui.queueList.GetCell(row, 1); playCell != nil {
		if playing {
			playCell.SetText("➤")
		} else {
			playCell.SetText(PauseIcon)
		}
	}

	nameCell := ui.queueList.GetCell(row, 2)
	if nameCell == nil {
		return
	}

	name := items[current].Title
	if name == "" {
		name = items[current].DisplayName()
	}
	if !playing {
		nameCell.SetText(tview.Escape(name))
		return
	}

	indicator := ui.getPlayingIndicator()
	nameCell.SetText(tview.Escape(truncate(name, maxTitleWidth-len([]rune(indicator))-1)) + " " + indicator)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit < 4 || len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// syncQueue compares the queue with a freshly loaded library. It returns the
// queue indices whose items left the library, ascending, and the library
// items missing from the queue, in library order.
func syncQueue(queue, lib []media.Item) (removed []int, added []media.Item) {
	inLibrary := make(map[string]bool, len(lib))
	for _, it := range lib {
		inLibrary[it.ID] = true
	}
	inQueue := make(map[string]bool, len(queue))
	for i, it := range queue {
		inQueue[it.ID] = true
		if !inLibrary[it.ID] {
			removed = append(removed, i)
		}
	}
	for _, it := range lib {
		if !inQueue[it.ID] {
			added = append(added, it)
		}
	}
	return removed, added
}
