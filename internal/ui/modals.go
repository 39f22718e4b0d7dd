package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/twindeck/internal/config"
	"github.com/rivo/tview"
)

const (
	modalPage      = "modal"
	errorModalPage = "error-modal"
	maxErrorLength = 100
)

// errorHints maps fragments of low-level error text to what the user sees.
// The first match wins.
var errorHints = []struct {
	fragments []string
	message   string
}{
	{[]string{"no such host"}, "Unable to connect to server.\nPlease check your internet connection."},
	{[]string{"connection refused"}, "Connection refused by server.\nThe service may be temporarily unavailable."},
	{[]string{"timeout", "deadline exceeded"}, "Connection timed out.\nPlease check your internet connection."},
	{[]string{"network is unreachable", "network read error"}, "Network is unreachable.\nPlease check your internet connection."},
	{[]string{"status 401"}, "Access denied (401)."},
	{[]string{"status 403"}, "Access forbidden (403)."},
	{[]string{"status 404"}, "Track not found (404)."},
	{[]string{"no decoder"}, "Unsupported audio format."},
	{[]string{"no such file or directory"}, "Audio file is missing.\nIt may have been moved or deleted."},
	{[]string{"engine queue is empty"}, "The queue is empty.\nPick a track first."},
	{[]string{"controller released", "engine released"}, "Playback has shut down."},
}

func friendlyErrorMessage(errStr string) string {
	for _, hint := range errorHints {
		for _, fragment := range hint.fragments {
			if strings.Contains(errStr, fragment) {
				return hint.message
			}
		}
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > maxErrorLength {
		return errStr[:maxErrorLength] + "..."
	}
	return errStr
}

// modalLayout describes one centered dialog.
type modalLayout struct {
	page        string
	title       string
	body        string
	align       int
	hint        string
	border      tcell.Color
	width       int
	height      int
	framePad    int
	spaceBefore int
	// onKey handles a key; returning false closes the dialog.
	onKey func(event *tcell.EventKey) bool
}

func (ui *UI) closeModal(page string) {
	ui.pages.RemovePage(page)
	ui.app.SetFocus(ui.queueList)
}

func (ui *UI) openModal(m modalLayout) {
	body := tview.NewTextView().
		SetTextAlign(m.align).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + m.body)
	body.SetTextColor(ui.colors.foreground)
	body.SetBackgroundColor(ui.colors.modalBackground)

	hint := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]" + m.hint + "[::-]")
	hint.SetTextColor(tcell.ColorDarkGray)
	hint.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(nil, m.spaceBefore, 0, false).
		AddItem(hint, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(m.framePad, 0, 1, 1, 1+m.framePad, 1+m.framePad)
	frame.SetBorder(true).
		SetBorderColor(m.border).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + m.title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	modal := centered(frame, m.width, m.height)
	modal.SetBackgroundColor(ui.colors.background)
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if m.onKey == nil || !m.onKey(event) {
			ui.closeModal(m.page)
		}
		return nil
	})

	ui.pages.AddPage(m.page, modal, true, true)
	ui.app.SetFocus(modal)
}

func centered(p tview.Primitive, width, height int) *tview.Flex {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
}

func (ui *UI) showError(err error) {
	ui.showPlaybackErrorModal(friendlyErrorMessage(err.Error()))
}

func (ui *UI) showPlaybackErrorModal(message string) {
	lines := strings.Count(message, "\n") + 1
	ui.openModal(modalLayout{
		page:   errorModalPage,
		title:  "Error",
		body:   fmt.Sprintf("[::b]Playback Error[::-]\n\n%s", message),
		align:  tview.AlignCenter,
		hint:   "Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss",
		border: ui.colors.highlight,
		width:  50,
		height: min(10+max(lines-2, 0), 15),
		onKey: func(event *tcell.EventKey) bool {
			switch {
			case event.Key() == tcell.KeyEscape, event.Key() == tcell.KeyEnter:
				return false
			case event.Key() == tcell.KeyRune && (event.Rune() == 'r' || event.Rune() == 'R'):
				ui.closeModal(errorModalPage)
				ui.runTransport("play", ui.controller.Play)
			}
			return true
		},
	})
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()
	configPath, _ := config.GetConfigPath()

	section := func(title string, rows ...[2]string) string {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]%s[-]\n", keyColor, title)
		for _, r := range rows {
			fmt.Fprintf(&b, "  [%s]%-9s[-]  %s\n", keyColor, r[0], r[1])
		}
		return b.String()
	}

	helpText := "[::b]KEYBOARD SHORTCUTS[::-]\n\n" +
		section("PLAYBACK",
			[2]string{"Enter", "Play selected track"},
			[2]string{"Space", "Pause / Resume"},
			[2]string{"n / p", "Next / Previous track"},
			[2]string{"← / →", "Seek 10s"},
			[2]string{"x", "Stop"},
			[2]string{"s", "Shuffle on / off"},
		) + "\n" +
		section("CROSSFADE",
			[2]string{"c / C", "Shorter / Longer by 1s"},
		) + "\n" +
		section("VOLUME",
			[2]string{"+ / -", "Volume up / down"},
			[2]string{"m", "Mute / Unmute"},
		) + "\n" +
		section("QUEUE",
			[2]string{"↑ / ↓", "Navigate list"},
			[2]string{"f", "Toggle favorite"},
		) + "\n" +
		section("APPLICATION",
			[2]string{"?", "Show this help"},
			[2]string{"a", "About " + config.AppName},
			[2]string{"q / Esc", "Quit"},
		) + fmt.Sprintf("\n[%s]CONFIG[-]: %s", keyColor, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	rows := [][2]string{
		{"Version", config.AppVersion},
		{"Project", fmt.Sprintf("[skyblue:::%s]%s[-:::-]", config.AppProjectURL, config.AppProjectShort)},
		{"Crossfade", crossfadeLabel(ui.controller.CrossfadeDuration())},
		{"Shuffle", onOff(ui.controller.ShuffleEnabled())},
		{"License", "MIT"},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-]\n[gray]%s[-]\n\n", config.AppName, config.AppTagline)
	for _, r := range rows {
		fmt.Fprintf(&b, "%-10s %s\n", r[0]+":", r[1])
	}
	fmt.Fprintf(&b, "\n%s\n\n[gray]%s[-]", strings.Repeat("─", 43), config.AppDescription)

	ui.openModal(modalLayout{
		page:        modalPage,
		title:       "About",
		body:        b.String(),
		align:       tview.AlignLeft,
		hint:        "Press any key to close",
		border:      ui.colors.borders,
		width:       50,
		height:      20,
		framePad:    1,
		spaceBefore: 2,
	})
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (ui *UI) showInfoModal(title, message string) {
	lines := strings.Count(message, "\n") + 1
	ui.openModal(modalLayout{
		page:        modalPage,
		title:       title,
		body:        message,
		align:       tview.AlignLeft,
		hint:        "Press any key to close",
		border:      ui.colors.borders,
		width:       45,
		height:      min(lines+10, 38),
		framePad:    1,
		spaceBefore: 2,
	})
}

// showInitialErrorScreen replaces the whole screen; there is no queue to go
// back to yet.
func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("[::b]%s[::-]\n\n%s", title, message))
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	keys := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	keys.SetTextColor(ui.colors.foreground)
	keys.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Library Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(centered(frame, 60, 10), 0, 1, true).
		AddItem(keys, 2, 0, false)
	layout.SetBackgroundColor(ui.colors.background)

	call := func(fn func()) *tcell.EventKey {
		if fn != nil {
			fn()
		}
		return nil
	}
	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			return call(onQuit)
		}
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'r', 'R':
			return call(onRetry)
		case 'q', 'Q':
			return call(onQuit)
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	retry := func() {
		ui.app.SetRoot(ui.loadingScreen, true)
		go func() {
			if err := ui.loadLibraryAndInitUI(); err != nil {
				ui.app.QueueUpdateDraw(func() {
					ui.handleInitialError(err)
				})
			}
		}()
	}

	ui.showInitialErrorScreen("Unable to Load Library", friendlyErrorMessage(err.Error()), retry, ui.app.Stop)
}
