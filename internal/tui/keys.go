package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyEnter    = "enter"
	KeyEsc      = "esc"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyPane3    = "3"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeySettings = "ctrl+s"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(chatFocused bool) string {
	if chatFocused {
		return StyleHelp.Render("Enter: send | Tab: cycle focus | ctrl+s: settings | ctrl+c: quit")
	}
	return StyleHelp.Render("Tab: cycle focus | 1/2/3: jump to pane | j/k: select | ctrl+s: settings | q: quit")
}
