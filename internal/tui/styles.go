package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette, in 256-color codes so it renders the same on most terminals.
const (
	colorAccent    = lipgloss.Color("62")
	colorMuted     = lipgloss.Color("240")
	colorHelp      = lipgloss.Color("241")
	colorRunning   = lipgloss.Color("220")
	colorDone      = lipgloss.Color("35")
	colorFailed    = lipgloss.Color("196")
	colorCancelled = lipgloss.Color("208")
	colorChoice    = lipgloss.Color("214")
)

func bordered(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}

var (
	StyleFocusedBorder   = bordered(colorAccent)
	StyleUnfocusedBorder = bordered(colorMuted)

	StyleStatusRunning   = lipgloss.NewStyle().Foreground(colorRunning).Bold(true)
	StyleStatusComplete  = lipgloss.NewStyle().Foreground(colorDone).Bold(true)
	StyleStatusFailed    = lipgloss.NewStyle().Foreground(colorFailed).Bold(true)
	StyleStatusCancelled = lipgloss.NewStyle().Foreground(colorCancelled)
	StyleStatusPending   = lipgloss.NewStyle().Foreground(colorMuted)

	StyleTitle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp      = lipgloss.NewStyle().Foreground(colorHelp)
	StyleUser      = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	StyleAssistant = lipgloss.NewStyle().Foreground(colorDone).Bold(true)
	StyleChoice    = lipgloss.NewStyle().Foreground(colorChoice)
	StyleSelected  = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
)
