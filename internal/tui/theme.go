package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha subset.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	bodyStyle   = lipgloss.NewStyle().Foreground(colorText)
	hintStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	yesStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	noStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)
)
