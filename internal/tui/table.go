package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerCell = lipgloss.NewStyle().Bold(true).Foreground(colorPink).Padding(0, 1)
	cell       = lipgloss.NewStyle().Foreground(colorText).Padding(0, 1)
)

// Table renders rows under headers with the dialog border.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorSurface1)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// Heading renders a section title.
func Heading(s string) string { return titleStyle.Render(s) }

// Muted renders secondary text.
func Muted(s string) string { return hintStyle.Render(s) }

// Warn renders a warning line.
func Warn(s string) string { return warnStyle.Render(s) }
