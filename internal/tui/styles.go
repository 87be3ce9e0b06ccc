// Package tui renders the gateway's interactive terminal prompts.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.Color("#7C3AED") // violet
	colorSuccess = lipgloss.Color("#22C55E") // green
	colorError   = lipgloss.Color("#EF4444") // red
	colorMuted   = lipgloss.Color("#6B7280") // gray
	colorText    = lipgloss.Color("#CDD6F4") // light text
)

var (
	promptBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	detailStyle = lipgloss.NewStyle().
			Foreground(colorText)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	acceptedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	rejectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)
