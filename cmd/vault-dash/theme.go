package main

import (
	"github.com/charmbracelet/lipgloss"

	"researchvault/pkg/protocol"
)

// Theme holds the dashboard palette. Mission statuses carry their own
// hues so the queue summary reads at a glance.
type Theme struct {
	Title  lipgloss.Color
	Accent lipgloss.Color
	Muted  lipgloss.Color
	Error  lipgloss.Color

	StatusOpen       lipgloss.Color
	StatusInProgress lipgloss.Color
	StatusDone       lipgloss.Color
	StatusBlocked    lipgloss.Color
}

// DefaultTheme returns the stock vault-dash palette.
func DefaultTheme() Theme {
	return Theme{
		Title:  lipgloss.Color("99"),  // violet
		Accent: lipgloss.Color("212"), // pink, matching the CLI headings
		Muted:  lipgloss.Color("240"), // gray
		Error:  lipgloss.Color("203"), // red

		StatusOpen:       lipgloss.Color("75"),  // blue
		StatusInProgress: lipgloss.Color("220"), // amber
		StatusDone:       lipgloss.Color("78"),  // green
		StatusBlocked:    lipgloss.Color("203"), // red
	}
}

// StatusColor maps a mission status to its hue; unknown statuses
// (cancelled and anything future) render muted.
func (t Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case protocol.MissionOpen:
		return t.StatusOpen
	case protocol.MissionInProgress:
		return t.StatusInProgress
	case protocol.MissionDone:
		return t.StatusDone
	case protocol.MissionBlocked:
		return t.StatusBlocked
	}
	return t.Muted
}
