// Package ux provides the live terminal viewer for an analysis session: a
// scrolling event log while the engine runs, and a rendered report when it
// terminates. It consumes the engine's event channel and never feeds back
// into the turn loop.
package ux

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#6c7a89")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorInfo    = lipgloss.Color("#2196F3")
)

// Styles groups the lipgloss styles used by the viewer.
type Styles struct {
	Title    lipgloss.Style
	Phase    map[string]lipgloss.Style
	Turn     lipgloss.Style
	Message  lipgloss.Style
	Status   lipgloss.Style
	Terminal lipgloss.Style
	Frame    lipgloss.Style
}

// DefaultStyles returns the viewer's default styling.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Phase: map[string]lipgloss.Style{
			"plan":     lipgloss.NewStyle().Foreground(colorInfo).Bold(true),
			"execute":  lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
			"observe":  lipgloss.NewStyle().Foreground(colorMuted).Bold(true),
			"critique": lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
			"nudge":    lipgloss.NewStyle().Foreground(colorError).Bold(true),
			"terminal": lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		},
		Turn:     lipgloss.NewStyle().Foreground(colorMuted),
		Message:  lipgloss.NewStyle(),
		Status:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Terminal: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Frame:    lipgloss.NewStyle().Padding(0, 1),
	}
}

func (s Styles) phase(name string) lipgloss.Style {
	if st, ok := s.Phase[name]; ok {
		return st
	}
	return lipgloss.NewStyle()
}
