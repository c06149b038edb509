package ux

import (
	"github.com/charmbracelet/glamour"

	"binsleuth/internal/engine"
)

// RenderReport renders the terminal report with glamour, degrading to raw
// markdown when no renderer can be built (dumb terminals, pipes).
func RenderReport(report *engine.Report, width int) string {
	md := report.Markdown()
	if width <= 0 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
