package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/daviddao/worklog/pkg/model"
)

// Adaptive status colors; plain text is used when stdout is not a
// terminal, so piped output stays grep-friendly.
var (
	colorActive = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
	colorDone   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorPaused = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
)

var statusStyles = map[model.Status]lipgloss.Style{
	model.StatusReady:      lipgloss.NewStyle().Foreground(colorMuted),
	model.StatusInProgress: lipgloss.NewStyle().Foreground(colorActive),
	model.StatusBlocked:    lipgloss.NewStyle().Foreground(colorPaused),
	model.StatusWaiting:    lipgloss.NewStyle().Foreground(colorPaused),
	model.StatusDone:       lipgloss.NewStyle().Foreground(colorDone),
}

var mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)

// statusGlyph is a short text indicator, readable with and without color.
func statusGlyph(st model.Status) string {
	switch st {
	case model.StatusReady:
		return "[ ]"
	case model.StatusInProgress:
		return "[>]"
	case model.StatusBlocked:
		return "[!]"
	case model.StatusWaiting:
		return "[~]"
	case model.StatusDone:
		return "[x]"
	default:
		return "[?]"
	}
}

func styledOut() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func renderStatus(st model.Status) string {
	if !styledOut() {
		return string(st)
	}
	if style, ok := statusStyles[st]; ok {
		return style.Render(string(st))
	}
	return string(st)
}

func renderMuted(s string) string {
	if !styledOut() {
		return s
	}
	return mutedStyle.Render(s)
}
