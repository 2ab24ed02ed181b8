package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorRed    = lipgloss.Color("#ff5555")
	colorGray   = lipgloss.Color("#6272a4")
	colorPurple = lipgloss.Color("#bd93f9")
)

// outputStyles renders CLI output. The zero value renders plain text.
type outputStyles struct {
	enabled bool

	header    lipgloss.Style
	completed lipgloss.Style
	cancelled lipgloss.Style
	timedOut  lipgloss.Style
	muted     lipgloss.Style
}

func newOutputStyles(enabled bool) outputStyles {
	if !enabled {
		return outputStyles{}
	}
	return outputStyles{
		enabled:   true,
		header:    lipgloss.NewStyle().Bold(true).Foreground(colorPurple),
		completed: lipgloss.NewStyle().Bold(true).Foreground(colorGreen),
		cancelled: lipgloss.NewStyle().Bold(true).Foreground(colorYellow),
		timedOut:  lipgloss.NewStyle().Bold(true).Foreground(colorRed),
		muted:     lipgloss.NewStyle().Foreground(colorGray),
	}
}

// stylesFor enables styling only when w is an interactive terminal.
func stylesFor(w io.Writer) outputStyles {
	f, ok := w.(*os.File)
	return newOutputStyles(ok && term.IsTerminal(int(f.Fd())))
}

func (s outputStyles) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

func (s outputStyles) Header(text string) string { return s.render(s.header, text) }
func (s outputStyles) Muted(text string) string  { return s.render(s.muted, text) }

// State colors a final attempt state.
func (s outputStyles) State(state string) string {
	switch state {
	case "COMPLETED":
		return s.render(s.completed, state)
	case "CANCELLED":
		return s.render(s.cancelled, state)
	case "TIMED_OUT":
		return s.render(s.timedOut, state)
	default:
		return state
	}
}
