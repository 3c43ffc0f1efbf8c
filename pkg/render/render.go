// Package render is the markdown pipeline: glamour for the terminal and
// blackfriday for HTML export.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Renderer turns markdown into display text.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Plain returns markdown unchanged.
type Plain struct{}

// Render implements Renderer.
func (Plain) Render(markdown string) (string, error) {
	return markdown, nil
}

// DefaultWidth is the word-wrap width for terminal output.
const DefaultWidth = 80

// Terminal renders markdown with glamour.
type Terminal struct {
	style string
	r     *glamour.TermRenderer
}

// NewTerminal creates a glamour renderer for the named style ("dark" or
// "light"). An empty style is chosen from the terminal background.
func NewTerminal(style string, width int) (*Terminal, error) {
	if style == "" {
		style = DetectStyle()
	}
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("render: %s style: %w", style, err)
	}
	return &Terminal{style: style, r: r}, nil
}

// Style returns the glamour style name.
func (t *Terminal) Style() string { return t.style }

// Render implements Renderer. Surrounding blank lines added by glamour are
// trimmed so repeated re-renders keep a stable height.
func (t *Terminal) Render(markdown string) (string, error) {
	out, err := t.r.Render(markdown)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

// DetectStyle picks "dark" or "light" from the terminal background.
func DetectStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
