// Package ui styles CLI output with ANSI 256-color codes.
package ui

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent    = 74  // blue
	colorCmd       = 250 // light gray
	colorMuted     = 245 // medium gray
	colorHighlight = 214 // orange
)

var noColor bool

func paint(code int, s string) string {
	if noColor || s == "" {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// Highlight colors every occurrence of the effective filter in text. Short
// filters match nothing and leave text unchanged.
func Highlight(text, filter string) string {
	f := model.EffectiveFilter(filter)
	if noColor || f == "" {
		return text
	}
	var b strings.Builder
	for {
		i := strings.Index(text, f)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		b.WriteString(paint(colorHighlight, f))
		text = text[i+len(f):]
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}
