package ui

import (
	"fmt"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorWarn   = 214 // orange
	colorError  = 203 // red
)

var categoryColors = map[model.Category]int{
	model.CategoryCollaboration: 114, // green
	model.CategoryCommunication: 180, // sand
	model.CategoryTechnical:     141, // purple
}

var noColor bool

func paint(code int, s string) string {
	if noColor {
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

// RenderWarn returns s in the warning color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

func RenderError(s string) string { return paint(colorError, s) }

// RenderCategory colors a category name by category.
func RenderCategory(c model.Category) string {
	code, ok := categoryColors[c]
	if !ok {
		return string(c)
	}
	return paint(code, string(c))
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
