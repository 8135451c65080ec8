// Package ui decides how torctl output is decorated for the current terminal.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor determines if ANSI color codes should be used.
// Respects NO_COLOR (https://no-color.org/), CLICOLOR, and CLICOLOR_FORCE conventions.
func ShouldUseColor() bool {
	// any NO_COLOR value disables color
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal()
}

// ColorProfile is the termenv profile matching ShouldUseColor.
func ColorProfile() termenv.Profile {
	if !ShouldUseColor() {
		return termenv.Ascii
	}
	if p := termenv.EnvColorProfile(); p != termenv.Ascii {
		return p
	}
	// forced color on a non-TTY
	return termenv.ANSI
}
