// Package style provides the lipgloss styles and printing helpers for CLI output.
package style

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/torctl/internal/ui"
)

func init() {
	lipgloss.SetColorProfile(ui.ColorProfile())
}

var (
	// Success styles positive outcomes.
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)

	// Warning styles things that need attention.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)

	// Error styles failures.
	Error = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	// Info styles neutral highlights.
	Info = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)

// Output is where the Print helpers write. Tests swap it.
var Output io.Writer = os.Stdout

// PrintSuccess prints a line prefixed with a check mark.
func PrintSuccess(format string, args ...any) {
	fmt.Fprintf(Output, "%s %s\n", SuccessPrefix, fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning line to stderr.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// PrintError prints an error line to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorPrefix, fmt.Sprintf(format, args...))
}
