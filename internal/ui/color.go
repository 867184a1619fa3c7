// Package ui provides terminal output helpers for storysync: colored
// status lines and the compact transfer tallies shown after a round.
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Styled print functions. Each returns its input wrapped in the
// corresponding ANSI style, or unchanged when colors are off.
var (
	// Success marks completed rounds and applied settings (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error marks failed rounds and per-item transfer errors (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning marks degraded states such as an unconfigured remote (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for neutral notices (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for emphasis.
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for device ids, timestamps, and other secondary detail.
	Dim = color.New(color.Faint).SprintFunc()
	// Header labels the sections of status output (bold cyan).
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Symbols prefixing status lines and transfer tallies.
const (
	SymbolSuccess  = "✓"
	SymbolError    = "✗"
	SymbolWarning  = "⚠"
	SymbolSkipped  = "-"
	SymbolUpload   = "↑"
	SymbolDownload = "↓"
)

// StatusSuccess returns a green checkmark, prefixing msg when given.
func StatusSuccess(msg string) string {
	return statusLine(Success, SymbolSuccess, msg)
}

// StatusError returns a red cross, prefixing msg when given.
func StatusError(msg string) string {
	return statusLine(Error, SymbolError, msg)
}

// StatusWarning returns a yellow warning sign, prefixing msg when given.
func StatusWarning(msg string) string {
	return statusLine(Warning, SymbolWarning, msg)
}

// StatusSkipped returns a dimmed dash, prefixing msg when given.
func StatusSkipped(msg string) string {
	return statusLine(Dim, SymbolSkipped, msg)
}

func statusLine(style func(...any) string, symbol, msg string) string {
	if msg == "" {
		return style(symbol)
	}
	return style(symbol) + " " + msg
}

// TransferCounts renders the per-category tally printed after a round,
// e.g. "↑2 ↓1 ✗0", dimmed as secondary detail.
func TransferCounts(uploaded, downloaded, deleted int) string {
	return Dim(fmt.Sprintf("%s%d %s%d %s%d",
		SymbolUpload, uploaded,
		SymbolDownload, downloaded,
		SymbolError, deleted,
	))
}

// DisableColors turns off all styling, for piped output or --no-color.
func DisableColors() {
	color.NoColor = true
}

// EnableColors turns styling back on.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled reports whether styling is currently on.
func IsColorEnabled() bool {
	return !color.NoColor
}
