// Package cmdutils holds terminal output helpers shared by the CLI commands.
package cmdutils

import (
	"fmt"
	"io"
	"os"
)

const logo = "🔭"

// PrintResponse writes the guide's narration to stdout.
func PrintResponse(text string) {
	FprintResponse(os.Stdout, text)
}

// FprintResponse writes the guide's narration to w. Empty text prints nothing.
func FprintResponse(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "\n%s guide\n%s\n\n", logo, text)
}

// Mark renders a boolean as a check or a cross.
func Mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
