package quadapk

import (
	"github.com/gookit/color"
)

// Global variables
var (
	Debug   bool
	Verbose bool
	Quiet   bool
	NoColor bool

	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

// stepf prints a highlighted pipeline step line.
func stepf(format string, args ...any) {
	if Quiet {
		return
	}
	colArrow.Print("-> ")
	colSuccess.Printf(format, args...)
}

// warnf prints a warning that survives --quiet.
func warnf(format string, args ...any) {
	colWarn.Printf(format, args...)
}
