// Package printer renders CLI output. Colors are forced on unless the user
// sets NO_COLOR, so piped output stays readable either way.
package printer

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func init() {
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// Success prints a success line in green.
func Success(format string, a ...any) {
	green.Printf("✓ "+format+"\n", a...)
}

// Info prints an informational line in the default color.
func Info(format string, a ...any) {
	fmt.Printf(format+"\n", a...)
}

// Warning prints a warning line in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("! "+format+"\n", a...)
}

// Failure prints an error line in red to stderr and returns a plain error
// for cobra to propagate as the exit status.
func Failure(format string, a ...any) error {
	message := fmt.Sprintf(format, a...)
	red.Fprintf(os.Stderr, "✗ %s\n", message)
	return fmt.Errorf("%s", message)
}
