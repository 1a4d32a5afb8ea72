package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// Exit codes
const (
	exitFailure = 1
	exitSkipped = 3
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// printSetupStep prints a setup step in progress
func printSetupStep(msg string) {
	fmt.Printf("  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

// printSetupSuccess prints a success message for setup
func printSetupSuccess(msg string) {
	fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

func printSetupFailure(msg string) {
	fmt.Printf("  %s✗%s %s\n", color(colorRed), color(colorReset), msg)
}

func printSetupSkipped(msg string) {
	fmt.Printf("  %s⚠%s %s\n", color(colorYellow), color(colorReset), msg)
}

func printResult(r core.TestResult) {
	status := r.Status()
	switch status {
	case core.StatusPassed:
		printSetupSuccess(fmt.Sprintf("%s (%s)", r.Name, r.Duration.Round(time.Millisecond)))
	case core.StatusSkipped:
		printSetupSkipped(fmt.Sprintf("%s skipped", r.Name))
	default:
		msg := r.Call.Error
		if msg == "" {
			msg = r.Setup.Error
		}
		printSetupFailure(fmt.Sprintf("%s %s: %s", r.Name, status, msg))
	}
	for _, att := range r.Attachments {
		fmt.Printf("      %s: %s\n", att.Name, att.Path)
	}
}

// failWith converts err into a cli exit error, keeping "no device" apart
// from real failures.
func failWith(err error) error {
	if core.IsSkip(err) {
		return cli.Exit(fmt.Sprintf("skipped: %v", err), exitSkipped)
	}
	return cli.Exit(err.Error(), exitFailure)
}

func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitFailure
}
