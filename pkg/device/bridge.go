package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"

	sh "github.com/codeskyblue/go-sh"

	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// Runner executes device-bridge commands. Stdout is the only data channel;
// a nonzero exit is reported as a *CommandError.
type Runner interface {
	Run(args ...string) (string, error)
}

// CommandError is returned when a bridge command exits nonzero or times out.
type CommandError struct {
	Args   []string
	Err    error
	Stdout string
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("adb %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output())
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output returns the diagnostic text of the failed command, stderr first.
func (e *CommandError) Output() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(e.Stdout)
}

// Bridge runs adb as a subprocess.
type Bridge struct {
	adbPath string
	timeout time.Duration
}

// NewBridge creates a Bridge. An empty adbPath is looked up on PATH; a zero
// timeout lets commands run unbounded.
func NewBridge(adbPath string, timeout time.Duration) (*Bridge, error) {
	if adbPath == "" {
		var err error
		if adbPath, err = FindADB(); err != nil {
			return nil, err
		}
	}
	return &Bridge{adbPath: adbPath, timeout: timeout}, nil
}

// Run executes adb with args and returns its stdout.
func (b *Bridge) Run(args ...string) (string, error) {
	session := sh.NewSession()
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if b.timeout > 0 {
		session.SetTimeout(b.timeout)
	}

	cmdArgs := make([]interface{}, len(args))
	for i, a := range args {
		cmdArgs[i] = a
	}

	logger.Debug("adb %s", strings.Join(args, " "))
	if err := session.Command(b.adbPath, cmdArgs...).Run(); err != nil {
		return "", &CommandError{
			Args:   args,
			Err:    err,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}

	return stdout.String(), nil
}

// FindADB locates the ADB binary.
func FindADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
