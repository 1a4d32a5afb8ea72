package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: invalid_bundle, device_not_ready, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context ("output" holds raw command output)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if out := e.Output(); out != "" {
		msg = fmt.Sprintf("%s\n%s", msg, out)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Output returns the raw diagnostic output attached to the error, if any.
func (e *ExecutionError) Output() string {
	out, _ := e.Details[DetailOutput].(string)
	return strings.TrimSpace(out)
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// WithOutput returns a copy of the error carrying raw command output.
func (e *ExecutionError) WithOutput(output string) *ExecutionError {
	return e.WithDetails(map[string]interface{}{DetailOutput: output})
}

// Detail keys
const (
	DetailOutput   = "output"
	DetailPath     = "path"
	DetailPackage  = "package"
	DetailAttempts = "attempts"
)

// Error codes
const (
	CodeMissingArtifact            = "missing_artifact"
	CodeInvalidBundle              = "invalid_bundle"
	CodeInstallCommandFailed       = "install_command_failed"
	CodeActivityNotResolvable      = "activity_not_resolvable"
	CodeDeviceNotReady             = "device_not_ready"
	CodeSessionEstablishmentFailed = "session_establishment_failed"
	CodeInvalidConfig              = "invalid_config"
)

// Predefined errors
var (
	// Install errors
	ErrMissingArtifact = &ExecutionError{
		Category: ErrCategoryInstall,
		Code:     CodeMissingArtifact,
		Message:  "application artifact not found",
	}
	ErrInvalidBundle = &ExecutionError{
		Category: ErrCategoryInstall,
		Code:     CodeInvalidBundle,
		Message:  "no installable parts found",
	}
	ErrInstallCommandFailed = &ExecutionError{
		Category: ErrCategoryInstall,
		Code:     CodeInstallCommandFailed,
		Message:  "install command failed",
	}

	// Resolution errors
	ErrActivityNotResolvable = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     CodeActivityNotResolvable,
		Message:  "launcher activity could not be resolved",
	}

	// Environment errors
	ErrDeviceNotReady = &ExecutionError{
		Category: ErrCategoryEnvironment,
		Code:     CodeDeviceNotReady,
		Message:  "no ready device",
	}

	// Connection errors
	ErrSessionEstablishmentFailed = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     CodeSessionEstablishmentFailed,
		Message:  "could not establish automation session",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     CodeInvalidConfig,
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// IsCode reports whether err, or anything it wraps, is an ExecutionError with code.
func IsCode(err error, code string) bool {
	var ee *ExecutionError
	for err != nil {
		if !errors.As(err, &ee) {
			return false
		}
		if ee.Code == code {
			return true
		}
		err = ee.Cause
	}
	return false
}

// IsSkip reports whether err means the environment is absent rather than broken.
func IsSkip(err error) bool {
	return IsCode(err, CodeDeviceNotReady)
}

// StatusFor maps a phase error to the status it should be recorded with.
func StatusFor(err error) TestStatus {
	switch {
	case err == nil:
		return StatusPassed
	case IsSkip(err):
		return StatusSkipped
	default:
		var ee *ExecutionError
		if errors.As(err, &ee) {
			return StatusErrored
		}
		return StatusFailed
	}
}

// Discard is the single boundary where best-effort errors (teardown, artifact
// capture) are logged and dropped. It never returns anything to the caller.
func Discard(op string, err error) {
	if err == nil {
		return
	}
	logger.Warn("%s failed (ignored): %v", op, err)
}
