package core

// TestStatus represents the outcome of one phase of a test (setup or body)
type TestStatus int

const (
	StatusPending TestStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Assertion failed (expected behavior didn't occur)
	StatusErrored                   // Unexpected error (infrastructure, install, session)
	StatusSkipped                   // Environment absent (no device) or previous phase failed
)

// String returns the string representation of TestStatus
func (s TestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s TestStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsFailure returns true for failed and errored phases
func (s TestStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusErrored
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryInstall                          // Bundle missing, malformed, or rejected by the device
	ErrCategoryResolution                       // Launcher activity could not be determined
	ErrCategoryEnvironment                      // No ready device; maps to skip, not failure
	ErrCategoryConnection                       // Automation server unreachable or session not live
	ErrCategoryConfig                           // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryInstall:
		return "install"
	case ErrCategoryResolution:
		return "resolution"
	case ErrCategoryEnvironment:
		return "environment"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
