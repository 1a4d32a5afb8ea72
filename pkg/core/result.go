package core

import (
	"errors"
	"time"
)

// PhaseResult captures the outcome of one lifecycle phase of a test
type PhaseResult struct {
	Status   TestStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"` // Technical error message
}

// NewPhaseResult builds a PhaseResult from the error returned by a phase.
func NewPhaseResult(err error, duration time.Duration) PhaseResult {
	r := PhaseResult{
		Status:   StatusFor(err),
		Duration: duration,
	}
	if err != nil {
		r.Error = err.Error()
		var ee *ExecutionError
		if errors.As(err, &ee) {
			r.Category = ee.Category
		}
	}
	return r
}

// TestResult captures the recorded outcome of setup and body for one test
type TestResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Phases
	Setup PhaseResult `json:"setup"`
	Call  PhaseResult `json:"call"`

	// Debug Artifacts
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Failed returns true if either setup or the test body failed.
func (r *TestResult) Failed() bool {
	return r.Setup.Status.IsFailure() || r.Call.Status.IsFailure()
}

// Status aggregates the phases into a single outcome
// Rules:
// - setup skipped → StatusSkipped (body never ran)
// - any failed/errored phase → that status (setup wins)
// - otherwise the body's status
func (r *TestResult) Status() TestStatus {
	if r.Setup.Status == StatusSkipped {
		return StatusSkipped
	}
	if r.Setup.Status.IsFailure() {
		return r.Setup.Status
	}
	return r.Call.Status
}

// SuiteResult captures the outcome of all tests run in one harness session
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"` // Unique execution ID (UUID)

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Tests []TestResult `json:"tests"`

	// Summary
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ComputeSummary calculates test counts from the Tests slice
func (s *SuiteResult) ComputeSummary() {
	s.Total = len(s.Tests)
	s.Passed = 0
	s.Failed = 0
	s.Skipped = 0

	for i := range s.Tests {
		switch s.Tests[i].Status() {
		case StatusPassed:
			s.Passed++
		case StatusFailed, StatusErrored:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
}

// Success returns true if no test failed and at least one test ran
func (s *SuiteResult) Success() bool {
	for i := range s.Tests {
		if s.Tests[i].Failed() {
			return false
		}
	}
	return len(s.Tests) > 0
}
