package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/session"
)

// TB is the part of testing.TB the harness drives.
type TB interface {
	Helper()
	Name() string
	Failed() bool
	Skip(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// ErrLaunchMismatch is returned by LaunchCheck when the foreground activity
// matches none of the expected markers.
var ErrLaunchMismatch = errors.New("foreground activity does not match any launch marker")

// Run executes body as the test t against the live session. Setup that
// found no device skips t; any other setup failure fails it without running
// body. The outcome of both phases is recorded and handed to the failure
// capturer before t returns, including when body stops t early or panics.
func (h *Harness) Run(t TB, body Body) {
	t.Helper()
	h.ensureSetup()

	result := h.begin(t.Name())
	var start time.Time
	defer func() {
		if r := recover(); r != nil {
			result.Call = panicPhase(r, time.Since(start))
			h.finish(result)
			panic(r)
		}
		if result.Call.Status == core.StatusRunning {
			// body left through FailNow or SkipNow
			result.Call.Duration = time.Since(start)
			if t.Failed() {
				result.Call.Status = core.StatusFailed
			} else {
				result.Call.Status = core.StatusSkipped
			}
		}
		h.finish(result)
	}()

	if h.setupErr != nil {
		if core.IsSkip(h.setupErr) {
			t.Skip("device not ready: ", h.setupErr)
			return
		}
		t.Fatalf("harness setup failed: %v", h.setupErr)
		return
	}

	result.Call.Status = core.StatusRunning
	start = time.Now()
	err := body(h.session)
	result.Call = core.NewPhaseResult(err, time.Since(start))
	if err == nil && t.Failed() {
		result.Call.Status = core.StatusFailed
	}

	switch {
	case core.IsSkip(err):
		t.Skip(err)
	case err != nil:
		t.Fatalf("%v", err)
	}
}

// Check runs body outside of `go test` and returns the recorded result.
// A panicking body is recorded as failed.
func (h *Harness) Check(name string, body Body) core.TestResult {
	h.ensureSetup()

	result := h.begin(name)
	if h.setupErr == nil {
		result.Call = h.call(body)
	}
	h.finish(result)
	return *result
}

func (h *Harness) call(body Body) (phase core.PhaseResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			phase = panicPhase(r, time.Since(start))
		}
	}()
	err := body(h.session)
	return core.NewPhaseResult(err, time.Since(start))
}

func panicPhase(r interface{}, d time.Duration) core.PhaseResult {
	return core.PhaseResult{
		Status:   core.StatusFailed,
		Duration: d,
		Error:    fmt.Sprintf("panic: %v", r),
	}
}

func (h *Harness) ensureSetup() {
	if !h.setupDone {
		_ = h.Setup(context.Background())
	}
}

func (h *Harness) begin(name string) *core.TestResult {
	return &core.TestResult{
		Name:      name,
		RunID:     h.runID,
		StartTime: time.Now(),
		Setup:     h.setupResult,
	}
}

func (h *Harness) finish(result *core.TestResult) {
	result.Duration = time.Since(result.StartTime)
	h.capturer.AfterTest(result)
	h.suite.Tests = append(h.suite.Tests, *result)

	log := h.log.WithFields(logrus.Fields{
		"event":    "test",
		"test":     result.Name,
		"status":   result.Status().String(),
		"duration": result.Duration.String(),
	})
	if result.Call.Error != "" {
		log = log.WithField("error", result.Call.Error)
	}
	log.Info("test finished")
}

// LaunchCheck returns a body asserting the app reached a foreground
// activity containing one of markers.
func LaunchCheck(markers []string) Body {
	return func(s *session.Session) error {
		activity, err := s.CurrentActivity()
		if err != nil {
			return fmt.Errorf("query foreground activity: %w", err)
		}
		if activity == "" {
			return fmt.Errorf("%w: foreground activity is empty", ErrLaunchMismatch)
		}
		if len(markers) == 0 {
			return nil
		}
		if !lo.SomeBy(markers, func(m string) bool { return strings.Contains(activity, m) }) {
			return fmt.Errorf("%w: %q not in %v", ErrLaunchMismatch, activity, markers)
		}
		return nil
	}
}
