// Package harness runs the session setup pipeline once per test session and
// wraps each test with outcome recording and failure capture.
//
// Typical use from a test package:
//
//	var h *harness.Harness
//
//	func TestMain(m *testing.M) {
//		cfg, _ := config.LoadFromDir(".")
//		cfg.ApplyEnv()
//		h, _ = harness.NewFromConfig(cfg)
//		h.Setup(context.Background())
//		code := m.Run()
//		h.Teardown()
//		os.Exit(code)
//	}
//
//	func TestLaunch(t *testing.T) {
//		h.Run(t, harness.LaunchCheck([]string{"LandingActivity"}))
//	}
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/mobile-harness/pkg/artifact"
	"github.com/devicelab-dev/mobile-harness/pkg/capabilities"
	"github.com/devicelab-dev/mobile-harness/pkg/config"
	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/device"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
	"github.com/devicelab-dev/mobile-harness/pkg/session"
)

// Device is what the pipeline needs from the device bridge.
type Device interface {
	CheckReady() error
	IsInstalled(pkg string) (bool, error)
	ResolveLauncherActivity(pkg string) (string, error)
	Info() (device.Info, error)
}

// Installer places the application artifact on the device.
type Installer interface {
	Install(path string) error
}

// Establisher opens a live automation session.
type Establisher interface {
	Establish(ctx context.Context, caps capabilities.Set) (*session.Session, error)
}

// Deps are the pipeline stages.
type Deps struct {
	Device      Device
	Installer   Installer
	Establisher Establisher
}

// Body is a test body run against the live session.
type Body func(s *session.Session) error

// Harness owns the single live session of a test session scope.
type Harness struct {
	cfg      *config.Config
	deps     Deps
	runID    string
	defaults capabilities.Set
	capturer *artifact.Capturer
	log      *logrus.Entry

	setupDone   bool
	setupErr    error
	setupResult core.PhaseResult

	caps    capabilities.Set
	session *session.Session
	suite   core.SuiteResult
}

// New creates a Harness from cfg and explicit stages.
func New(cfg *config.Config, deps Deps) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	defaults, err := capabilities.FromMap(cfg.Capabilities)
	if err != nil {
		return nil, err
	}

	artifacts := cfg.Artifacts
	artifacts.ReportsDir = cfg.ResolvedReportsDir()

	runID := uuid.New().String()
	return &Harness{
		cfg:      cfg,
		deps:     deps,
		runID:    runID,
		defaults: defaults,
		capturer: artifact.NewCapturer(artifacts, nil),
		log:      logger.WithFields(logrus.Fields{"run_id": runID}),
		suite: core.SuiteResult{
			Name:      cfg.AppPackage,
			RunID:     runID,
			StartTime: time.Now(),
		},
	}, nil
}

// NewFromConfig wires the real adb bridge and Appium server behind a Harness.
func NewFromConfig(cfg *config.Config) (*Harness, error) {
	bridge, err := device.NewBridge(cfg.ADBPath, cfg.CommandTimeout)
	if err != nil {
		return nil, core.ErrDeviceNotReady.WithCause(err)
	}
	dev := device.New(bridge, cfg.Serial)

	return New(cfg, Deps{
		Device:    dev,
		Installer: device.NewInstaller(dev),
		Establisher: session.NewEstablisher(session.Options{
			ServerURL:    cfg.ServerURL,
			Attempts:     cfg.Retry.Attempts,
			BaseDelay:    cfg.Retry.BaseDelay,
			ImplicitWait: cfg.ImplicitWait,
			Device:       dev,
		}),
	})
}

// RunID identifies this harness run in logs and results.
func (h *Harness) RunID() string {
	return h.runID
}

// Session returns the live session, nil before Setup succeeds or after Teardown.
func (h *Harness) Session() *session.Session {
	return h.session
}

// Capabilities returns the frozen capability set built during Setup.
func (h *Harness) Capabilities() capabilities.Set {
	return h.caps
}

// Setup runs the pipeline: device preflight, presence check, conditional
// install, entry-point resolution, capability build, session establishment.
// A failing stage aborts the rest. The outcome is recorded once and applied
// to every test run afterwards.
func (h *Harness) Setup(ctx context.Context) error {
	if h.setupDone {
		return h.setupErr
	}
	start := time.Now()
	h.setupErr = h.setup(ctx)
	h.setupResult = core.NewPhaseResult(h.setupErr, time.Since(start))
	h.setupDone = true

	log := h.log.WithFields(logrus.Fields{
		"event":    "setup",
		"status":   h.setupResult.Status.String(),
		"duration": h.setupResult.Duration.String(),
	})
	switch {
	case h.setupErr == nil:
		log.Info("setup complete")
	case core.IsSkip(h.setupErr):
		log.WithError(h.setupErr).Warn("setup skipped")
	default:
		log.WithError(h.setupErr).Error("setup failed")
	}
	return h.setupErr
}

func (h *Harness) setup(ctx context.Context) error {
	pkg := h.cfg.AppPackage

	if err := h.deps.Device.CheckReady(); err != nil {
		return err
	}
	if info, err := h.deps.Device.Info(); err == nil {
		h.log.WithFields(logrus.Fields{
			"event":    "device",
			"serial":   info.Serial,
			"model":    info.Model,
			"sdk":      info.SDK,
			"emulator": info.IsEmulator,
		}).Info("device ready")
	}

	installed, err := h.deps.Device.IsInstalled(pkg)
	if err != nil {
		return fmt.Errorf("package presence check: %w", err)
	}
	if !installed {
		appFile := h.cfg.ResolvedAppFile()
		h.log.WithFields(logrus.Fields{"event": "install", "package": pkg, "path": appFile}).Info("package absent, installing")
		if err := h.deps.Installer.Install(appFile); err != nil {
			return err
		}
	} else {
		h.log.WithFields(logrus.Fields{"event": "install", "package": pkg}).Info("package present, install skipped")
	}

	activity, err := h.deps.Device.ResolveLauncherActivity(pkg)
	if err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{"event": "resolve", "activity": activity}).Info("launcher activity resolved")

	h.caps = capabilities.Build(h.defaults, pkg, activity)
	h.log.WithFields(logrus.Fields{"event": "capabilities"}).Debug(h.caps.String())

	s, err := h.deps.Establisher.Establish(ctx, h.caps)
	if err != nil {
		return err
	}
	h.attach(s)
	return nil
}

func (h *Harness) attach(s *session.Session) {
	h.session = s
	if s != nil {
		h.capturer.SetShooter(s)
	} else {
		h.capturer.SetShooter(nil)
	}
}

// Restart closes the live session and opens a new one with the same frozen
// capability set.
func (h *Harness) Restart(ctx context.Context) error {
	if !h.setupDone || h.setupErr != nil {
		return fmt.Errorf("restart: setup has not succeeded")
	}
	session.Close(h.session)
	h.attach(nil)

	s, err := h.deps.Establisher.Establish(ctx, h.caps)
	if err != nil {
		h.log.WithError(err).WithField("event", "restart").Error("session restart failed")
		return err
	}
	h.attach(s)
	h.log.WithField("event", "restart").Info("session restarted")
	return nil
}

// Teardown closes the live session and returns the suite outcome. Close
// errors are logged and never returned.
func (h *Harness) Teardown() core.SuiteResult {
	session.Close(h.session)
	h.attach(nil)

	h.suite.Duration = time.Since(h.suite.StartTime)
	h.suite.ComputeSummary()
	h.log.WithFields(logrus.Fields{
		"event":   "teardown",
		"total":   h.suite.Total,
		"passed":  h.suite.Passed,
		"failed":  h.suite.Failed,
		"skipped": h.suite.Skipped,
	}).Info("harness finished")
	return h.suite
}

// Results returns the tests recorded so far.
func (h *Harness) Results() []core.TestResult {
	return h.suite.Tests
}
