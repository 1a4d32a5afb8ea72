// Package session opens automation sessions against the remote server with a
// bounded retry loop and verifies each one is live before handing it out.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/mobile-harness/pkg/capabilities"
	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/driver/appium"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// Defaults for Options fields left zero.
const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 2 * time.Second
)

// Client is the slice of the automation protocol a session needs.
type Client interface {
	Connect(caps map[string]interface{}) error
	Disconnect() error
	SessionID() string
	CurrentActivity() (string, error)
	SetImplicitWait(timeout time.Duration) error
	SaveScreenshot(path string) error
}

// DeviceChecker confirms a device is attached before any connection attempt.
type DeviceChecker interface {
	CheckReady() error
}

// Options configures an Establisher.
type Options struct {
	ServerURL    string
	Attempts     int           // Total connection attempts
	BaseDelay    time.Duration // Wait after attempt n is BaseDelay*n
	ImplicitWait time.Duration // Applied to each live session; zero leaves the server default

	Device    DeviceChecker                // Preflight; nil skips it
	NewClient func(serverURL string) Client // Defaults to an Appium client
	Sleep     func(time.Duration)           // Defaults to time.Sleep
}

// Session is a live, verified automation session.
type Session struct {
	Client

	Capabilities capabilities.Set
	Attempts     int    // Attempts it took to establish
	Activity     string // Foreground activity seen by the liveness check
}

// Establisher opens sessions.
type Establisher struct {
	opts Options
}

// NewEstablisher creates an Establisher, filling in defaults.
func NewEstablisher(opts Options) *Establisher {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.NewClient == nil {
		opts.NewClient = func(serverURL string) Client { return appium.NewClient(serverURL) }
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Establisher{opts: opts}
}

// Establish opens a session with caps. It fails fast with ErrDeviceNotReady
// when preflight finds no device, and with ErrSessionEstablishmentFailed
// carrying the last attempt's error once every attempt has failed.
func (e *Establisher) Establish(ctx context.Context, caps capabilities.Set) (*Session, error) {
	log := logger.WithEvent("session").WithField("server", e.opts.ServerURL)

	if e.opts.Device != nil {
		if err := e.opts.Device.CheckReady(); err != nil {
			log.WithError(err).Warn("device preflight failed")
			return nil, err
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(NewLinearBackOff(e.opts.BaseDelay), uint64(e.opts.Attempts-1)),
		ctx,
	)
	policy.Reset()

	wire := caps.Map()
	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		attemptLog := log.WithFields(logrus.Fields{"attempt": attempt, "of": e.opts.Attempts})

		s, err := e.attempt(wire)
		if err == nil {
			s.Capabilities = caps
			s.Attempts = attempt
			attemptLog.WithFields(logrus.Fields{
				"session_id": s.SessionID(),
				"activity":   s.Activity,
			}).Info("session established")
			e.applyImplicitWait(s, attemptLog)
			return s, nil
		}

		lastErr = err
		attemptLog.WithError(err).Warn("session attempt failed")
		if attempt >= e.opts.Attempts {
			break
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		e.opts.Sleep(wait)
	}

	return nil, core.ErrSessionEstablishmentFailed.
		WithMessage(fmt.Sprintf("could not establish automation session after %d attempts", attempt)).
		WithCause(lastErr).
		WithDetails(map[string]interface{}{core.DetailAttempts: attempt})
}

// attempt opens one session and checks it answers a round-trip.
func (e *Establisher) attempt(wire map[string]interface{}) (*Session, error) {
	client := e.opts.NewClient(e.opts.ServerURL)
	if err := client.Connect(wire); err != nil {
		return nil, err
	}

	activity, err := client.CurrentActivity()
	if err != nil {
		core.Discard("close unresponsive session", client.Disconnect())
		return nil, fmt.Errorf("liveness check: %w", err)
	}

	return &Session{Client: client, Activity: activity}, nil
}

func (e *Establisher) applyImplicitWait(s *Session, log *logrus.Entry) {
	if e.opts.ImplicitWait <= 0 {
		return
	}
	if err := s.SetImplicitWait(e.opts.ImplicitWait); err != nil {
		log.WithError(err).Warn("failed to set implicit wait")
	}
}

// Close quits the session. Errors are logged, never returned.
func Close(s *Session) {
	if s == nil || s.Client == nil {
		return
	}
	id := s.SessionID()
	core.Discard("session close", s.Disconnect())
	logger.WithEvent("session").WithField("session_id", id).Info("session closed")
}
