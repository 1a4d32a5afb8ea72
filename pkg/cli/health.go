package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/mobile-harness/pkg/driver/appium"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

var healthCommand = &cli.Command{
	Name:  "health",
	Usage: "Wait for the Appium server to report ready",
	Description: `Polls the server status endpoint until it answers or the timeout passes.

Examples:
  mobile-harness health
  mobile-harness --appium-url http://127.0.0.1:4723 health --timeout 1m`,
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up after this long",
			Value: 30 * time.Second,
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Time between probes",
			Value: 2 * time.Second,
		},
	},
	Action: runHealth,
}

func runHealth(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	client := appium.NewClient(cfg.ServerURL)
	client.SetTimeout(c.Duration("timeout"))

	printSetupStep(fmt.Sprintf("Checking Appium server at %s", cfg.ServerURL))
	status, err := waitForServer(c.Context, client, c.Duration("timeout"), c.Duration("interval"))
	if err != nil {
		printSetupFailure("Appium server unreachable")
		return cli.Exit(err.Error(), exitFailure)
	}

	version := status.Version
	if version == "" {
		version = "unknown version"
	}
	printSetupSuccess(fmt.Sprintf("Appium server ready (%s)", version))
	return nil
}

// waitForServer polls every interval until the server reports ready, timeout
// elapses or ctx is cancelled.
func waitForServer(ctx context.Context, client *appium.Client, timeout, interval time.Duration) (*appium.ServerStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var status *appium.ServerStatus
	probe := func() error {
		s, err := client.Status()
		if err != nil {
			return err
		}
		if !s.Ready {
			return fmt.Errorf("server not ready: %s", s.Message)
		}
		status = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.WithEvent("health").WithError(err).WithField("next", next.String()).Debug("probe failed")
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.RetryNotify(probe, policy, notify); err != nil {
		return nil, fmt.Errorf("appium server at %s not ready after %s: %w", client.ServerURL(), timeout, err)
	}
	return status, nil
}
