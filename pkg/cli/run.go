package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/mobile-harness/pkg/config"
	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/harness"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run the setup pipeline and the launch smoke check",
	Description: `Checks the device, installs the app if it is missing, resolves the launcher
activity, opens an Appium session and verifies the app reached a launch screen.
Exits 3 when no device is ready.

Examples:
  mobile-harness run
  mobile-harness run --marker LandingActivity --marker LoginActivity
  mobile-harness run --restart`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "marker",
			Usage: "Activity substring that counts as a successful launch (repeatable)",
		},
		&cli.IntFlag{
			Name:  "attempts",
			Usage: "Session establishment attempts",
		},
		&cli.DurationFlag{
			Name:  "base-delay",
			Usage: "Backoff unit; the wait after attempt n is n times this",
		},
		&cli.BoolFlag{
			Name:  "restart",
			Usage: "Restart the session once and repeat the launch check",
		},
	},
	Action: runRun,
}

func runRun(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyRunFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := harness.NewFromConfig(cfg)
	if err != nil {
		return failWith(err)
	}

	fmt.Printf("\n%sSetup%s\n", color(colorBold), color(colorReset))
	printSetupStep(fmt.Sprintf("Preparing %s on %s", cfg.AppPackage, deviceLabel(cfg)))
	if err := h.Setup(c.Context); err != nil {
		h.Teardown()
		if core.IsSkip(err) {
			printSetupSkipped("No ready device")
		} else {
			printSetupFailure("Setup failed")
		}
		return failWith(err)
	}
	s := h.Session()
	printSetupSuccess(fmt.Sprintf("Session %s (attempt %d, %s)", s.SessionID(), s.Attempts, s.Capabilities.AppActivity))

	fmt.Printf("\n%sChecks%s\n", color(colorBold), color(colorReset))
	check := harness.LaunchCheck(cfg.LaunchMarkers)
	printResult(h.Check("launch", check))

	if c.Bool("restart") {
		if err := h.Restart(c.Context); err != nil {
			h.Teardown()
			return failWith(err)
		}
		printResult(h.Check("launch after restart", check))
	}

	suite := h.Teardown()
	fmt.Printf("\n%d passed, %d failed, %d skipped\n", suite.Passed, suite.Failed, suite.Skipped)
	if !suite.Success() {
		return cli.Exit("launch check failed", exitFailure)
	}
	return nil
}

func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("marker") {
		cfg.LaunchMarkers = c.StringSlice("marker")
	}
	if c.IsSet("attempts") {
		cfg.Retry.Attempts = c.Int("attempts")
	}
	if c.IsSet("base-delay") {
		cfg.Retry.BaseDelay = c.Duration("base-delay")
	}
}

func deviceLabel(cfg *config.Config) string {
	if cfg.Serial == "" {
		return "default device"
	}
	return cfg.Serial
}
