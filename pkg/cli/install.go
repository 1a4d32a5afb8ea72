package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/mobile-harness/pkg/config"
	"github.com/devicelab-dev/mobile-harness/pkg/device"
)

var installCommand = &cli.Command{
	Name:  "install",
	Usage: "Install the app artifact on the device",
	Description: `Installs a single .apk, or every part of a split bundle in one transaction.
Skips the install when the package is already present unless --force is given.

Examples:
  mobile-harness --app-file apps/app.apks install
  mobile-harness install --force`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Install even when the package is already present",
		},
	},
	Action: runInstall,
}

var activityCommand = &cli.Command{
	Name:  "activity",
	Usage: "Print the launcher activity of the app under test",
	Description: `Asks the device package manager which activity handles the launcher intent.

Examples:
  mobile-harness --package tv.twitch.android.app activity`,
	Action: runActivity,
}

func connectDevice(cfg *config.Config) (*device.AndroidDevice, error) {
	bridge, err := device.NewBridge(cfg.ADBPath, cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}
	dev := device.New(bridge, cfg.Serial)
	if err := dev.CheckReady(); err != nil {
		return nil, err
	}
	return dev, nil
}

func runInstall(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dev, err := connectDevice(cfg)
	if err != nil {
		return failWith(err)
	}

	if !c.Bool("force") {
		installed, err := dev.IsInstalled(cfg.AppPackage)
		if err != nil {
			return failWith(err)
		}
		if installed {
			printSetupSuccess(fmt.Sprintf("%s already installed", cfg.AppPackage))
			return nil
		}
	}

	appFile := cfg.ResolvedAppFile()
	printSetupStep(fmt.Sprintf("Installing %s", appFile))
	if err := device.NewInstaller(dev).Install(appFile); err != nil {
		printSetupFailure("Install failed")
		return failWith(err)
	}
	printSetupSuccess("App installed")
	return nil
}

func runActivity(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dev, err := connectDevice(cfg)
	if err != nil {
		return failWith(err)
	}

	activity, err := dev.ResolveLauncherActivity(cfg.AppPackage)
	if err != nil {
		return failWith(err)
	}
	fmt.Println(activity)
	return nil
}
