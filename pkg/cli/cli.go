// Package cli provides the command-line interface for mobile-harness.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/mobile-harness/pkg/config"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file, or directory holding harness.yaml",
		Value:   ".",
		EnvVars: []string{"MOBILE_HARNESS_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "appium-url",
		Usage:   "Appium server URL",
		EnvVars: []string{config.EnvServerURL},
	},
	&cli.StringFlag{
		Name:    "app-file",
		Usage:   "App artifact (.apk or split bundle .apks/.xapk/.zip) to install when absent",
		EnvVars: []string{config.EnvAppFile},
	},
	&cli.StringFlag{
		Name:    "package",
		Usage:   "Package id of the app under test",
		EnvVars: []string{"APP_PACKAGE"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"serial", "s"},
		Usage:   "Device serial (defaults to the only connected device)",
		EnvVars: []string{config.EnvSerial},
	},
	&cli.StringFlag{
		Name:  "adb",
		Usage: "Path to adb (defaults to PATH lookup)",
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write JSON logs to this file",
		EnvVars: []string{"MOBILE_HARNESS_LOG"},
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "Minimum log level (debug, info, warn, error)",
		Value: "info",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mobile-harness",
		Usage:   "Prepare an Android device and open an Appium session for UI tests",
		Version: Version,
		Description: `mobile-harness installs the app under test when it is missing, resolves its
launcher activity, and opens a verified Appium session with retry.

Examples:
  mobile-harness run
  mobile-harness --app-file apps/app.apks install
  mobile-harness --package tv.twitch.android.app activity
  mobile-harness health --timeout 30s`,
		Flags:  GlobalFlags,
		Before: setupLogging,
		// Errors are returned to Execute, which owns the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		After: func(*cli.Context) error {
			logger.Close()
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			installCommand,
			activityCommand,
			healthCommand,
		},
	}
}

func setupLogging(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}
	if path := c.String("log-file"); path != "" {
		if err := logger.Init(path); err != nil {
			return err
		}
	}
	return logger.SetLevel(c.String("log-level"))
}

// loadConfig reads the config file, then applies environment and flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := readConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	if c.IsSet("appium-url") {
		cfg.ServerURL = c.String("appium-url")
	}
	if c.IsSet("app-file") {
		cfg.AppFile = c.String("app-file")
	}
	if c.IsSet("package") {
		cfg.AppPackage = c.String("package")
	}
	if c.IsSet("device") {
		cfg.Serial = c.String("device")
	}
	if c.IsSet("adb") {
		cfg.ADBPath = c.String("adb")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return config.LoadFromDir(path)
	}
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%s: config must be a .yaml or .yml file", path)
	}
	return config.Load(path)
}
