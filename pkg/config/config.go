// Package config handles configuration for mobile-harness.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// Environment overrides, applied after the config file.
const (
	EnvServerURL = "APPIUM_URL"
	EnvAppFile   = "APP_APK_PATH"
	EnvSerial    = "ANDROID_SERIAL"
)

// Defaults
const (
	DefaultServerURL      = "http://127.0.0.1:4723"
	DefaultAppFile        = "apps/app.apk"
	DefaultAppPackage     = "tv.twitch.android.app"
	DefaultAttempts       = 5
	DefaultBaseDelay      = 2 * time.Second
	DefaultCommandTimeout = 2 * time.Minute
	DefaultImplicitWait   = 10 * time.Second
)

// Config represents the harness configuration (harness.yaml).
type Config struct {
	// Automation server
	ServerURL string `yaml:"serverURL"` // Base endpoint of the automation server

	// Application under test
	AppFile       string   `yaml:"appFile"`       // .apk or split bundle (.apks/.xapk/zip)
	AppPackage    string   `yaml:"appPackage"`    // Package id checked for presence and resolved for launch
	LaunchMarkers []string `yaml:"launchMarkers"` // Substrings a valid launch activity contains

	// Device
	Serial         string        `yaml:"serial"`         // Device serial (empty = adb default)
	ADBPath        string        `yaml:"adbPath"`        // adb binary (empty = PATH lookup)
	CommandTimeout time.Duration `yaml:"commandTimeout"` // Per device-bridge command

	// Session
	Capabilities map[string]interface{} `yaml:"capabilities"` // Static capability defaults
	ImplicitWait time.Duration          `yaml:"implicitWait"` // Applied once the session is live
	Retry        RetryConfig            `yaml:"retry"`

	// Artifacts
	Artifacts core.ArtifactConfig `yaml:"artifacts"`
}

// RetryConfig bounds session establishment attempts.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`  // Total attempts, not retries
	BaseDelay time.Duration `yaml:"baseDelay"` // Wait after attempt n is BaseDelay*n
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ServerURL:     DefaultServerURL,
		AppFile:       DefaultAppFile,
		AppPackage:    DefaultAppPackage,
		LaunchMarkers: []string{"LandingActivity", "MainActivity", "LoginActivity"},
		Capabilities: map[string]interface{}{
			"platformName":         "Android",
			"automationName":       "UiAutomator2",
			"deviceName":           "emulator-5554",
			"newCommandTimeout":    300,
			"autoGrantPermissions": true,
			"noReset":              true,
		},
		CommandTimeout: DefaultCommandTimeout,
		ImplicitWait:   DefaultImplicitWait,
		Retry: RetryConfig{
			Attempts:  DefaultAttempts,
			BaseDelay: DefaultBaseDelay,
		},
		Artifacts: core.DefaultArtifactConfig(),
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for harness.yaml or harness.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try harness.yaml first
	configPath := filepath.Join(dir, "harness.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try harness.yml
	configPath = filepath.Join(dir, "harness.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvAppFile); v != "" {
		c.AppFile = v
	}
	if v := os.Getenv(EnvSerial); v != "" {
		c.Serial = v
	}
}

// ResolvedAppFile returns AppFile, anchoring relative paths at the harness home.
func (c *Config) ResolvedAppFile() string {
	return resolvePath(c.AppFile)
}

// ResolvedReportsDir returns the artifacts directory, anchored like ResolvedAppFile.
func (c *Config) ResolvedReportsDir() string {
	dir := c.Artifacts.ReportsDir
	if dir == "" {
		dir = core.DefaultReportsDir
	}
	return resolvePath(dir)
}

func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(Home(), p)
}

// Validate checks that the configuration can drive a session.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return core.ErrInvalidConfig.WithMessage("serverURL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("serverURL %q is not an absolute URL", c.ServerURL))
	}
	if c.AppPackage == "" {
		return core.ErrInvalidConfig.WithMessage("appPackage is required")
	}
	if c.Retry.Attempts < 1 {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Retry.BaseDelay < 0 {
		return core.ErrInvalidConfig.WithMessage("retry.baseDelay must not be negative")
	}
	return nil
}
