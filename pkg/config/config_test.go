package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "harness.yaml")

	content := `
serverURL: http://10.0.0.5:4723
appFile: builds/twitch.apks
appPackage: tv.twitch.android.app
serial: emulator-5556
launchMarkers:
  - LandingActivity
commandTimeout: 45s
implicitWait: 5s
capabilities:
  deviceName: Pixel_7
  appWaitDuration: 30000
retry:
  attempts: 3
  baseDelay: 500ms
artifacts:
  reportsDir: out/shots
  captureOnSuccess: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:4723", cfg.ServerURL)
	assert.Equal(t, "builds/twitch.apks", cfg.AppFile)
	assert.Equal(t, "emulator-5556", cfg.Serial)
	assert.Equal(t, []string{"LandingActivity"}, cfg.LaunchMarkers)
	assert.Equal(t, 45*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.ImplicitWait)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, "out/shots", cfg.Artifacts.ReportsDir)
	assert.True(t, cfg.Artifacts.CaptureOnSuccess)
	assert.True(t, cfg.Artifacts.CaptureOnFailure, "unset fields keep their defaults")

	// File capabilities are merged over the static defaults.
	assert.Equal(t, "Pixel_7", cfg.Capabilities["deviceName"])
	assert.Equal(t, 30000, cfg.Capabilities["appWaitDuration"])
	assert.Equal(t, "UiAutomator2", cfg.Capabilities["automationName"])
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/harness.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromDir(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "harness.yaml"), []byte("appPackage: a.b\n"), 0644))
		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "a.b", cfg.AppPackage)
	})

	t.Run("yml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "harness.yml"), []byte("appPackage: c.d\n"), 0644))
		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "c.d", cfg.AppPackage)
	})

	t.Run("missing falls back to defaults", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultAppPackage, cfg.AppPackage)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvServerURL, "http://appium.local:4723")
	t.Setenv(EnvAppFile, "/tmp/build.apks")
	t.Setenv(EnvSerial, "R58M12345")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "http://appium.local:4723", cfg.ServerURL)
	assert.Equal(t, "/tmp/build.apks", cfg.AppFile)
	assert.Equal(t, "R58M12345", cfg.Serial)
}

func TestApplyEnv_UnsetKeepsValues(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	t.Setenv(EnvAppFile, "")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultAppFile, cfg.AppFile)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server", func(c *Config) { c.ServerURL = "" }},
		{"relative server", func(c *Config) { c.ServerURL = "localhost" }},
		{"empty package", func(c *Config) { c.AppPackage = "" }},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }},
		{"negative delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, core.IsCode(err, core.CodeInvalidConfig))
		})
	}
}

func TestDefault_FreshCapabilities(t *testing.T) {
	a := Default()
	a.Capabilities["deviceName"] = "changed"

	assert.Equal(t, "emulator-5554", Default().Capabilities["deviceName"])
}
