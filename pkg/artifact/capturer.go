// Package artifact captures screenshots after a test, per the artifact policy.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasttemplate"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// TimestampLayout is the second-granularity stamp embedded in artifact names.
const TimestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeName replaces every character outside [A-Za-z0-9._-] with '_'.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Capturer writes a screenshot for each test whose outcome the policy selects.
type Capturer struct {
	cfg     core.ArtifactConfig
	shooter core.ScreenshotTaker
	now     func() time.Time
}

// NewCapturer creates a Capturer. cfg.ReportsDir should already be resolved.
func NewCapturer(cfg core.ArtifactConfig, shooter core.ScreenshotTaker) *Capturer {
	if cfg.NameTemplate == "" {
		cfg.NameTemplate = core.DefaultNameTemplate
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = core.DefaultReportsDir
	}
	return &Capturer{cfg: cfg, shooter: shooter, now: time.Now}
}

// SetShooter swaps the screenshot source, e.g. after a session restart.
func (c *Capturer) SetShooter(shooter core.ScreenshotTaker) {
	c.shooter = shooter
}

// AfterTest inspects the recorded setup and body outcome and, when the policy
// asks for it, saves a screenshot and attaches it to result. Capture problems
// are logged and never change the outcome.
func (c *Capturer) AfterTest(result *core.TestResult) (core.Attachment, bool) {
	status := result.Status()
	if !c.cfg.ShouldCapture(status) {
		return core.Attachment{}, false
	}

	log := logger.WithEvent("artifact").WithFields(logrus.Fields{
		"test":   result.Name,
		"status": status.String(),
	})
	if c.shooter == nil {
		log.Warn("no live session, screenshot skipped")
		return core.Attachment{}, false
	}

	path, err := c.capture(result.Name)
	if err != nil {
		core.Discard("screenshot capture", err)
		return core.Attachment{}, false
	}

	att := core.NewScreenshotAttachment(path)
	result.Attachments = append(result.Attachments, att)
	log.WithField("path", path).Info("screenshot saved")
	return att, true
}

func (c *Capturer) capture(testName string) (string, error) {
	if err := os.MkdirAll(c.cfg.ReportsDir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := c.uniquePath(c.FileName(testName))
	if err := c.shooter.SaveScreenshot(path); err != nil {
		return "", err
	}
	return path, nil
}

// FileName renders the artifact name for testName at the current time.
func (c *Capturer) FileName(testName string) string {
	return fasttemplate.ExecuteString(c.cfg.NameTemplate, "{", "}", map[string]interface{}{
		"name":      SanitizeName(testName),
		"timestamp": c.now().Format(TimestampLayout),
	})
}

// uniquePath keeps two captures of one test within the same second apart.
func (c *Capturer) uniquePath(name string) string {
	path := filepath.Join(c.cfg.ReportsDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := filepath.Join(c.cfg.ReportsDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
