// Package core provides the shared outcome, error and artifact types for mobile-harness.
package core

// Attachment represents a debug artifact captured for a test
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot
	ContentType string `json:"contentType"` // MIME type: image/png
	Path        string `json:"path"`        // File path on disk
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
)

// Common content types
const (
	ContentTypePNG = "image/png"
)

// DefaultNameTemplate names failure screenshots. Tags are {name} and {timestamp}.
const DefaultNameTemplate = "{name}_{timestamp}.png"

// DefaultReportsDir is where failure artifacts land when nothing else is configured.
const DefaultReportsDir = "reports"

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
	}
}

// ArtifactConfig controls when and where artifacts are captured
type ArtifactConfig struct {
	// When to capture
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"` // Default: false

	// Where to put it
	ReportsDir   string `yaml:"reportsDir" json:"reportsDir"`     // Default: reports
	NameTemplate string `yaml:"nameTemplate" json:"nameTemplate"` // Default: {name}_{timestamp}.png
}

// DefaultArtifactConfig returns sensible defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		ReportsDir:       DefaultReportsDir,
		NameTemplate:     DefaultNameTemplate,
	}
}

// ShouldCapture returns true if artifacts should be captured for the given status
func (c ArtifactConfig) ShouldCapture(status TestStatus) bool {
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed:
		return c.CaptureOnSuccess
	default:
		return false
	}
}

// ScreenshotTaker is anything that can write the current device screen to a file.
type ScreenshotTaker interface {
	SaveScreenshot(path string) error
}
