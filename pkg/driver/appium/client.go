// Package appium is a minimal Appium client speaking the W3C WebDriver protocol.
// It covers what the harness needs: open and close a session, query the
// foreground activity, take screenshots and probe server status.
package appium

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds every HTTP round-trip. Session creation can be slow
// because the server may install its own helper apps first.
const DefaultTimeout = 5 * time.Minute

// Client handles HTTP communication with Appium server.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
	platform  string
}

// NewClient creates a new Appium client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetTimeout changes the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.client.Timeout = d
}

// ServerURL returns the base endpoint this client talks to.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// SessionID returns the active session id, empty when not connected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform reported by the server (lowercase).
func (c *Client) Platform() string {
	return c.platform
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
			"firstMatch":  []map[string]interface{}{{}},
		},
	}

	resp, err := c.post("/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}

	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	if caps, ok := value["capabilities"].(map[string]interface{}); ok {
		if platform, ok := caps["platformName"].(string); ok {
			c.platform = strings.ToLower(platform)
		}
	}

	return nil
}

// Disconnect closes the session. The session id is cleared even when the
// server call fails.
func (c *Client) Disconnect() error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(c.sessionPath())
	c.sessionID = ""
	return err
}

// CurrentActivity returns the foreground activity.
func (c *Client) CurrentActivity() (string, error) {
	return c.getString(c.sessionPath() + "/appium/device/current_activity")
}

// CurrentPackage returns the foreground package.
func (c *Client) CurrentPackage() (string, error) {
	return c.getString(c.sessionPath() + "/appium/device/current_package")
}

// Screenshot captures the screen as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	encoded, err := c.getString(c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// SaveScreenshot writes a screenshot to path.
func (c *Client) SaveScreenshot(path string) error {
	data, err := c.Screenshot()
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// SetImplicitWait sets the element lookup timeout of the session.
func (c *Client) SetImplicitWait(timeout time.Duration) error {
	body := map[string]interface{}{
		"implicit": timeout.Milliseconds(),
	}
	_, err := c.post(c.sessionPath()+"/timeouts", body)
	return err
}

// ServerStatus is the server's answer to a status probe.
type ServerStatus struct {
	Ready   bool
	Message string
	Version string
}

// Status probes the server. Appium 2 serves /status; Appium 1 only answers
// under the /wd/hub base path.
func (c *Client) Status() (*ServerStatus, error) {
	resp, err := c.get("/status")
	if err != nil {
		var legacyErr error
		if resp, legacyErr = c.get("/wd/hub/status"); legacyErr != nil {
			return nil, err
		}
	}

	status := &ServerStatus{Ready: true}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return status, nil
	}
	if ready, ok := value["ready"].(bool); ok {
		status.Ready = ready
	}
	status.Message, _ = value["message"].(string)
	if build, ok := value["build"].(map[string]interface{}); ok {
		status.Version, _ = build["version"].(string)
	}
	return status, nil
}

// Helper methods

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) getString(path string) (string, error) {
	if c.sessionID == "" {
		return "", fmt.Errorf("no active session")
	}
	resp, err := c.get(path)
	if err != nil {
		return "", err
	}
	s, ok := resp["value"].(string)
	if !ok {
		return "", fmt.Errorf("invalid response from %s", path)
	}
	return s, nil
}

func (c *Client) get(path string) (map[string]interface{}, error) {
	return c.request("GET", path, nil)
}

func (c *Client) post(path string, body interface{}) (map[string]interface{}, error) {
	return c.request("POST", path, body)
}

func (c *Client) delete(path string) (map[string]interface{}, error) {
	return c.request("DELETE", path, nil)
}

func (c *Client) request(method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Check for WebDriver error
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errMsg, ok := errValue["message"].(string); ok {
			if errType, ok := errValue["error"].(string); ok {
				return result, fmt.Errorf("%s: %s", errType, errMsg)
			}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	return result, nil
}
