// Package capabilities models the capability set sent to the automation
// server when a session is opened, and the single merge step that injects the
// resolved entry point into the static defaults.
package capabilities

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// Capability keys with a named field in Set.
const (
	KeyPlatformName         = "platformName"
	KeyAutomationName       = "automationName"
	KeyDeviceName           = "deviceName"
	KeyUDID                 = "udid"
	KeyAppPackage           = "appPackage"
	KeyAppActivity          = "appActivity"
	KeyAppWaitPackage       = "appWaitPackage"
	KeyAppWaitActivity      = "appWaitActivity"
	KeyAppWaitForLaunch     = "appWaitForLaunch"
	KeyNewCommandTimeout    = "newCommandTimeout"
	KeyNoReset              = "noReset"
	KeyAutoGrantPermissions = "autoGrantPermissions"
)

// VendorPrefix namespaces non-W3C capabilities on the wire.
const VendorPrefix = "appium:"

// AnyActivity is the wait-activity pattern matching whatever the app shows first.
const AnyActivity = "*"

// w3cKeys are standard W3C capabilities sent without the vendor prefix.
var w3cKeys = []string{
	KeyPlatformName,
	"browserName",
	"browserVersion",
	"platformVersion",
	"acceptInsecureCerts",
	"pageLoadStrategy",
	"proxy",
	"setWindowRect",
	"timeouts",
	"strictFileInteractability",
	"unhandledPromptBehavior",
}

// Set describes how the automation server should start the application.
// Known keys are named fields; anything else rides along in Extra.
// Pointer fields distinguish "absent" from the zero value.
type Set struct {
	PlatformName         string
	AutomationName       string
	DeviceName           string
	UDID                 string
	AppPackage           string
	AppActivity          string
	AppWaitPackage       string
	AppWaitActivity      string
	AppWaitForLaunch     *bool
	NewCommandTimeout    *int
	NoReset              *bool
	AutoGrantPermissions *bool

	Extra map[string]interface{}
}

// Bool returns a pointer to b, for populating optional fields.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n, for populating optional fields.
func Int(n int) *int { return &n }

// FromMap builds a Set from a loosely typed map such as the config file's
// capabilities block. Keys may carry the vendor prefix.
func FromMap(m map[string]interface{}) (Set, error) {
	var s Set
	for rawKey, v := range m {
		key := strings.TrimPrefix(rawKey, VendorPrefix)
		var err error
		switch key {
		case KeyPlatformName:
			s.PlatformName, err = asString(key, v)
		case KeyAutomationName:
			s.AutomationName, err = asString(key, v)
		case KeyDeviceName:
			s.DeviceName, err = asString(key, v)
		case KeyUDID:
			s.UDID, err = asString(key, v)
		case KeyAppPackage:
			s.AppPackage, err = asString(key, v)
		case KeyAppActivity:
			s.AppActivity, err = asString(key, v)
		case KeyAppWaitPackage:
			s.AppWaitPackage, err = asString(key, v)
		case KeyAppWaitActivity:
			s.AppWaitActivity, err = asString(key, v)
		case KeyAppWaitForLaunch:
			s.AppWaitForLaunch, err = asBool(key, v)
		case KeyNewCommandTimeout:
			s.NewCommandTimeout, err = asInt(key, v)
		case KeyNoReset:
			s.NoReset, err = asBool(key, v)
		case KeyAutoGrantPermissions:
			s.AutoGrantPermissions, err = asBool(key, v)
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]interface{})
			}
			s.Extra[rawKey] = v
		}
		if err != nil {
			return Set{}, core.ErrInvalidConfig.WithCause(err)
		}
	}
	return s, nil
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	c := s
	if s.AppWaitForLaunch != nil {
		c.AppWaitForLaunch = Bool(*s.AppWaitForLaunch)
	}
	if s.NewCommandTimeout != nil {
		c.NewCommandTimeout = Int(*s.NewCommandTimeout)
	}
	if s.NoReset != nil {
		c.NoReset = Bool(*s.NoReset)
	}
	if s.AutoGrantPermissions != nil {
		c.AutoGrantPermissions = Bool(*s.AutoGrantPermissions)
	}
	if s.Extra != nil {
		c.Extra = lo.Assign(s.Extra)
	}
	return c
}

// Build merges the resolved entry point into a copy of defaults. The package
// and activity always win; the wait policy is filled in only where defaults
// leave it unset. defaults is not modified.
func Build(defaults Set, pkg, activity string) Set {
	s := defaults.Clone()
	if pkg != "" {
		s.AppPackage = pkg
	}
	s.AppActivity = activity

	if s.AppWaitPackage == "" {
		s.AppWaitPackage = s.AppPackage
	}
	if s.AppWaitActivity == "" {
		s.AppWaitActivity = AnyActivity
	}
	if s.AppWaitForLaunch == nil {
		s.AppWaitForLaunch = Bool(true)
	}
	return s
}

// Map flattens s into W3C alwaysMatch form: standard keys bare, everything
// else under the vendor prefix. Named fields override Extra entries.
func (s Set) Map() map[string]interface{} {
	m := make(map[string]interface{})
	for k, v := range s.Extra {
		m[wireKey(k)] = v
	}

	putString := func(key, v string) {
		if v != "" {
			m[wireKey(key)] = v
		}
	}
	putString(KeyPlatformName, s.PlatformName)
	putString(KeyAutomationName, s.AutomationName)
	putString(KeyDeviceName, s.DeviceName)
	putString(KeyUDID, s.UDID)
	putString(KeyAppPackage, s.AppPackage)
	putString(KeyAppActivity, s.AppActivity)
	putString(KeyAppWaitPackage, s.AppWaitPackage)
	putString(KeyAppWaitActivity, s.AppWaitActivity)

	if s.AppWaitForLaunch != nil {
		m[wireKey(KeyAppWaitForLaunch)] = *s.AppWaitForLaunch
	}
	if s.NewCommandTimeout != nil {
		m[wireKey(KeyNewCommandTimeout)] = *s.NewCommandTimeout
	}
	if s.NoReset != nil {
		m[wireKey(KeyNoReset)] = *s.NoReset
	}
	if s.AutoGrantPermissions != nil {
		m[wireKey(KeyAutoGrantPermissions)] = *s.AutoGrantPermissions
	}
	return m
}

// String renders the set for logs with keys in a stable order.
func (s Set) String() string {
	m := s.Map()
	keys := lo.Keys(m)
	sort.Strings(keys)
	parts := lo.Map(keys, func(k string, _ int) string {
		return fmt.Sprintf("%s=%v", k, m[k])
	})
	return "{" + strings.Join(parts, " ") + "}"
}

func wireKey(key string) string {
	if strings.Contains(key, ":") || lo.Contains(w3cKeys, key) {
		return key
	}
	return VendorPrefix + key
}

func asString(key string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("capability %s: expected string, got %T", key, v)
	}
	return s, nil
}

func asBool(key string, v interface{}) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("capability %s: expected bool, got %T", key, v)
	}
	return &b, nil
}

func asInt(key string, v interface{}) (*int, error) {
	switch n := v.(type) {
	case int:
		return &n, nil
	case int64:
		i := int(n)
		return &i, nil
	case float64:
		if n != float64(int(n)) {
			return nil, fmt.Errorf("capability %s: expected integer, got %v", key, n)
		}
		i := int(n)
		return &i, nil
	default:
		return nil, fmt.Errorf("capability %s: expected integer, got %T", key, v)
	}
}
