package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

func staticDefaults(t *testing.T) Set {
	t.Helper()
	s, err := FromMap(map[string]interface{}{
		"platformName":         "Android",
		"automationName":       "UiAutomator2",
		"deviceName":           "emulator-5554",
		"newCommandTimeout":    300,
		"autoGrantPermissions": true,
		"noReset":              true,
		"appium:language":      "en",
	})
	require.NoError(t, err)
	return s
}

func TestFromMap(t *testing.T) {
	s := staticDefaults(t)

	assert.Equal(t, "Android", s.PlatformName)
	assert.Equal(t, "UiAutomator2", s.AutomationName)
	require.NotNil(t, s.NewCommandTimeout)
	assert.Equal(t, 300, *s.NewCommandTimeout)
	require.NotNil(t, s.NoReset)
	assert.True(t, *s.NoReset)
	assert.Equal(t, map[string]interface{}{"appium:language": "en"}, s.Extra)
}

func TestFromMap_PrefixedKnownKey(t *testing.T) {
	s, err := FromMap(map[string]interface{}{"appium:appPackage": "com.example"})
	require.NoError(t, err)
	assert.Equal(t, "com.example", s.AppPackage)
	assert.Empty(t, s.Extra)
}

func TestFromMap_WrongType(t *testing.T) {
	tests := map[string]interface{}{
		"noReset":           "yes",
		"newCommandTimeout": 1.5,
		"platformName":      42,
	}
	for key, v := range tests {
		_, err := FromMap(map[string]interface{}{key: v})
		require.Error(t, err, key)
		assert.True(t, core.IsCode(err, core.CodeInvalidConfig))
	}
}

func TestBuild_InjectsEntryPoint(t *testing.T) {
	s := Build(staticDefaults(t), "tv.twitch.android.app", "tv.twitch.android.app.core.LandingActivity")

	assert.Equal(t, "tv.twitch.android.app", s.AppPackage)
	assert.Equal(t, "tv.twitch.android.app.core.LandingActivity", s.AppActivity)
	assert.Equal(t, "tv.twitch.android.app", s.AppWaitPackage)
	assert.Equal(t, AnyActivity, s.AppWaitActivity)
	require.NotNil(t, s.AppWaitForLaunch)
	assert.True(t, *s.AppWaitForLaunch)
}

func TestBuild_ActivityOverridesDefault(t *testing.T) {
	defaults := staticDefaults(t)
	defaults.AppActivity = ".Stale"

	s := Build(defaults, "com.example", "com.example.Fresh")
	assert.Equal(t, "com.example.Fresh", s.AppActivity)
}

func TestBuild_PreservesExistingWaitPolicy(t *testing.T) {
	defaults := staticDefaults(t)
	defaults.AppWaitPackage = "com.example.auth"
	defaults.AppWaitActivity = "com.example.auth.*"
	defaults.AppWaitForLaunch = Bool(false)

	s := Build(defaults, "com.example", "com.example.Main")
	assert.Equal(t, "com.example.auth", s.AppWaitPackage)
	assert.Equal(t, "com.example.auth.*", s.AppWaitActivity)
	assert.False(t, *s.AppWaitForLaunch)
}

func TestBuild_DoesNotMutateDefaults(t *testing.T) {
	defaults := staticDefaults(t)
	before := defaults.Map()

	s := Build(defaults, "com.example", "com.example.Main")
	s.Extra["appium:language"] = "fr"
	*s.NoReset = false

	assert.Equal(t, before, defaults.Map())
}

func TestMap_W3CPrefixing(t *testing.T) {
	s := Build(staticDefaults(t), "com.example", "com.example.Main")
	m := s.Map()

	assert.Equal(t, "Android", m["platformName"])
	assert.Equal(t, "UiAutomator2", m["appium:automationName"])
	assert.Equal(t, "com.example.Main", m["appium:appActivity"])
	assert.Equal(t, 300, m["appium:newCommandTimeout"])
	assert.Equal(t, true, m["appium:noReset"])
	assert.Equal(t, "en", m["appium:language"])
	assert.NotContains(t, m, "appActivity")
	assert.NotContains(t, m, "appium:udid")
}

func TestMap_NamedFieldWinsOverExtra(t *testing.T) {
	s := Set{
		AppActivity: "com.example.Main",
		Extra:       map[string]interface{}{"appium:appActivity": "com.example.Old"},
	}
	assert.Equal(t, "com.example.Main", s.Map()["appium:appActivity"])
}

func TestString_Stable(t *testing.T) {
	s := Set{PlatformName: "Android", AppPackage: "com.example"}
	assert.Equal(t, "{appium:appPackage=com.example platformName=Android}", s.String())
}
