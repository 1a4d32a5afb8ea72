package device

import (
	"errors"
	"regexp"
	"strings"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// LauncherCategory is the intent category of an app's launch entry point.
const LauncherCategory = "android.intent.category.LAUNCHER"

var (
	// cmp=tv.twitch.android.app/.core.LandingActivity
	componentPattern = regexp.MustCompile(`\b(?:cmp|component)=([A-Za-z0-9_.]+)/([A-Za-z0-9_.$]+)`)
	// name=tv.twitch.android.app.core.LandingActivity
	namePattern = regexp.MustCompile(`(?m)(?:^|\s)name=([A-Za-z0-9_.$]+)`)
)

// ResolveLauncherActivity asks the package manager which activity handles the
// launcher intent for pkg and returns its fully qualified name.
func (d *AndroidDevice) ResolveLauncherActivity(pkg string) (string, error) {
	out, err := d.Shell("cmd", "package", "resolve-activity", "-c", LauncherCategory, pkg)
	if err != nil {
		resolveErr := core.ErrActivityNotResolvable.
			WithCause(err).
			WithDetails(map[string]interface{}{core.DetailPackage: pkg})
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			resolveErr = resolveErr.WithOutput(cmdErr.Output())
		}
		return "", resolveErr
	}
	return ParseLauncherActivity(pkg, out)
}

// ParseLauncherActivity extracts the activity from resolve-activity output.
// The compact component form is preferred; the verbose name= field is the
// fallback. A relative name (".Sub") is qualified with pkg.
func ParseLauncherActivity(pkg, raw string) (string, error) {
	if m := componentPattern.FindStringSubmatch(raw); m != nil {
		return qualifyActivity(m[1], m[2]), nil
	}
	if m := namePattern.FindStringSubmatch(raw); m != nil {
		return qualifyActivity(pkg, m[1]), nil
	}
	return "", core.ErrActivityNotResolvable.
		WithDetails(map[string]interface{}{core.DetailPackage: pkg}).
		WithOutput(raw)
}

func qualifyActivity(pkg, activity string) string {
	if strings.HasPrefix(activity, ".") {
		return pkg + activity
	}
	return activity
}
