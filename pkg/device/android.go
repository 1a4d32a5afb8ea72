// Package device provides Android device management via ADB.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// StateDevice is what `adb get-state` prints for a connected, authorized device.
const StateDevice = "device"

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial string
	runner Runner
}

// Info contains basic device information.
type Info struct {
	Serial     string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// New creates an AndroidDevice that issues commands through runner.
// An empty serial lets adb pick its default device.
func New(runner Runner, serial string) *AndroidDevice {
	return &AndroidDevice{
		serial: serial,
		runner: runner,
	}
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(args ...string) (string, error) {
	return d.adb(append([]string{"shell"}, args...)...)
}

// State returns the connection state reported by the bridge.
func (d *AndroidDevice) State() (string, error) {
	out, err := d.adb("get-state")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CheckReady returns ErrDeviceNotReady unless the bridge reports a connected device.
func (d *AndroidDevice) CheckReady() error {
	state, err := d.State()
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return core.ErrDeviceNotReady.WithCause(err).WithOutput(cmdErr.Output())
		}
		return core.ErrDeviceNotReady.WithCause(err)
	}
	if state != StateDevice {
		return core.ErrDeviceNotReady.WithMessage(fmt.Sprintf("device state is %q, not %q", state, StateDevice))
	}
	if !d.BootCompleted() {
		return core.ErrDeviceNotReady.WithMessage("device has not finished booting")
	}
	return nil
}

// BootCompleted reports whether the system server has finished booting.
func (d *AndroidDevice) BootCompleted() bool {
	out, err := d.Shell("getprop", "sys.boot_completed")
	return err == nil && strings.TrimSpace(out) == "1"
}

// ListPackages returns the package ids installed on the device.
func (d *AndroidDevice) ListPackages(filter ...string) ([]string, error) {
	out, err := d.Shell(append([]string{"pm", "list", "packages"}, filter...)...)
	if err != nil {
		return nil, err
	}
	return parsePackageList(out), nil
}

func parsePackageList(out string) []string {
	lines := lo.Map(strings.Split(out, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})
	pkgs := lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		name, ok := strings.CutPrefix(line, "package:")
		return name, ok && name != ""
	})
	return lo.Uniq(pkgs)
}

// IsInstalled checks if a package is installed.
func (d *AndroidDevice) IsInstalled(pkg string) (bool, error) {
	pkgs, err := d.ListPackages(pkg)
	if err != nil {
		return false, err
	}
	return lo.Contains(pkgs, pkg), nil
}

// Install installs a single APK, replacing any existing install.
func (d *AndroidDevice) Install(apkPath string) (string, error) {
	return d.adb("install", "-r", apkPath)
}

// InstallMultiple installs all parts of a split APK in one atomic session.
func (d *AndroidDevice) InstallMultiple(apkPaths []string) (string, error) {
	return d.adb(append([]string{"install-multiple", "-r"}, apkPaths...)...)
}

// Info returns device information.
func (d *AndroidDevice) Info() (Info, error) {
	info := Info{Serial: d.serial}

	if model, err := d.Shell("getprop", "ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if sdk, err := d.Shell("getprop", "ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if brand, err := d.Shell("getprop", "ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}

	// Check if emulator
	qemu, _ := d.Shell("getprop", "ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(qemu) == "1" || strings.HasPrefix(d.serial, "emulator-")

	return info, nil
}

// adb executes an ADB command against this device.
func (d *AndroidDevice) adb(args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)
	return d.runner.Run(cmdArgs...)
}
