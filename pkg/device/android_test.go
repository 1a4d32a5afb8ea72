package device

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
)

// skipIfNoDevice skips the test if no device is connected.
func skipIfNoDevice(t *testing.T) {
	t.Helper()
	out, err := exec.Command("adb", "devices").Output()
	if err != nil {
		t.Skip("adb not available")
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "\tdevice") {
			return
		}
	}
	t.Skip("no device connected")
}

func TestCheckReady_Real(t *testing.T) {
	skipIfNoDevice(t)

	bridge, err := NewBridge("", 0)
	require.NoError(t, err)

	dev := New(bridge, "")
	require.NoError(t, dev.CheckReady())

	info, err := dev.Info()
	require.NoError(t, err)
	assert.NotEmpty(t, info.SDK)
}

func TestAndroidDevice_SerialPrefix(t *testing.T) {
	runner := newFakeRunner().on("-s emulator-5554 get-state", "device\n", nil)
	dev := New(runner, "emulator-5554")

	state, err := dev.State()
	require.NoError(t, err)
	assert.Equal(t, "device", state)
	assert.Equal(t, "emulator-5554", dev.Serial())
}

func TestAndroidDevice_NoSerial(t *testing.T) {
	runner := newFakeRunner().on("get-state", "device", nil)
	dev := New(runner, "")

	_, err := dev.State()
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"get-state"}, runner.calls[0])
}

func TestCheckReady(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr bool
	}{
		{
			name: "ready",
			runner: newFakeRunner().
				on("get-state", "device\n", nil).
				on("shell getprop sys.boot_completed", "1\n", nil),
		},
		{
			name:    "offline",
			runner:  newFakeRunner().on("get-state", "offline\n", nil),
			wantErr: true,
		},
		{
			name: "no device",
			runner: newFakeRunner().on("get-state", "", &CommandError{
				Args:   []string{"get-state"},
				Err:    errUnexpected,
				Stderr: "error: no devices/emulators found",
			}),
			wantErr: true,
		},
		{
			name: "still booting",
			runner: newFakeRunner().
				on("get-state", "device\n", nil).
				on("shell getprop sys.boot_completed", "\n", nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.runner, "").CheckReady()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsCode(err, core.CodeDeviceNotReady), "got %v", err)
			assert.True(t, core.IsSkip(err))
		})
	}
}

func TestCheckReady_CarriesBridgeOutput(t *testing.T) {
	runner := newFakeRunner().on("get-state", "", &CommandError{
		Args:   []string{"get-state"},
		Err:    errUnexpected,
		Stderr: "error: no devices/emulators found\n",
	})

	err := New(runner, "").CheckReady()
	var ee *core.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "error: no devices/emulators found", ee.Output())
}

func TestIsInstalled(t *testing.T) {
	const pkg = "tv.twitch.android.app"
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"exact match", "package:tv.twitch.android.app\n", true},
		{"among others", "package:tv.twitch.android.app.beta\npackage:tv.twitch.android.app\r\n", true},
		{"prefix only", "package:tv.twitch.android.app.beta\n", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner().on("shell pm list packages "+pkg, tt.output, nil)
			got, err := New(runner, "").IsInstalled(pkg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsInstalled_QueryFails(t *testing.T) {
	runner := newFakeRunner()
	_, err := New(runner, "").IsInstalled("com.example")
	assert.Error(t, err)
}

func TestListPackages(t *testing.T) {
	runner := newFakeRunner().on("shell pm list packages",
		"package:com.android.settings\npackage:com.example\n\npackage:com.example\nnoise\n", nil)

	pkgs, err := New(runner, "").ListPackages()
	require.NoError(t, err)
	assert.Equal(t, []string{"com.android.settings", "com.example"}, pkgs)
}

func TestInstallCommands(t *testing.T) {
	runner := newFakeRunner().
		on("-s dev1 install -r /tmp/app.apk", "Success\n", nil).
		on("-s dev1 install-multiple -r /tmp/base.apk /tmp/split_config.en.apk", "Success\n", nil)
	dev := New(runner, "dev1")

	out, err := dev.Install("/tmp/app.apk")
	require.NoError(t, err)
	assert.Contains(t, out, "Success")

	_, err = dev.InstallMultiple([]string{"/tmp/base.apk", "/tmp/split_config.en.apk"})
	require.NoError(t, err)
	assert.Len(t, runner.callsWithPrefix("-s dev1 install"), 2)
}

func TestInfo(t *testing.T) {
	runner := newFakeRunner().
		on("-s emulator-5554 shell getprop ro.product.model", "sdk_gphone64\n", nil).
		on("-s emulator-5554 shell getprop ro.build.version.sdk", "34\n", nil).
		on("-s emulator-5554 shell getprop ro.product.brand", "google\n", nil).
		on("-s emulator-5554 shell getprop ro.kernel.qemu", "1\n", nil)

	info, err := New(runner, "emulator-5554").Info()
	require.NoError(t, err)
	assert.Equal(t, Info{
		Serial:     "emulator-5554",
		Model:      "sdk_gphone64",
		SDK:        "34",
		Brand:      "google",
		IsEmulator: true,
	}, info)
}

func TestCommandError_Output(t *testing.T) {
	err := &CommandError{Args: []string{"install"}, Err: errUnexpected, Stdout: "out", Stderr: "  "}
	assert.Equal(t, "out", err.Output())
	assert.Contains(t, err.Error(), "adb install")
	assert.ErrorIs(t, err, errUnexpected)
}
