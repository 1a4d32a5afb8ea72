package config

import (
	"os"
	"path/filepath"
	"sync"
)

// EnvHome overrides the directory relative paths in the config resolve against.
const EnvHome = "MOBILE_HARNESS_HOME"

// home is computed on first use and kept for the life of the process.
var home = sync.OnceValue(findHome)

// Home returns the anchor for relative appFile and reportsDir values: $MOBILE_HARNESS_HOME,
// else the install prefix of a binary laid out as <prefix>/bin/mobile-harness,
// else the working directory.
func Home() string {
	return home()
}

func findHome() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	if prefix, ok := installPrefix(); ok {
		return prefix
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func installPrefix() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	bin := filepath.Dir(exe)
	if filepath.Base(bin) != "bin" {
		return "", false
	}
	return filepath.Dir(bin), true
}
