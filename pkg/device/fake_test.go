package device

import (
	"strings"
	"sync"
)

// fakeRunner answers bridge commands from a table keyed by the joined args.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     [][]string
}

type fakeResponse struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (f *fakeRunner) on(cmd, out string, err error) *fakeRunner {
	f.responses[cmd] = fakeResponse{out: out, err: err}
	return f
}

func (f *fakeRunner) Run(args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	resp, ok := f.responses[strings.Join(args, " ")]
	if !ok {
		return "", &CommandError{Args: args, Err: errUnexpected, Stderr: "unexpected command"}
	}
	return resp.out, resp.err
}

func (f *fakeRunner) callsWithPrefix(prefix string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errUnexpected = fakeError("exit status 1")

// fakeInstaller records install calls and, for multi-part installs, the
// files that existed on disk at call time.
type fakeInstaller struct {
	singles   []string
	multiples [][]string
	seenParts []string
	out       string
	err       error
}

func (f *fakeInstaller) Install(apkPath string) (string, error) {
	f.singles = append(f.singles, apkPath)
	return f.out, f.err
}

func (f *fakeInstaller) InstallMultiple(apkPaths []string) (string, error) {
	f.multiples = append(f.multiples, apkPaths)
	for _, p := range apkPaths {
		if fileExists(p) {
			f.seenParts = append(f.seenParts, p)
		}
	}
	return f.out, f.err
}
