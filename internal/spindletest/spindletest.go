// Package spindletest provides subprocess-harness test helpers, adapted
// from the teacher's internal/distritest: instead of spawning a real
// `distri export` process, it re-execs the test binary itself as a
// scripted fake hookd child, so internal/build's tests can drive the
// real Build Daemon wire protocol (spec.md §4.1.3) without requiring a
// Python interpreter.
package spindletest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distr1/spindle/internal/build"
	"github.com/distr1/spindle/internal/venv"
)

const (
	envFlag   = "SPINDLE_FAKE_HOOKD"
	envScript = "SPINDLE_FAKE_HOOKD_SCRIPT"
)

// FakeHookdStep describes one scripted response: after reading (and
// discarding) one "run" command from stdin, the fake
// hookd process emits Lines verbatim, then exits immediately if
// ExitAfter is set (simulating spec §8 scenario 3, a crash mid-hook).
type FakeHookdStep struct {
	Lines     []string `json:"lines"`
	ExitAfter bool     `json:"exit_after"`
}

// FakeHookdScript is the ordered list of steps a fake hookd process
// plays back, one per command block it receives.
type FakeHookdScript struct {
	Steps []FakeHookdStep `json:"steps"`
}

// MaybeRunFakeHookd is called from a package's TestMain before
// m.Run(). When the process was re-exec'd by NewFakeEnvironment (as
// detected by envFlag), it plays back the scripted protocol on
// stdin/stdout and calls os.Exit — it never returns in that case.
// Otherwise it returns immediately, letting the normal test binary run.
func MaybeRunFakeHookd() {
	if os.Getenv(envFlag) != "1" {
		return
	}
	os.Exit(runFakeHookd())
}

func runFakeHookd() int {
	var script FakeHookdScript
	if raw := os.Getenv(envScript); raw != "" {
		if err := json.Unmarshal([]byte(raw), &script); err != nil {
			fmt.Fprintln(os.Stderr, "spindletest: decoding fake hookd script:", err)
			return 1
		}
	}

	emit := func(line string) {
		fmt.Fprintln(os.Stdout, line)
	}

	emit("READY")

	in := bufio.NewReader(os.Stdin)
	readLine := func() (string, bool) {
		line, err := in.ReadString('\n')
		trimmed := trimNewline(line)
		if err != nil {
			if err == io.EOF && trimmed == "" {
				return "", false
			}
			return trimmed, true
		}
		return trimmed, true
	}
	readBlock := func() ([]string, bool) {
		var lines []string
		for {
			line, ok := readLine()
			if !ok {
				return lines, len(lines) > 0
			}
			if line == "" {
				return lines, true
			}
			lines = append(lines, line)
		}
	}
	// readExact mirrors hookd.py's _hook_arg_count: a recognized hook
	// name carries a fixed number of argument lines, so the reader must
	// consume exactly that many rather than stop at the first blank one
	// (an empty argument and the block terminator are otherwise
	// indistinguishable on the wire).
	readExact := func(n int) ([]string, bool) {
		lines := make([]string, 0, n)
		for i := 0; i < n; i++ {
			line, ok := readLine()
			if !ok {
				return nil, false
			}
			lines = append(lines, line)
		}
		if _, ok := readLine(); !ok { // consume the block terminator
			return nil, false
		}
		return lines, true
	}

	step := 0
	for {
		// A "run" command spans two blocks on the wire: the backend
		// block (starting with the literal "run" line, blank-terminated)
		// and a separate hook-name/argument block. "shutdown" is a single
		// block on its own. Contents are discarded either way — only
		// real build.Daemon tests care what was sent, by inspecting the
		// scripted responses they get back — but the argument block must
		// still be consumed with the same fixed-count framing hookd.py
		// uses, or a blank argument line desyncs the next command.
		block, ok := readBlock()
		if !ok && len(block) == 0 {
			return 0 // EOF, parent closed stdin
		}
		if len(block) == 1 && block[0] == "shutdown" {
			emit("SHUTDOWN")
			return 0
		}

		hookName, ok := readLine()
		if !ok {
			return 0
		}
		if n, known := hookArgCount(hookName); known {
			if _, ok := readExact(n); !ok {
				return 0
			}
		} else if _, ok := readBlock(); !ok {
			return 0
		}

		if step >= len(script.Steps) {
			// Nothing left scripted for this command; end the session.
			return 0
		}
		s := script.Steps[step]
		step++
		for _, l := range s.Lines {
			emit(l)
		}
		if s.ExitAfter {
			return 1
		}
	}
}

// hookArgCount mirrors hookd.py's _HOOK_ARG_COUNTS: the fixed number of
// argument lines a recognized hook name carries.
func hookArgCount(hookName string) (int, bool) {
	for _, c := range []struct {
		prefix string
		count  int
	}{
		{"get_requires_for_build_", 1},
		{"prepare_metadata_for_build_", 2},
		{"build_", 3},
	} {
		if strings.HasPrefix(hookName, c.prefix) {
			return c.count, true
		}
	}
	return 0, false
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// NewFakeEnvironment builds a venv.Environment whose "python3" is a
// symlink back to the running test binary, and arranges for that
// binary to behave as a scripted fake hookd when re-exec'd (via
// MaybeRunFakeHookd in the package's TestMain). The environment and its
// temp directory are cleaned up automatically at test end.
func NewFakeEnvironment(t testing.TB, script FakeHookdScript) *venv.Environment {
	t.Helper()

	root := t.TempDir()
	env := venv.New(root)
	if err := os.MkdirAll(env.BinDir(), 0755); err != nil {
		t.Fatalf("spindletest: %v", err)
	}

	self, err := os.Executable()
	if err != nil {
		t.Fatalf("spindletest: locating test binary: %v", err)
	}
	self, err = filepath.Abs(self)
	if err != nil {
		t.Fatalf("spindletest: %v", err)
	}
	if err := os.Symlink(self, env.PythonExecutable()); err != nil {
		t.Fatalf("spindletest: symlinking fake interpreter: %v", err)
	}

	encoded, err := json.Marshal(script)
	if err != nil {
		t.Fatalf("spindletest: encoding fake hookd script: %v", err)
	}
	t.Setenv(envFlag, "1")
	t.Setenv(envScript, string(encoded))

	return env
}

// AssertClosed calls d.Close(), failing the test if it returns an
// error. It exists so every test exercising a Daemon can assert, per
// spec.md §8 Invariant 5 and §9 "Drop-guard", that no child process is
// left running when the test ends.
func AssertClosed(t testing.TB, d *build.Daemon) {
	t.Helper()
	if _, err := d.Close(); err != nil {
		t.Fatalf("closing build daemon: %v", err)
	}
}

// RemoveAll wraps os.RemoveAll and fails the test on failure, matching
// the teacher's internal/distritest.RemoveAll.
func RemoveAll(t testing.TB, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
