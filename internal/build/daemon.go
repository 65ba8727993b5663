// Package build implements the Build Daemon (BD) described in spec.md
// §4.1: a supervisor around a long-running child process that executes
// PEP 517/660 build-backend hooks over a line-oriented stdin/stdout
// protocol.
package build

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/distr1/spindle/internal/build/hookd"
	"github.com/distr1/spindle/internal/venv"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// Debug, when non-nil, receives forwarded DEBUG records (spec §7
// "Locally recovered"). It defaults to nil (discard), matching spec
// §4.1.3's "Standard error is discarded by default"; callers that pass
// -debug on the CLI wire this to log.Printf (see cmd/spindle).
var Debug func(format string, args ...interface{})

func debugf(format string, args ...interface{}) {
	if Debug != nil {
		Debug(format, args...)
	}
}

// state is the daemon state machine from spec §3.
type state int

const (
	stateNotStarted state = iota
	stateStarting
	stateIdle
	stateAwaiting
	stateClosed
	stateCrashed
)

// Daemon supervises one build-backend child process. Calls from multiple
// goroutines are serialized by an internal mutex, so at most one hook is
// in flight at a time (spec §5). Callers obtain parallelism by holding
// multiple Daemon instances, one per execution environment.
type Daemon struct {
	env        *venv.Environment
	sourceTree string

	mu           sync.Mutex
	state        state
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	stdout       *bufio.Reader
	closed       bool
	waitDone     chan struct{}
	waitErr      error
	processState *os.ProcessState
}

// New writes the bundled hookd script into env's bin directory and
// returns a Daemon ready to spawn its child on first use. The script is
// written atomically (via a temp file + rename) so a crash mid-write
// never leaves a corrupt copy for a later run to pick up (spec §4.1.2).
func New(env *venv.Environment, sourceTree string) (*Daemon, error) {
	if err := os.MkdirAll(env.BinDir(), 0755); err != nil {
		return nil, xerrors.Errorf("creating bin dir: %w", err)
	}
	f, err := renameio.TempFile("", env.HookdPath())
	if err != nil {
		return nil, xerrors.Errorf("writing hookd script: %w", err)
	}
	defer f.Cleanup()
	if _, err := f.Write(hookd.Source); err != nil {
		return nil, xerrors.Errorf("writing hookd script: %w", err)
	}
	if err := f.Chmod(0755); err != nil {
		return nil, xerrors.Errorf("writing hookd script: %w", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return nil, xerrors.Errorf("writing hookd script: %w", err)
	}

	d := &Daemon{env: env, sourceTree: sourceTree, state: stateNotStarted}
	runtime.SetFinalizer(d, finalizeUnclosedDaemon)
	return d, nil
}

// finalizeUnclosedDaemon is the drop-guard backstop described in spec §4.1.4
// and §9: Go has no deterministic destructors, so this only fires when
// the garbage collector happens to finalize an abandoned Daemon. It is
// not a substitute for calling Close() explicitly — see
// internal/spindletest.AssertClosed for the test-time assertion spec §8
// Invariant 5 calls for.
func finalizeUnclosedDaemon(d *Daemon) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if !closed {
		panic("build.Daemon: Close() not called before the daemon was garbage collected")
	}
}

// ensureStarted lazily spawns the child on first use and respawns it if
// the previously spawned child has exited (spec §4.1.4 "Ensure-started").
func (d *Daemon) ensureStarted() error {
	if d.state == stateClosed {
		return &ClosedError{}
	}

	if !d.processAlive() {
		if err := d.spawn(); err != nil {
			return err
		}
	}

	resp, err := d.receiveUntilActionable()
	if err != nil {
		return err
	}
	if resp.Kind != RespReady {
		return &NotReadyError{}
	}
	d.state = stateIdle
	return nil
}

// processAlive reports whether the previously spawned child is still
// running (spec §4.1.4 "Ensure-started" checks liveness before deciding
// whether to respawn). spawn starts a goroutine that reaps the child
// with cmd.Wait() as soon as it exits and closes waitDone; a signal-0
// probe (kill(pid, 0)) would report an un-reaped zombie as alive
// indefinitely, so liveness here is "has that goroutine reaped it yet",
// not "does the pid still exist".
func (d *Daemon) processAlive() bool {
	if d.cmd == nil || d.waitDone == nil {
		return false
	}
	select {
	case <-d.waitDone:
		return false
	default:
		return true
	}
}

// spawn starts the child process per spec §4.1.5 / §6: the
// environment's interpreter, a single positional argument (the hookd
// script path), stdin/stdout as pipes, stderr to null, working
// directory the project source tree, PATH prepended with the
// environment's bin directory, and VIRTUAL_ENV set to its root.
func (d *Daemon) spawn() error {
	d.state = stateStarting

	cmd := exec.Command(d.env.PythonExecutable(), d.env.HookdPath())
	cmd.Dir = d.sourceTree
	cmd.Env = append(os.Environ(),
		"VIRTUAL_ENV="+d.env.Root,
		"PATH="+d.env.BinDir()+string(os.PathListSeparator)+os.Getenv("PATH"),
	)

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return xerrors.Errorf("opening null device: %w", err)
	}
	cmd.Stderr = devnull

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return xerrors.Errorf("build daemon stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xerrors.Errorf("build daemon stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return xerrors.Errorf("spawning build daemon: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.closed = false

	// Reap eagerly in the background: nothing else calls Wait() between
	// hooks, and an un-reaped exited child is a zombie that a liveness
	// probe based only on the pid (e.g. kill(pid, 0)) cannot tell apart
	// from one still running, which would stop ensureStarted from ever
	// respawning after a crash. waitDone is closed only after
	// processState/waitErr are set, so observing it closed (processAlive,
	// closeLocked) is sufficient to read them without a lock.
	waitDone := make(chan struct{})
	d.waitDone = waitDone
	go func() {
		err := cmd.Wait()
		d.processState = cmd.ProcessState
		d.waitErr = err
		close(waitDone)
	}()

	debugf("spawned new build daemon in %s", d.env.Root)
	return nil
}

// receiveOne reads and parses a single record from the child.
func (d *Daemon) receiveOne() (Response, error) {
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			d.closeLocked()
			return Response{}, &ClosedError{}
		}
		if err != io.EOF {
			d.closeLocked()
			return Response{}, xerrors.Errorf("reading build daemon response: %w", err)
		}
	}
	line = strings.TrimRight(line, "\n")
	return parseResponse(line)
}

// receiveUntilActionable implements spec §4.1.4: loop over Debug/Expect
// records (handled locally) until something the caller must act on
// arrives, translating a Fatal record into a Crashed error.
func (d *Daemon) receiveUntilActionable() (Response, error) {
	for {
		resp, err := d.receiveOne()
		if err != nil {
			return Response{}, err
		}
		switch resp.Kind {
		case RespDebug:
			debugf("%s", resp.Text)
			continue
		case RespExpect:
			continue
		case RespFatal:
			traceback := ""
			if tb, err := d.receiveOne(); err == nil && tb.Kind == RespTraceback {
				traceback = tb.Text
			}
			d.state = stateCrashed
			return Response{}, &CrashedError{Kind: string(resp.ErrorKind), Message: resp.Message, Traceback: traceback}
		default:
			return resp, nil
		}
	}
}

// runHook implements spec §4.1.4 "Run-hook": ensure the daemon is
// started, send the command block, then drain responses until OK,
// ERROR, or an unexpected record arrives.
func (d *Daemon) runHook(backend Backend, hookName string, args []string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return "", err
	}

	d.state = stateAwaiting
	cmd := renderRunCommand(backend.Module, backend.Attribute, backend.SearchPaths, hookName, args)
	if _, err := io.WriteString(d.stdin, cmd); err != nil {
		// Abandon the in-flight command rather than attempt to
		// resynchronize (spec §5 Cancellation): the next caller will
		// observe Closed and respawn.
		d.closeLocked()
		return "", xerrors.Errorf("writing build daemon command: %w", err)
	}

	for {
		resp, err := d.receiveUntilActionable()
		if err != nil {
			return "", err
		}
		switch resp.Kind {
		case RespStdout, RespStderr:
			continue
		case RespOK:
			d.state = stateIdle
			return resp.Text, nil
		case RespError:
			traceback := ""
			if tb, err := d.receiveOne(); err == nil && tb.Kind == RespTraceback {
				traceback = tb.Text
			}
			d.state = stateIdle
			return "", &HookError{Kind: resp.ErrorKind, Message: resp.Message, Traceback: traceback}
		default:
			d.closeLocked()
			return "", &UnexpectedResponseError{Response: resp}
		}
	}
}

// Close marks the daemon closed and, if the child is alive, sends the
// shutdown command and waits for it to exit. Close is idempotent;
// calling it on a never-started daemon returns (nil, nil) (spec §8
// Invariant 5). Close must be called exactly once at every exit path
// (spec §9 "Drop-guard").
func (d *Daemon) Close() (*os.ProcessState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Daemon) closeLocked() (*os.ProcessState, error) {
	// Mark closed before attempting shutdown, so a failure writing the
	// shutdown command is still surfaced rather than swallowed (spec
	// §4.1.4 "Close"). A broken pipe only means the child has already
	// exited without being reaped yet, and is not treated as a failure.
	d.closed = true
	d.state = stateClosed

	if d.cmd == nil {
		return nil, nil
	}

	if d.processAlive() {
		if _, err := io.WriteString(d.stdin, shutdownCommand); err != nil && !errors.Is(err, syscall.EPIPE) {
			return nil, xerrors.Errorf("writing build daemon shutdown command: %w", err)
		}
	}
	<-d.waitDone // reaped by the goroutine spawn() started
	if d.waitErr != nil {
		if _, ok := d.waitErr.(*exec.ExitError); !ok {
			return nil, xerrors.Errorf("waiting for build daemon exit: %w", d.waitErr)
		}
	}
	return d.processState, nil
}

// EnvironmentRoot returns the root of the execution environment this
// daemon was constructed with, for diagnostics.
func (d *Daemon) EnvironmentRoot() string { return d.env.Root }

// HookdScriptPath returns the on-disk location of the copied hookd
// script, for diagnostics and tests.
func (d *Daemon) HookdScriptPath() string { return d.env.HookdPath() }
