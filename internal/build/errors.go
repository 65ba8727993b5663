package build

import "golang.org/x/xerrors"

// UnknownResponseError is returned when a daemon record's keyword isn't
// recognized at all (spec §4.1.3).
type UnknownResponseError struct {
	Line string
}

func (e *UnknownResponseError) Error() string {
	return xerrors.Errorf("unknown response from build daemon: %s", e.Line).Error()
}

// UnexpectedResponseError is returned when an otherwise well-formed
// record arrives somewhere the protocol doesn't allow it (e.g. a second
// READY mid-hook).
type UnexpectedResponseError struct {
	Response Response
}

func (e *UnexpectedResponseError) Error() string {
	return xerrors.Errorf("unexpected response from build daemon: %+v", e.Response).Error()
}

// EmptyResponseError is returned for a blank line where a keyword was
// expected.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "unexpected empty response from build daemon"
}

// UnknownErrorKindError is returned when an ERROR record's kind token
// doesn't match any of the closed set in spec §4.1.3.
type UnknownErrorKindError struct {
	Text string
}

func (e *UnknownErrorKindError) Error() string {
	return xerrors.Errorf("unknown error kind reported by build daemon: %s", e.Text).Error()
}

// NotReadyError is returned when the daemon's first actionable record
// after spawn isn't READY.
type NotReadyError struct{}

func (e *NotReadyError) Error() string {
	return "build daemon never reported ready"
}

// ClosedError is returned when the daemon's child process has exited
// (expectedly or not) and the caller tries to use it without triggering
// a respawn.
type ClosedError struct{}

func (e *ClosedError) Error() string {
	return "build daemon died unexpectedly"
}

// CrashedError reports a FATAL record: the child is exiting abnormally.
// Once returned, the Daemon must be respawned before reuse (spec §7).
type CrashedError struct {
	Kind      string
	Message   string
	Traceback string
}

func (e *CrashedError) Error() string {
	return xerrors.Errorf("build daemon crashed with fatal error. %s: %s\n%s", e.Kind, e.Message, e.Traceback).Error()
}

// HookError reports a recoverable, categorized hook failure (an ERROR
// record followed by its TRACEBACK).
type HookError struct {
	Kind      HookErrorKind
	Message   string
	Traceback string
}

func (e *HookError) Error() string {
	return xerrors.Errorf("build daemon encountered error running hook: %s\n%s", e.Message, e.Traceback).Error()
}

// InvalidResultError reports a hook's OK payload failing to parse
// according to its hook-specific grammar (spec §4.1.4, §8 scenario 6).
type InvalidResultError struct {
	Payload string
	Reason  string
}

func (e *InvalidResultError) Error() string {
	return xerrors.Errorf("build daemon encountered error parsing hook result %s: %s", e.Payload, e.Reason).Error()
}
