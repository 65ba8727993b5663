package hash

import "golang.org/x/xerrors"

// Mode names the hash-checking mode a construction error occurred under,
// so the error message matches the flag the user would recognize (spec
// §4.2.2, mirroring the original's `HashCheckingMode` Display impl).
type Mode int

const (
	ModeRequire Mode = iota
	ModeVerify
)

func (m Mode) String() string {
	switch m {
	case ModeRequire:
		return "--require-hashes"
	case ModeVerify:
		return "--verify-hashes"
	default:
		return "<unknown hash mode>"
	}
}

// UnpinnedRequirementError is returned by Require/Verify when a
// requirement is not pinned with "==" and is not a direct URL (spec §3,
// §4.2.3).
type UnpinnedRequirementError struct {
	Requirement string
	Mode        Mode
}

func (e *UnpinnedRequirementError) Error() string {
	return xerrors.Errorf(
		"in %s mode, all requirements must have their versions pinned with `==`, but found: %s",
		e.Mode, e.Requirement,
	).Error()
}

// MissingHashesError is returned by Require when a requirement carries
// no digests at all (spec §3: "Every PI entered into a Require map has
// a non-empty digest list").
type MissingHashesError struct {
	Requirement string
	Mode        Mode
}

func (e *MissingHashesError) Error() string {
	return xerrors.Errorf(
		"in %s mode, all requirements must have a hash, but none were provided for: %s",
		e.Mode, e.Requirement,
	).Error()
}
