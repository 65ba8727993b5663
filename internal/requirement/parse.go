package requirement

import (
	"strings"
	"unicode"

	"golang.org/x/xerrors"
)

// ValidateSpecifier performs the minimal shape check a PEP 508
// requirement specifier string must pass: a name token followed by an
// optional extras/version/marker tail, with no internal whitespace
// before any version comparator or marker separator. It does not parse
// the specifier fully (full PEP 508 grammar is the resolver's concern,
// out of scope per spec.md §1) — it exists only to let the daemon's
// naive bracketed-list grammar (spec §9 Open Question (b)) reject
// obviously malformed elements such as "bad req".
func ValidateSpecifier(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return xerrors.New("empty requirement")
	}
	name := s
	if i := strings.IndexAny(s, "[<>=!~; \t"); i >= 0 {
		name = s[:i]
	}
	if name == "" {
		return xerrors.Errorf("requirement %q has no package name", s)
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return xerrors.Errorf("requirement %q has an invalid package name %q", s, name)
		}
	}
	// Whitespace is only allowed inside a "; marker" clause; any other
	// embedded whitespace (e.g. "bad req") is malformed.
	if semi := strings.Index(s, ";"); semi >= 0 {
		s = s[:semi]
	}
	if strings.ContainsAny(s, " \t") {
		return xerrors.Errorf("requirement %q contains unexpected whitespace", s)
	}
	return nil
}
