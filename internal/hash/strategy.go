// Package hash implements the Hash Strategy (HS) described in spec.md
// §4.2: a policy object mapping package identities to required or
// allowed digests, consulted by every archive-fetching path before an
// archive is accepted into resolution.
package hash

import (
	"github.com/distr1/spindle/internal/distid"
	"github.com/distr1/spindle/internal/requirement"
)

// PolicyKind discriminates the variants of a per-distribution Policy.
type PolicyKind int

const (
	// PolicyNone means no hash policy applies; any archive is accepted.
	PolicyNone PolicyKind = iota
	// PolicyGenerate means a digest (sha256) should be computed but not
	// validated against anything.
	PolicyGenerate
	// PolicyValidate means the archive's digest must match one of the
	// listed Digests. An empty list rejects every archive.
	PolicyValidate
)

// Policy is the per-distribution decision returned by Strategy.Get and
// friends (spec §3 "Hash Policy (HP)").
type Policy struct {
	Kind    PolicyKind
	Digests []Digest // only meaningful when Kind == PolicyValidate
}

// Allows reports whether path's contents satisfy p. A None or Generate
// policy always allows; a Validate policy allows iff any listed digest
// matches.
func (p Policy) Allows(path string) (bool, error) {
	switch p.Kind {
	case PolicyNone, PolicyGenerate:
		return true, nil
	case PolicyValidate:
		for _, d := range p.Digests {
			ok, err := d.Matches(path)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// distributionMetadata is implemented by anything HS.Get can be asked
// about: the caller's distribution type, which must be able to report
// the canonical identity used to look it up (spec §4.2.2).
type distributionMetadata interface {
	PackageID() distid.ID
}

// Strategy is the top-level hash policy (spec §3 "Hash Strategy (HS)").
// The zero Strategy behaves as None().
type Strategy struct {
	kind   strategyKind
	hashes map[distid.ID][]Digest
}

type strategyKind int

const (
	strategyNone strategyKind = iota
	strategyGenerate
	strategyVerify
	strategyRequire
)

// None returns the no-op strategy: every Get/GetPackage/GetURL call
// returns PolicyNone and every Allows* call returns true.
func None() Strategy { return Strategy{kind: strategyNone} }

// Generate returns the strategy under which archives are hashed (for
// lockfile generation, say) but never validated.
func Generate() Strategy { return Strategy{kind: strategyGenerate} }

// Get returns the Policy for the given distribution.
func (s Strategy) Get(d distributionMetadata) Policy {
	return s.get(d.PackageID())
}

// GetPackage returns the Policy for the given registry package name.
func (s Strategy) GetPackage(name string) Policy {
	return s.get(distid.FromRegistry(name))
}

// GetURL returns the Policy for the given direct-URL package.
func (s Strategy) GetURL(url string) Policy {
	return s.get(distid.FromURL(url))
}

func (s Strategy) get(id distid.ID) Policy {
	switch s.kind {
	case strategyGenerate:
		return Policy{Kind: PolicyGenerate}
	case strategyVerify:
		if digests, ok := s.hashes[id]; ok {
			return Policy{Kind: PolicyValidate, Digests: digests}
		}
		return Policy{Kind: PolicyNone}
	case strategyRequire:
		// Absent or explicitly empty, both surface as an
		// always-rejecting Validate policy; AllowsPackage/AllowsURL is
		// the fast-fail admission gate for the "absent" case (spec §4.2.4).
		return Policy{Kind: PolicyValidate, Digests: s.hashes[id]}
	default:
		return Policy{Kind: PolicyNone}
	}
}

// AllowsPackage reports whether the given registry package may be
// fetched at all. Only Require denies, and only when the package is
// absent from the map (spec §4.2.2, §4.2.4).
func (s Strategy) AllowsPackage(name string) bool {
	return s.allows(distid.FromRegistry(name))
}

// AllowsURL reports whether the given direct-URL package may be
// fetched at all.
func (s Strategy) AllowsURL(url string) bool {
	return s.allows(distid.FromURL(url))
}

func (s Strategy) allows(id distid.ID) bool {
	if s.kind != strategyRequire {
		return true
	}
	_, ok := s.hashes[id]
	return ok
}

// RequirementDigests pairs an UnresolvedRequirement with the literal
// hash strings the user supplied for it (e.g. from a requirements file's
// "--hash=" annotations), matching the original's
// `impl Iterator<Item = (&UnresolvedRequirement, &[String])>` parameter.
type RequirementDigests struct {
	Requirement requirement.UnresolvedRequirement
	Hashes      []string
}

// Require builds a Strategy in "require hashes" mode: every
// non-marker-skipped requirement must be pinned (named with a single
// "==" specifier, or a direct URL) and must carry at least one digest
// (spec §4.2.2, §8 Invariant 3).
func Require(reqs []RequirementDigests, env *requirement.Environment) (Strategy, error) {
	return build(reqs, env, strategyRequire, ModeRequire)
}

// Verify builds a Strategy in "verify hashes if present" mode: digests
// are optional, but when present the requirement must still be pinned.
func Verify(reqs []RequirementDigests, env *requirement.Environment) (Strategy, error) {
	return build(reqs, env, strategyVerify, ModeVerify)
}

func build(reqs []RequirementDigests, env *requirement.Environment, kind strategyKind, mode Mode) (Strategy, error) {
	hashes := make(map[distid.ID][]Digest)

	for _, rd := range reqs {
		if !rd.Requirement.EvaluateMarkers(env, nil) {
			continue
		}

		if mode == ModeVerify && len(rd.Hashes) == 0 {
			// Hashes are optional in verify mode; skip entirely rather
			// than requiring a pin.
			continue
		}

		id, err := pin(rd.Requirement, mode)
		if err != nil {
			return Strategy{}, err
		}

		if mode == ModeRequire && len(rd.Hashes) == 0 {
			return Strategy{}, &MissingHashesError{Requirement: rd.Requirement.String(), Mode: mode}
		}

		digests := make([]Digest, 0, len(rd.Hashes))
		for _, h := range rd.Hashes {
			d, err := Parse(h)
			if err != nil {
				return Strategy{}, err
			}
			digests = append(digests, d)
		}

		// Last entry wins (spec §3).
		hashes[id] = digests
	}

	return Strategy{kind: kind, hashes: hashes}, nil
}

// pin resolves req to a distid.ID, failing if it is a named requirement
// that isn't pinned with "==" (spec §4.2.3). Direct URLs (including git
// and local path sources) are always allowed.
func pin(req requirement.UnresolvedRequirement, mode Mode) (distid.ID, error) {
	if named, ok := req.AsNamed(); ok {
		if named.Source.Kind == requirement.SourceRegistry {
			if !named.IsPinned() {
				return distid.ID{}, &UnpinnedRequirementError{Requirement: req.String(), Mode: mode}
			}
			return distid.FromRegistry(named.Name), nil
		}
		// Url/Git/Path-sourced named requirement: always allowed.
		return distid.FromURL(named.Source.URL), nil
	}
	if unnamed, ok := req.AsUnnamed(); ok {
		return distid.FromURL(unnamed.URL.Verbatim), nil
	}
	return distid.ID{}, &UnpinnedRequirementError{Requirement: req.String(), Mode: mode}
}
