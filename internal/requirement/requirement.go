// Package requirement models the two forms a dependency can take before
// it has been pinned to a resolved distribution: a named requirement
// (optionally version-constrained, resolved through the registry) or an
// unnamed, URL-addressed requirement (a direct URL, git reference, or
// local path). See spec.md §9 Design Notes.
package requirement

import (
	"strings"

	"github.com/distr1/spindle/internal/distid"
)

// Operator is a version specifier comparison operator. Only Equal
// matters to the pinning rule (spec §4.2.3); the others exist so a
// Requirement can round-trip a realistic specifier list.
type Operator string

const (
	Equal              Operator = "=="
	NotEqual           Operator = "!="
	LessThanOrEqual    Operator = "<="
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	GreaterThan        Operator = ">"
	Compatible         Operator = "~="
)

// Specifier is a single version constraint, e.g. "==1.2.3".
type Specifier struct {
	Operator Operator
	Version  string
}

func (s Specifier) String() string {
	return string(s.Operator) + s.Version
}

// SourceKind distinguishes how a requirement's source distribution is
// located.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourceURL
	SourceGit
	SourcePath
)

// Source is a tagged variant over where a named requirement's
// distribution comes from. Registry requirements carry Specifiers;
// Url/Git/Path requirements carry a verbatim URL instead.
type Source struct {
	Kind       SourceKind
	Specifiers []Specifier // only meaningful when Kind == SourceRegistry
	URL        string      // verbatim URL, meaningful for Url/Git/Path
}

// Named is a requirement resolved by package name through a registry
// (or, via Source, through a direct location while still carrying a
// name — e.g. "foo @ https://example/foo.whl").
type Named struct {
	Name   string
	Extras []string
	Source Source
	Marker Marker
}

func (n Named) String() string {
	var b strings.Builder
	b.WriteString(n.Name)
	if len(n.Extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(n.Extras, ","))
		b.WriteByte(']')
	}
	for i, s := range n.Source.Specifiers {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Unnamed is a requirement with no package name, identified purely by a
// direct URL (e.g. a bare path or VCS reference appearing as a
// constraint without "name @" prefix).
type Unnamed struct {
	URL    URLReference
	Marker Marker
}

func (u Unnamed) String() string { return u.URL.Verbatim }

// URLReference carries both the exact text the user wrote and its
// canonical form, mirroring the distinction the original parser keeps
// between "verbatim" and normalized URLs.
type URLReference struct {
	Verbatim  string
	Canonical string
}

// Marker is a minimal marker-expression model: the only construct this
// core evaluates is presence of named extras (spec §4.2.2: "only
// extra-name references are honored" when no environment is supplied).
// A zero Marker is always satisfied.
type Marker struct {
	// RequiresExtra, if non-empty, is satisfied only when that extra name
	// appears in the activated extras set passed to EvaluateMarkers.
	RequiresExtra string
}

// UnresolvedRequirement is a tagged variant over the two requirement
// shapes a dependency list can contain prior to resolution.
type UnresolvedRequirement struct {
	named   *Named
	unnamed *Unnamed
}

// NewNamed wraps a Named requirement.
func NewNamed(n Named) UnresolvedRequirement { return UnresolvedRequirement{named: &n} }

// NewUnnamed wraps an Unnamed requirement.
func NewUnnamed(u Unnamed) UnresolvedRequirement { return UnresolvedRequirement{unnamed: &u} }

// IsNamed reports whether this requirement carries a package name.
func (r UnresolvedRequirement) IsNamed() bool { return r.named != nil }

// AsNamed returns the Named requirement and true, or the zero value and
// false if r is Unnamed.
func (r UnresolvedRequirement) AsNamed() (Named, bool) {
	if r.named == nil {
		return Named{}, false
	}
	return *r.named, true
}

// AsUnnamed returns the Unnamed requirement and true, or the zero value and
// false if r is Named.
func (r UnresolvedRequirement) AsUnnamed() (Unnamed, bool) {
	if r.unnamed == nil {
		return Unnamed{}, false
	}
	return *r.unnamed, true
}

func (r UnresolvedRequirement) String() string {
	if r.named != nil {
		return r.named.String()
	}
	if r.unnamed != nil {
		return r.unnamed.String()
	}
	return "<invalid requirement>"
}

// PackageID returns the distid.ID this requirement would pin to, for
// use as a hash-policy map key. Named registry requirements pin to a
// registry ID; anything else (including named requirements sourced from
// a URL/git/path) pins to a URL ID, mirroring pep508's "Direct URLs are
// always allowed" rule from spec §4.2.3.
func (r UnresolvedRequirement) PackageID() distid.ID {
	if r.named != nil {
		if r.named.Source.Kind == SourceRegistry {
			return distid.FromRegistry(r.named.Name)
		}
		return distid.FromURL(r.named.Source.URL)
	}
	if r.unnamed != nil {
		return distid.FromURL(r.unnamed.URL.Verbatim)
	}
	return distid.ID{}
}

// EvaluateMarkers reports whether this requirement's marker expression
// is satisfied. When env is nil, only extra-name references are
// honored: a requirement that requires no extra, or whose required
// extra is present in activeExtras, evaluates to true (spec §4.2.2).
func (r UnresolvedRequirement) EvaluateMarkers(env *Environment, activeExtras []string) bool {
	m := r.marker()
	if m.RequiresExtra == "" {
		return true
	}
	for _, e := range activeExtras {
		if e == m.RequiresExtra {
			return true
		}
	}
	// With no environment, unresolved extra requirements that don't match
	// the active set are not honored.
	return env != nil && env.HasExtra(m.RequiresExtra)
}

func (r UnresolvedRequirement) marker() Marker {
	if r.named != nil {
		return r.named.Marker
	}
	if r.unnamed != nil {
		return r.unnamed.Marker
	}
	return Marker{}
}

// Environment is a minimal stand-in for a marker-evaluation environment
// (interpreter version, platform, etc). The core does not interpret any
// environment-dependent marker beyond extras (spec §4.2.2); fuller
// marker evaluation is the resolver's concern and out of scope (spec §1).
type Environment struct {
	Extras map[string]bool
}

// HasExtra reports whether extra is activated in env.
func (e *Environment) HasExtra(extra string) bool {
	if e == nil {
		return false
	}
	return e.Extras[extra]
}

// IsPinned reports whether n is a registry requirement with exactly one
// specifier using the equality operator (spec §4.2.3).
func (n Named) IsPinned() bool {
	if n.Source.Kind != SourceRegistry {
		return false
	}
	return len(n.Source.Specifiers) == 1 && n.Source.Specifiers[0].Operator == Equal
}
