package build

import (
	"strings"

	"github.com/distr1/spindle/internal/requirement"
)

// Backend is the Build Backend Descriptor (BB) from spec.md §3: the
// dotted module name implementing PEP 517/660 hooks, an optional
// attribute path inside that module, and optional extra source-path
// roots prepended to module search during hook execution.
type Backend struct {
	Module      string
	Attribute   string
	SearchPaths []string
}

// Kind is the Build Kind (BK) enumeration from spec.md §3, determining
// hook name suffixing.
type Kind int

const (
	Wheel Kind = iota
	Editable
)

func (k Kind) String() string {
	switch k {
	case Wheel:
		return "wheel"
	case Editable:
		return "editable"
	default:
		return "unknown"
	}
}

// GetRequiresForBuild runs the "get_requires_for_build_<kind>" hook and
// parses its bracketed, single-quoted requirement list (spec §4.1.4,
// §6).
func (d *Daemon) GetRequiresForBuild(backend Backend, kind Kind) ([]string, error) {
	result, err := d.runHook(backend, "get_requires_for_build_"+kind.String(), []string{""})
	if err != nil {
		return nil, err
	}
	return parseRequirementList(result)
}

// parseRequirementList implements spec §4.1.4's naive grammar: strip the
// outer brackets, split on ", ", strip the single-quotes from each
// element, drop empties, and reject anything left over that isn't
// wrapped in quotes (spec §8 scenario 6, §9 Open Question (b): this
// grammar is deliberately left brittle, matching the original).
func parseRequirementList(payload string) ([]string, error) {
	inner := payload
	inner = strings.TrimPrefix(inner, "[")
	inner = strings.TrimSuffix(inner, "]")
	if inner == "" {
		return nil, nil
	}

	var out []string
	for _, item := range strings.Split(inner, ", ") {
		quoted := strings.HasPrefix(item, "'") && strings.HasSuffix(item, "'") && len(item) >= 2
		if !quoted {
			return nil, &InvalidResultError{Payload: item, Reason: "element is not a quoted string"}
		}
		unquoted := item[1 : len(item)-1]
		if unquoted == "" {
			continue
		}
		if err := requirement.ValidateSpecifier(unquoted); err != nil {
			return nil, &InvalidResultError{Payload: unquoted, Reason: err.Error()}
		}
		out = append(out, unquoted)
	}
	return out, nil
}

// PrepareMetadataForBuild runs "prepare_metadata_for_build_<kind>".
// Returns the metadata-directory path (opaque, resolved by the caller
// relative to outDir per spec §9 Open Question (a)) and true, or false
// if the backend declined to implement the optional hook by returning
// an empty result.
func (d *Daemon) PrepareMetadataForBuild(backend Backend, kind Kind, outDir string) (string, bool, error) {
	result, err := d.runHook(backend, "prepare_metadata_for_build_"+kind.String(), []string{outDir, ""})
	if err != nil {
		return "", false, err
	}
	if result == "" {
		return "", false, nil
	}
	return result, true, nil
}

// Build runs "build_<kind>", returning the filename (not path) of the
// produced archive inside outDir.
func (d *Daemon) Build(backend Backend, kind Kind, outDir string, metadataDir string) (string, error) {
	result, err := d.runHook(backend, "build_"+kind.String(), []string{outDir, "", metadataDir})
	if err != nil {
		return "", err
	}
	return result, nil
}
