// Package hookd embeds the bundled hook-runner script that the build
// daemon copies into each execution environment (spec.md §6 "Bundled
// hook script").
package hookd

import _ "embed"

// Source is the verbatim contents of hookd.py.
//
//go:embed hookd.py
var Source []byte
