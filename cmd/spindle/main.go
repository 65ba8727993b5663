// Command spindle drives one project through the PEP 517/660 build
// hooks over a Build Daemon, optionally enforcing a hash policy over
// the requirements it declares (spec.md §4.1, §4.2).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	spindle "github.com/distr1/spindle"
	"github.com/distr1/spindle/internal/build"
	"github.com/distr1/spindle/internal/daemonpool"
	"github.com/distr1/spindle/internal/hash"
	"github.com/distr1/spindle/internal/requirement"
	"github.com/distr1/spindle/internal/venv"
	"github.com/mattn/go-isatty"
)

// exitStatus mirrors spec.md §6's three-way CLI contract: success,
// resolution failure, or user error.
type exitStatus int

const (
	exitSuccess          exitStatus = 0
	exitResolutionFailed exitStatus = 1
	exitUserError        exitStatus = 2
)

func main() {
	if err := run(); err != nil {
		reportError(err)
		os.Exit(int(exitCodeFor(err)))
	}
}

var (
	venvRoot      = flag.String("venv", "", "root of the prepared execution environment (required)")
	sourceTree    = flag.String("source", ".", "project source tree the build backend runs in")
	backendModule = flag.String("backend", "setuptools.build_meta", "dotted module name implementing the PEP 517/660 hooks")
	backendAttr   = flag.String("backend-attr", "", "attribute path inside -backend, if the hooks live on an object rather than the module")
	backendPath   = flag.String("backend-path", "", "comma-separated extra source roots prepended to the backend's module search path")
	buildKind     = flag.String("kind", "wheel", "build kind: wheel or editable")
	outDir        = flag.String("out", ".", "directory the build backend writes its output into")
	debug         = flag.Bool("debug", false, "forward the build daemon's DEBUG records to standard error")
	requireHashes = flag.Bool("require-hashes", false, "every requirement must be pinned and carry at least one hash")
	verifyHashes  = flag.Bool("verify-hashes", false, "hashes given for a requirement are validated; pins are still required when a hash is present")
	hashesFile    = flag.String("hashes-file", "", "file of newline-separated \"name==version[,sha256:hex,...]\" entries, in addition to any -requirement flags")
)

type requirementFlags []string

func (f *requirementFlags) String() string { return strings.Join(*f, ",") }
func (f *requirementFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

var requirementSpecs requirementFlags

func init() {
	flag.Var(&requirementSpecs, "requirement",
		`requirement to admit, as "name==version[,sha256:hex,...]"; may be repeated`)
}

func run() error {
	flag.Parse()

	if *debug {
		build.Debug = func(format string, args ...interface{}) {
			log.Printf("[daemon] "+format, args...)
		}
	}

	if *venvRoot == "" {
		return &usageError{"-venv is required"}
	}
	kind, err := parseKind(*buildKind)
	if err != nil {
		return err
	}

	specs := []string(requirementSpecs)
	if *hashesFile != "" {
		fromFile, err := readHashesFile(*hashesFile)
		if err != nil {
			return err
		}
		specs = append(specs, fromFile...)
	}

	strategy, err := buildStrategy(specs, *requireHashes, *verifyHashes)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		name, _, _, err := parseRequirementSpec(spec)
		if err != nil {
			return err
		}
		policy := strategy.GetPackage(name)
		log.Printf("hash policy for %s: %s", name, policyKindString(policy.Kind))
		if !strategy.AllowsPackage(name) {
			return &hash.UnpinnedRequirementError{Requirement: name, Mode: hashMode(*requireHashes)}
		}
	}

	ctx, cancel := spindle.InterruptibleContext()
	defer cancel()

	env := venv.New(*venvRoot)
	backend := build.Backend{
		Module:      *backendModule,
		Attribute:   *backendAttr,
		SearchPaths: splitNonEmpty(*backendPath, ","),
	}

	units := []daemonpool.Unit{{Env: env, SourceTree: *sourceTree}}
	return daemonpool.Run(ctx, daemonpool.Pool{Concurrency: 1}, units, func(_ context.Context, d *build.Daemon, _ daemonpool.Unit) error {
		return buildOne(d, backend, kind, *outDir)
	})
}

func buildOne(d *build.Daemon, backend build.Backend, kind build.Kind, outDir string) error {
	requires, err := d.GetRequiresForBuild(backend, kind)
	if err != nil {
		return err
	}
	if len(requires) > 0 {
		log.Printf("build requires: %s", strings.Join(requires, ", "))
	}

	metadataDir, ok, err := d.PrepareMetadataForBuild(backend, kind, outDir)
	if err != nil {
		return err
	}
	if ok {
		metadataDir = filepath.Join(outDir, metadataDir)
		log.Printf("prepared metadata in %s", metadataDir)
	}

	archive, err := d.Build(backend, kind, outDir, metadataDir)
	if err != nil {
		return err
	}
	log.Printf("built %s", archive)
	return nil
}

func parseKind(s string) (build.Kind, error) {
	switch s {
	case "wheel":
		return build.Wheel, nil
	case "editable":
		return build.Editable, nil
	default:
		return 0, &usageError{fmt.Sprintf("unknown -kind %q, want \"wheel\" or \"editable\"", s)}
	}
}

// parseRequirementSpec parses the CLI's simplified "name==version,ALGO:HEX,..."
// requirement syntax into a name, its pinned version (if any), and its
// digest strings, deferring to internal/requirement and internal/hash
// for all semantic validation.
func parseRequirementSpec(spec string) (name, version string, digestStrs []string, err error) {
	parts := strings.Split(spec, ",")
	head := parts[0]
	digestStrs = parts[1:]

	if err := requirement.ValidateSpecifier(head); err != nil {
		return "", "", nil, &usageError{err.Error()}
	}
	if i := strings.Index(head, "=="); i >= 0 {
		name, version = head[:i], head[i+2:]
	} else {
		name = head
	}
	return name, version, digestStrs, nil
}

// readHashesFile loads additional "-requirement"-shaped entries from a
// file, one per non-blank line; "#"-prefixed lines are comments.
func readHashesFile(path string) ([]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &usageError{fmt.Sprintf("reading -hashes-file: %v", err)}
	}
	var specs []string
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		specs = append(specs, line)
	}
	return specs, nil
}

func buildStrategy(specs []string, require, verify bool) (hash.Strategy, error) {
	if require && verify {
		return hash.Strategy{}, &usageError{"-require-hashes and -verify-hashes are mutually exclusive"}
	}
	if !require && !verify {
		return hash.None(), nil
	}

	reqs := make([]hash.RequirementDigests, 0, len(specs))
	for _, spec := range specs {
		name, version, digestStrs, err := parseRequirementSpec(spec)
		if err != nil {
			return hash.Strategy{}, err
		}
		named := requirement.Named{Name: name}
		if version != "" {
			named.Source = requirement.Source{
				Kind:       requirement.SourceRegistry,
				Specifiers: []requirement.Specifier{{Operator: requirement.Equal, Version: version}},
			}
		}
		reqs = append(reqs, hash.RequirementDigests{
			Requirement: requirement.NewNamed(named),
			Hashes:      digestStrs,
		})
	}

	if require {
		return hash.Require(reqs, nil)
	}
	return hash.Verify(reqs, nil)
}

func hashMode(require bool) hash.Mode {
	if require {
		return hash.ModeRequire
	}
	return hash.ModeVerify
}

func policyKindString(k hash.PolicyKind) string {
	switch k {
	case hash.PolicyNone:
		return "none"
	case hash.PolicyGenerate:
		return "generate"
	case hash.PolicyValidate:
		return "validate"
	default:
		return "unknown"
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// usageError marks a malformed invocation (spec §6 exit code 2).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// reportError renders err the way the teacher's CLIs report failures:
// a leading "error: " line, then one "Caused by: " line per wrapped
// cause, colorized only when standard error is a terminal.
func reportError(err error) {
	color := isatty.IsTerminal(os.Stderr.Fd())
	label := func(s string) string {
		if !color {
			return s
		}
		return "\x1b[1;31m" + s + "\x1b[0m"
	}

	fmt.Fprintf(os.Stderr, "%s: %s\n", label("error"), err.Error())
	cause := errors.Unwrap(err)
	for cause != nil {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", label("Caused by"), cause.Error())
		cause = errors.Unwrap(cause)
	}
}

// exitCodeFor maps an error's kind to the exit code spec.md §6
// prescribes: malformed CLI input and hash-policy construction errors
// are user error (2); everything else the daemon or hash package can
// return is a resolution/build failure (1).
func exitCodeFor(err error) exitStatus {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return exitUserError
	}
	var unpinned *hash.UnpinnedRequirementError
	if errors.As(err, &unpinned) {
		return exitUserError
	}
	var missing *hash.MissingHashesError
	if errors.As(err, &missing) {
		return exitUserError
	}
	var parseErr *hash.ParseError
	if errors.As(err, &parseErr) {
		return exitUserError
	}
	return exitResolutionFailed
}
