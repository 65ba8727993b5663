package build_test

import (
	"os"
	"testing"

	"github.com/distr1/spindle/internal/build"
	"github.com/distr1/spindle/internal/spindletest"
	"github.com/google/go-cmp/cmp"
)

func TestMain(m *testing.M) {
	spindletest.MaybeRunFakeHookd()
	os.Exit(m.Run())
}

var backend = build.Backend{Module: "setuptools.build_meta"}

func TestGetRequiresForBuildHappyPath(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{
		Steps: []spindletest.FakeHookdStep{
			{Lines: []string{"OK ['setuptools>=42', 'wheel']", "READY"}},
		},
	})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spindletest.AssertClosed(t, d)

	got, err := d.GetRequiresForBuild(backend, build.Wheel)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"setuptools>=42", "wheel"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetRequiresForBuild() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRequiresForBuildEmptyList(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{
		Steps: []spindletest.FakeHookdStep{
			{Lines: []string{"OK []", "READY"}},
		},
	})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spindletest.AssertClosed(t, d)

	got, err := d.GetRequiresForBuild(backend, build.Wheel)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("GetRequiresForBuild() = %v, want empty", got)
	}
}

func TestRunHookRecoverableError(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{
		Steps: []spindletest.FakeHookdStep{
			{Lines: []string{
				"ERROR HookRuntimeError build failed",
				"TRACEBACK Traceback (most recent call last):\\nRuntimeError: build failed",
				"READY",
			}},
			// The daemon survives a recoverable hook error; a second hook
			// call should succeed without a respawn.
			{Lines: []string{"OK mypkg-1.0-py3-none-any.whl", "READY"}},
		},
	})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spindletest.AssertClosed(t, d)

	_, err = d.Build(backend, build.Wheel, t.TempDir(), "")
	var hookErr *build.HookError
	if err == nil {
		t.Fatal("Build() succeeded, want HookError")
	}
	if !asHookError(err, &hookErr) {
		t.Fatalf("Build() error = %v, want *HookError", err)
	}
	if hookErr.Kind != build.HookRuntimeError {
		t.Errorf("HookError.Kind = %v, want HookRuntimeError", hookErr.Kind)
	}

	archive, err := d.Build(backend, build.Wheel, t.TempDir(), "")
	if err != nil {
		t.Fatalf("second Build() call after recoverable error: %v", err)
	}
	if archive != "mypkg-1.0-py3-none-any.whl" {
		t.Errorf("Build() = %q, want mypkg-1.0-py3-none-any.whl", archive)
	}
}

func TestRunHookCrashMidHook(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{
		Steps: []spindletest.FakeHookdStep{
			{
				Lines:     []string{"FATAL ImportError no module named foo", "TRACEBACK Traceback...\\nImportError: no module named foo"},
				ExitAfter: true,
			},
		},
	})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spindletest.AssertClosed(t, d)

	_, err = d.Build(backend, build.Wheel, t.TempDir(), "")
	var crashed *build.CrashedError
	if !asCrashedError(err, &crashed) {
		t.Fatalf("Build() error = %v, want *CrashedError", err)
	}
}

func TestPrepareMetadataForBuildDeclined(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{
		Steps: []spindletest.FakeHookdStep{
			{Lines: []string{"OK ", "READY"}},
		},
	})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spindletest.AssertClosed(t, d)

	_, ok, err := d.PrepareMetadataForBuild(backend, build.Wheel, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("PrepareMetadataForBuild() ok = true, want false for empty OK payload")
	}
}

func TestCloseNeverStarted(t *testing.T) {
	env := spindletest.NewFakeEnvironment(t, spindletest.FakeHookdScript{})
	d, err := build.New(env, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if state, err := d.Close(); err != nil || state != nil {
		t.Errorf("Close() on never-started daemon = (%v, %v), want (nil, nil)", state, err)
	}
}

func asHookError(err error, target **build.HookError) bool {
	he, ok := err.(*build.HookError)
	if !ok {
		return false
	}
	*target = he
	return true
}

func asCrashedError(err error, target **build.CrashedError) bool {
	ce, ok := err.(*build.CrashedError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
