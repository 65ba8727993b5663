package requirement_test

import (
	"testing"

	"github.com/distr1/spindle/internal/requirement"
)

func TestNamedIsPinned(t *testing.T) {
	cases := []struct {
		name   string
		source requirement.Source
		want   bool
	}{
		{
			name: "single equals",
			source: requirement.Source{
				Kind:       requirement.SourceRegistry,
				Specifiers: []requirement.Specifier{{Operator: requirement.Equal, Version: "1.0"}},
			},
			want: true,
		},
		{
			name:   "no specifiers",
			source: requirement.Source{Kind: requirement.SourceRegistry},
			want:   false,
		},
		{
			name: "range, not pinned",
			source: requirement.Source{
				Kind:       requirement.SourceRegistry,
				Specifiers: []requirement.Specifier{{Operator: requirement.GreaterThanOrEqual, Version: "1.0"}},
			},
			want: false,
		},
		{
			name: "url source, never pinned by IsPinned",
			source: requirement.Source{Kind: requirement.SourceURL, URL: "https://example.com/foo.whl"},
			want: false,
		},
	}
	for _, c := range cases {
		n := requirement.Named{Name: "foo", Source: c.source}
		if got := n.IsPinned(); got != c.want {
			t.Errorf("%s: IsPinned() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPackageIDRegistryVsURL(t *testing.T) {
	named := requirement.NewNamed(requirement.Named{
		Name: "foo",
		Source: requirement.Source{
			Kind:       requirement.SourceRegistry,
			Specifiers: []requirement.Specifier{{Operator: requirement.Equal, Version: "1.0"}},
		},
	})
	if named.PackageID().Kind().String() != "registry" {
		t.Errorf("registry-sourced Named.PackageID().Kind() = %v, want registry", named.PackageID().Kind())
	}

	urlSourced := requirement.NewNamed(requirement.Named{
		Name:   "foo",
		Source: requirement.Source{Kind: requirement.SourceURL, URL: "https://example.com/foo.whl"},
	})
	if urlSourced.PackageID().Kind().String() != "url" {
		t.Errorf("url-sourced Named.PackageID().Kind() = %v, want url", urlSourced.PackageID().Kind())
	}

	unnamed := requirement.NewUnnamed(requirement.Unnamed{
		URL: requirement.URLReference{Verbatim: "https://example.com/bar.whl"},
	})
	if unnamed.PackageID().Kind().String() != "url" {
		t.Errorf("Unnamed.PackageID().Kind() = %v, want url", unnamed.PackageID().Kind())
	}
}

func TestEvaluateMarkersExtras(t *testing.T) {
	withExtra := requirement.NewNamed(requirement.Named{
		Name:   "foo",
		Marker: requirement.Marker{RequiresExtra: "test"},
	})
	if withExtra.EvaluateMarkers(nil, nil) {
		t.Error("EvaluateMarkers() = true with no active extras, want false")
	}
	if !withExtra.EvaluateMarkers(nil, []string{"test"}) {
		t.Error("EvaluateMarkers() = false with the required extra active, want true")
	}

	plain := requirement.NewNamed(requirement.Named{Name: "foo"})
	if !plain.EvaluateMarkers(nil, nil) {
		t.Error("EvaluateMarkers() = false for a requirement with no marker, want true")
	}
}

func TestValidateSpecifier(t *testing.T) {
	valid := []string{"foo", "foo>=1.0", "foo==1.0", "foo_bar.baz~=2"}
	for _, s := range valid {
		if err := requirement.ValidateSpecifier(s); err != nil {
			t.Errorf("ValidateSpecifier(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{"", "bad req", "   ", "foo >=1.0"}
	for _, s := range invalid {
		if err := requirement.ValidateSpecifier(s); err == nil {
			t.Errorf("ValidateSpecifier(%q) succeeded, want error", s)
		}
	}
}

func TestNamedString(t *testing.T) {
	n := requirement.NewNamed(requirement.Named{
		Name:   "foo",
		Extras: []string{"test", "dev"},
		Source: requirement.Source{
			Kind:       requirement.SourceRegistry,
			Specifiers: []requirement.Specifier{{Operator: requirement.Equal, Version: "1.0"}},
		},
	})
	if got, want := n.String(), "foo[test,dev]==1.0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
