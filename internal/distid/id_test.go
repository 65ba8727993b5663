package distid_test

import (
	"testing"

	"github.com/distr1/spindle/internal/distid"
)

func TestFromRegistryNormalizes(t *testing.T) {
	cases := []struct{ a, b string }{
		{"Foo_Bar", "foo-bar"},
		{"foo.bar", "foo-bar"},
		{"FOO--BAR", "foo-bar"},
		{"foo___bar", "foo-bar"},
		{"-foo-", "foo"},
	}
	for _, c := range cases {
		if got, want := distid.FromRegistry(c.a).String(), distid.FromRegistry(c.b).String(); got != want {
			t.Errorf("FromRegistry(%q).String() = %q, want %q (normalized form of %q)", c.a, got, want, c.b)
		}
	}
}

func TestFromRegistryEquality(t *testing.T) {
	a := distid.FromRegistry("Foo-Bar")
	b := distid.FromRegistry("foo_bar")
	if a != b {
		t.Errorf("FromRegistry(%q) != FromRegistry(%q), want equal canonical IDs", "Foo-Bar", "foo_bar")
	}
	if a.Kind() != distid.Registry {
		t.Errorf("Kind() = %v, want Registry", a.Kind())
	}
}

func TestFromURLStripsFragmentAndQuery(t *testing.T) {
	a := distid.FromURL("https://example.com/foo.whl#egg=foo")
	b := distid.FromURL("https://example.com/foo.whl?x=1")
	c := distid.FromURL("https://example.com/foo.whl")
	if a != c {
		t.Errorf("FromURL with fragment != FromURL without, want equal")
	}
	if b != c {
		t.Errorf("FromURL with query != FromURL without, want equal")
	}
	if a.Kind() != distid.URL {
		t.Errorf("Kind() = %v, want URL", a.Kind())
	}
}

func TestRegistryAndURLNeverEqual(t *testing.T) {
	r := distid.FromRegistry("foo")
	u := distid.FromURL("foo")
	if r == u {
		t.Error("a Registry ID and a URL ID compared equal")
	}
}
