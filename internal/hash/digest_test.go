package hash_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/spindle/internal/hash"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"sha256:" + fixedHex(64),
		"md5:" + fixedHex(32),
		"sha384:" + fixedHex(96),
		"sha512:" + fixedHex(128),
	}
	for _, in := range cases {
		d, err := hash.Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := d.String(); got != in {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, in)
		}
	}
}

func TestParseUppercaseNormalizes(t *testing.T) {
	in := "SHA256:" + upper(fixedHex(64))
	d, err := hash.Parse(in)
	if err != nil {
		t.Fatalf("Parse(%q): %v", in, err)
	}
	if d.Algorithm != hash.SHA256 {
		t.Errorf("Algorithm = %q, want sha256", d.Algorithm)
	}
	if d.Hex != fixedHex(64) {
		t.Errorf("Hex = %q, want lowercase canonical form", d.Hex)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"nocolon",
		"bogus:" + fixedHex(64),
		"sha256:tooshort",
		"sha256:" + string(make([]byte, 64)), // null bytes, not hex
	}
	for _, in := range cases {
		if _, err := hash.Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestComputeDigestAndMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.whl")
	if err := os.WriteFile(path, []byte("package contents"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := hash.ComputeDigest(path, hash.SHA256)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := d.Matches(path)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Matches() = false, want true for the digest just computed")
	}

	other := hash.Digest{Algorithm: hash.SHA256, Hex: fixedHex(64)}
	ok, err = other.Matches(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Matches() = true for an unrelated digest, want false")
	}
}

func fixedHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "0123456789abcdef"[i%16]
	}
	return string(b)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
