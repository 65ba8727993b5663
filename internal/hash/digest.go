package hash

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"golang.org/x/exp/mmap"
	"golang.org/x/xerrors"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// hexLen is the expected lowercase-hex length for each algorithm's digest.
var hexLen = map[Algorithm]int{
	MD5:    32,
	SHA256: 64,
	SHA384: 96,
	SHA512: 128,
}

func (a Algorithm) new() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		return nil
	}
}

// Digest is a single (algorithm, hex) pair, as specified in spec.md §3.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// String renders d in its canonical "ALGO:HEX" form.
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// Equal reports whether d and o denote the same digest.
func (d Digest) Equal(o Digest) bool {
	return d.Algorithm == o.Algorithm && d.Hex == o.Hex
}

// Parse parses s in the "ALGO:HEX" form specified by spec.md §3/§6.
// Parsing fails if the algorithm is unknown or the hex payload has the
// wrong length for that algorithm.
func Parse(s string) (Digest, error) {
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, &ParseError{Input: s, Reason: "missing ':' separator"}
	}
	a := Algorithm(strings.ToLower(algo))
	wantLen, known := hexLen[a]
	if !known {
		return Digest{}, &ParseError{Input: s, Reason: "unknown algorithm " + algo}
	}
	hexPart = strings.ToLower(hexPart)
	if len(hexPart) != wantLen {
		return Digest{}, &ParseError{Input: s, Reason: "wrong hex length for " + string(a)}
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return Digest{}, &ParseError{Input: s, Reason: "invalid hex: " + err.Error()}
	}
	return Digest{Algorithm: a, Hex: hexPart}, nil
}

// ParseError reports a malformed digest string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return xerrors.Errorf("invalid hash digest %q: %s", e.Input, e.Reason).Error()
}

// ComputeDigest computes the digest of the file at path under algo,
// reading it via a read-only memory mapping (the same technique the
// installer uses for squashfs images) rather than buffering the whole
// file in memory.
func ComputeDigest(path string, algo Algorithm) (Digest, error) {
	h := algo.new()
	if h == nil {
		return Digest{}, xerrors.Errorf("compute digest %s: unsupported algorithm %q", path, algo)
	}
	r, err := mmap.Open(path)
	if err != nil {
		return Digest{}, xerrors.Errorf("compute digest %s: %w", path, err)
	}
	defer r.Close()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, int64(r.Len()))); err != nil {
		return Digest{}, xerrors.Errorf("compute digest %s: %w", path, err)
	}
	return Digest{Algorithm: algo, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Matches reports whether the digest of the file at path, under d's
// algorithm, equals d.
func (d Digest) Matches(path string) (bool, error) {
	got, err := ComputeDigest(path, d.Algorithm)
	if err != nil {
		return false, err
	}
	return got.Equal(d), nil
}
