// Package digest implements the canonical content-address format used
// throughout the store: "sha256-<standard-base64>", the same shape as an
// npm package's dist.integrity field.
package digest

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// CanonicalAlgorithm is the only digest algorithm this package accepts.
const CanonicalAlgorithm = "sha256"

// CanonicalHash is the hash implementation backing CanonicalAlgorithm.
var CanonicalHash = sha256.New

// ErrDigestInvalidFormat is returned when a digest string isn't
// "<algorithm>-<base64>".
var ErrDigestInvalidFormat = errors.New("digest: invalid format")

// ErrUnsupportedDigestAlgorithm is returned when a digest names an
// algorithm other than sha256.
var ErrUnsupportedDigestAlgorithm = errors.New("digest: unsupported algorithm")

// Digest is a validated "sha256-<base64>" content digest string.
type Digest string

// NewDigest builds a Digest from an algorithm name and a hash.Hash whose
// Sum represents the digested content.
func NewDigest(alg string, h hash.Hash) Digest {
	return Digest(fmt.Sprintf("%s-%s", alg, base64.StdEncoding.EncodeToString(h.Sum(nil))))
}

// FromBytes computes the canonical digest of p.
func FromBytes(p []byte) Digest {
	h := CanonicalHash()
	h.Write(p)
	return NewDigest(CanonicalAlgorithm, h)
}

// FromReader consumes rd to EOF and returns its canonical digest.
func FromReader(rd io.Reader) (Digest, error) {
	h := CanonicalHash()
	if _, err := io.Copy(h, rd); err != nil {
		return "", err
	}
	return NewDigest(CanonicalAlgorithm, h), nil
}

// Parse validates s and returns it typed as a Digest.
func Parse(s string) (Digest, error) {
	d := Digest(s)
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// Validate reports whether d is well formed and uses a supported
// algorithm.
func (d Digest) Validate() error {
	i := d.sepIndex()
	if i < 0 {
		return ErrDigestInvalidFormat
	}
	if d.Algorithm() != CanonicalAlgorithm {
		return ErrUnsupportedDigestAlgorithm
	}
	if _, err := base64.StdEncoding.DecodeString(d.Encoded()); err != nil {
		return fmt.Errorf("%w: %v", ErrDigestInvalidFormat, err)
	}
	return nil
}

// Algorithm returns the algorithm portion of the digest.
func (d Digest) Algorithm() string {
	i := d.sepIndex()
	if i < 0 {
		return ""
	}
	return string(d[:i])
}

// Encoded returns the base64-encoded hash portion of the digest.
func (d Digest) Encoded() string {
	i := d.sepIndex()
	if i < 0 {
		return ""
	}
	return string(d[i+1:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return string(d)
}

func (d Digest) sepIndex() int {
	return strings.Index(string(d), "-")
}
