package digest

import (
	"bytes"
	"testing"
)

func TestFromBytesRoundTrip(t *testing.T) {
	d := FromBytes([]byte("hello world"))
	if d.Algorithm() != CanonicalAlgorithm {
		t.Fatalf("algorithm = %q, want %q", d.Algorithm(), CanonicalAlgorithm)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if FromBytes([]byte("hello world")) != d {
		t.Fatalf("digest not deterministic")
	}
	if FromBytes([]byte("hello worlD")) == d {
		t.Fatalf("digest collided on different input")
	}
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		input string
		err   error
	}{
		{input: "sha256-" + FromBytes(nil).Encoded()},
		{input: "sha1-2jmj7l5rSw0yVb/vlWAYkK/YBwk=", err: ErrUnsupportedDigestAlgorithm},
		{input: "not-a-digest-at-all", err: ErrUnsupportedDigestAlgorithm},
		{input: "sha256-not base64!!", err: ErrDigestInvalidFormat},
	} {
		_, err := Parse(tc.input)
		if tc.err == nil && err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tc.input, err)
		}
		if tc.err != nil && err == nil {
			t.Errorf("Parse(%q) expected error, got nil", tc.input)
		}
	}
}

func TestFromReader(t *testing.T) {
	d, err := FromReader(bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if d != FromBytes([]byte("hello world")) {
		t.Fatalf("FromReader digest mismatch")
	}
}
