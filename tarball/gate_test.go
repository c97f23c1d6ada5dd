package tarball

import (
	"bytes"
	"io"
	"testing"

	"github.com/distribution/pkginstall/digest"
)

func TestIntegrityGateComputesDigestOnEOF(t *testing.T) {
	content := []byte("left-pad tarball bytes")
	gate := NewIntegrityGate(bytes.NewReader(content))

	if _, err := io.Copy(io.Discard, gate); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if !gate.Done() {
		t.Fatal("expected Done() after clean EOF")
	}
	if want := digest.FromBytes(content); gate.Digest() != want {
		t.Fatalf("Digest() = %q, want %q", gate.Digest(), want)
	}
}
