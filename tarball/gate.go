package tarball

import (
	"io"

	"github.com/distribution/pkginstall/digest"
)

// IntegrityGate is a pass-through reader that maintains a rolling
// sha256 digest over every byte read, so a caller with no pre-known
// integrity for a tarball can compute one inline while still streaming
// straight into the Unpacker. Placed between the
// fetcher and the Unpacker.
type IntegrityGate struct {
	r        io.Reader
	digester digest.Digester
	done     bool
	final    digest.Digest
}

// NewIntegrityGate wraps r, computing the canonical digest of
// everything read through the gate.
func NewIntegrityGate(r io.Reader) *IntegrityGate {
	return &IntegrityGate{r: r, digester: digest.NewCanonicalDigester()}
}

// Read implements io.Reader, feeding every byte into the rolling
// digest before handing it back to the caller.
func (g *IntegrityGate) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if n > 0 {
		g.digester.Hash().Write(p[:n])
	}
	if err == io.EOF {
		g.done = true
		g.final = g.digester.Digest()
	}
	return n, err
}

// Digest returns the digest computed so far. It is only final once the
// wrapped reader has been read to a clean io.EOF; Done reports that.
func (g *IntegrityGate) Digest() digest.Digest { return g.digester.Digest() }

// Done reports whether the gate observed a clean end of stream.
func (g *IntegrityGate) Done() bool { return g.done }
