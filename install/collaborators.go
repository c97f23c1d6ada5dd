// Package install implements the Installer Orchestrator: the pipeline
// that drives the Tarball Unpacker, Content-Addressed Store,
// Dependency Iterator and Package Map Builder to completion for one
// project install.
package install

import (
	"context"
	"errors"
	"io"

	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/digest"
)

// ErrNoLockfile is wrapped by a TreeBuilder's error when the project
// has neither package-lock.json nor npm-shrinkwrap.json. The
// Orchestrator reacts by invoking the LockfileGenerator and building
// the tree again.
var ErrNoLockfile = errors.New("no lockfile found")

// Fetcher opens a tarball byte stream for a dependency spec. It's the
// only collaborator this core requires every call site to supply,
// and is opaque to the core beyond this contract.
type Fetcher interface {
	Fetch(ctx context.Context, name string, dep *deptree.Node) (io.ReadCloser, error)
}

// ManifestResolver fills in a dependency's resolved URL and integrity
// digest when the logical tree didn't already carry them.
type ManifestResolver interface {
	Resolve(ctx context.Context, name string, dep *deptree.Node) (resolved string, integrity digest.Digest, err error)
}

// TreeBuilder produces the logical dependency tree from the project's
// package.json/package-lock.json/npm-shrinkwrap.json.
type TreeBuilder interface {
	Build(ctx context.Context, prefix string) (root *deptree.Node, lockfileIntegrity digest.Digest, err error)
}

// LockfileVerifier checks a lockfile against the project manifest
// before it's trusted. Hard errors trigger regeneration via
// LockfileGenerator.
type LockfileVerifier interface {
	Verify(ctx context.Context, prefix string) (ok bool, warnings []string, errs []string, err error)
}

// LockfileGenerator runs an external subprocess that (re)writes
// package-lock.json.
type LockfileGenerator interface {
	Generate(ctx context.Context, prefix string) error
}

// ScriptRunner executes preinstall/install/postinstall hooks over the
// installed tree.
type ScriptRunner interface {
	Run(ctx context.Context, root *deptree.Node, prefix string) error
}

// BinLinker links a package's declared "bin" entries into the
// project's .bin directory.
type BinLinker interface {
	Link(ctx context.Context, root *deptree.Node, prefix string) error
}

// DirLinker creates the junction-style symlink used when a
// dependency's spec resolves to a local directory rather than a
// tarball.
type DirLinker interface {
	Symlink(ctx context.Context, oldname, newname string) error
}
