// Package deptree defines the logical dependency tree that the
// installer walks: the node shape supplied by an external lockfile
// parser, and a bounded-concurrency visitor that drives per-node work.
package deptree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/tarball"
)

// Node is one entry in the logical dependency tree, as produced by an
// external lockfile parser / tree builder. pkginstall never constructs
// these itself; it only walks them.
type Node struct {
	Name      string
	Version   string
	Resolved  string        // tarball URL; may be empty
	Integrity digest.Digest // may be empty
	Dev       bool
	Optional  bool
	Bundled   bool
	IsRoot    bool

	// Address is the colon-delimited nesting path of this node within
	// the tree, e.g. "root:a:b". The root node's address is "root".
	Address string

	// Metadata is populated by the Installer Orchestrator once the
	// node's package has been fetched and unpacked. It is nil until
	// then, and stays nil for root/bundled nodes.
	Metadata *tarball.Metadata

	Children []*Node
}

// Path returns the node's logical install directory under prefix,
// e.g. Path("/proj") -> "/proj/node_modules/a/node_modules/b" for a
// node nested two deep, following npm's nested node_modules layout.
func (n *Node) Path(prefix string) string {
	if n.IsRoot {
		return prefix
	}
	parts := strings.Split(n.Address, ":")
	// parts[0] is always "root"; the remaining parts are package names
	// at each level of nesting.
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts[1:] {
		b.WriteString("/node_modules/")
		b.WriteString(p)
	}
	return b.String()
}

// Visitor is invoked once per node during a Walk. next recurses into
// the node's children; a visitor that never calls next effectively
// prunes that subtree.
type Visitor func(ctx context.Context, n *Node, next func(ctx context.Context) error) error

// DefaultConcurrency caps in-flight visitors across a Walk: a hard
// bound, not a hint.
const DefaultConcurrency = 50

// ErrAggregate wraps every error raised across a Walk's concurrent
// visitors. Unwrap returns the first one.
type ErrAggregate struct {
	Errs []error
}

func (e *ErrAggregate) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	return fmt.Sprintf("%d errors during tree walk, first: %v", len(e.Errs), e.Errs[0])
}

// Unwrap returns the first underlying error, so errors.Is/As against a
// Walk failure behaves as if only one visitor had failed.
func (e *ErrAggregate) Unwrap() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}

// FirstError unwraps err down to its first underlying cause if it is
// (or wraps) an *ErrAggregate, otherwise returns err unchanged.
func FirstError(err error) error {
	var agg *ErrAggregate
	if errors.As(err, &agg) {
		return agg.Unwrap()
	}
	return err
}
