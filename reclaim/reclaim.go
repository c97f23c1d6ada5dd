// Package reclaim implements the mark-and-sweep reclaimer: given the
// set of optional dependencies whose install failed, it prunes their
// now-dead subtrees from the logical tree and reports which install
// directories were removed.
package reclaim

import (
	"context"
	"fmt"

	"github.com/distribution/pkginstall/deptree"
)

// Remover deletes a dependency's install directory. Callers typically
// back this with an os.RemoveAll-based implementation; it's a narrow
// interface so this package has no direct filesystem dependency.
type Remover interface {
	Remove(ctx context.Context, path string) error
}

// Sweep performs the mark-and-sweep pass over root given failed, the
// set of dep nodes whose install failed but whose Optional flag was
// true. prefix is the install prefix passed to every node's Path. It
// returns the set of purged install directories (each node's
// Path(prefix)); the Orchestrator
// decrements pkgCount by its size.
//
// Mark walks pre-order: any node not in failed is "live". Sweep walks
// post-order: any non-root node that is neither live nor already
// purged has its directory removed and is added to purged.
func Sweep(ctx context.Context, root *deptree.Node, prefix string, failed map[*deptree.Node]bool, rm Remover) (purged map[string]bool, err error) {
	live := mark(root, failed)
	purged = map[string]bool{}

	if err := sweep(ctx, root, prefix, live, purged, rm); err != nil {
		return purged, err
	}
	return purged, nil
}

// mark walks pre-order, returning the set of nodes that are live
// (i.e. not in failed).
func mark(root *deptree.Node, failed map[*deptree.Node]bool) map[*deptree.Node]bool {
	live := map[*deptree.Node]bool{}
	var walk func(n *deptree.Node)
	walk = func(n *deptree.Node) {
		if !failed[n] {
			live[n] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return live
}

// sweep walks post-order, removing any non-root, non-live node's
// install directory.
func sweep(ctx context.Context, n *deptree.Node, prefix string, live map[*deptree.Node]bool, purged map[string]bool, rm Remover) error {
	for _, c := range n.Children {
		if err := sweep(ctx, c, prefix, live, purged, rm); err != nil {
			return err
		}
	}

	if n.IsRoot || live[n] {
		return nil
	}

	path := n.Path(prefix)
	if purged[path] {
		return nil
	}
	if rm != nil {
		if err := rm.Remove(ctx, path); err != nil {
			return fmt.Errorf("reclaim: removing %s: %w", path, err)
		}
	}
	purged[path] = true
	return nil
}
