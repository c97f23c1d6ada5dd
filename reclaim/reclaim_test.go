package reclaim

import (
	"context"
	"testing"

	"github.com/distribution/pkginstall/deptree"
)

type fakeRemover struct{ removed []string }

func (f *fakeRemover) Remove(ctx context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func TestSweepPurgesOnlyFailedOptional(t *testing.T) {
	root := &deptree.Node{IsRoot: true, Address: "root"}
	live := &deptree.Node{Address: "root:live", Optional: true}
	dead := &deptree.Node{Address: "root:dead", Optional: true}
	root.Children = []*deptree.Node{live, dead}

	failed := map[*deptree.Node]bool{dead: true}
	rm := &fakeRemover{}

	purged, err := Sweep(context.Background(), root, "/proj", failed, rm)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	deadPath := dead.Path("/proj")
	livePath := live.Path("/proj")

	if !purged[deadPath] {
		t.Fatalf("purged = %v, want %q", purged, deadPath)
	}
	if purged[livePath] {
		t.Fatalf("purged = %v, unexpectedly includes live %q", purged, livePath)
	}
	if len(rm.removed) != 1 || rm.removed[0] != deadPath {
		t.Fatalf("removed = %v", rm.removed)
	}
}

func TestSweepNeverPurgesRoot(t *testing.T) {
	root := &deptree.Node{IsRoot: true, Address: "root"}
	failed := map[*deptree.Node]bool{root: true}

	purged, err := Sweep(context.Background(), root, "/proj", failed, &fakeRemover{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(purged) != 0 {
		t.Fatalf("purged = %v, want empty", purged)
	}
}

func TestSweepOnlyPurgesNodesInFailedSet(t *testing.T) {
	// Mark only treats nodes explicitly named in failed as non-live;
	// it does not implicitly cascade to descendants, so
	// a child not itself in failed stays live even under a purged
	// parent.
	root := &deptree.Node{IsRoot: true, Address: "root"}
	parent := &deptree.Node{Address: "root:a", Optional: true}
	child := &deptree.Node{Address: "root:a:b"}
	parent.Children = []*deptree.Node{child}
	root.Children = []*deptree.Node{parent}

	failed := map[*deptree.Node]bool{parent: true}
	rm := &fakeRemover{}

	purged, err := Sweep(context.Background(), root, "/proj", failed, rm)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(purged) != 1 || !purged[parent.Path("/proj")] {
		t.Fatalf("purged = %v, want only parent purged", purged)
	}
}
