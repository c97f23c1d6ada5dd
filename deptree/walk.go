package deptree

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Walk drives visitor over root and every descendant, pre-order, with
// at most concurrency visitors in flight at once across the whole
// tree (not per level): a node's children only acquire their slot
// once the parent visitor has actually started running and called
// next, so the bound is a true in-flight cap rather than a
// breadth-first level cap. A concurrency <= 0 uses DefaultConcurrency.
//
// Every error returned by a visitor is collected; Walk returns nil if
// none occurred, the lone error if exactly one occurred, or an
// *ErrAggregate otherwise.
func Walk(ctx context.Context, root *Node, concurrency int, visit Visitor) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	g, ctx := errgroup.WithContext(ctx)

	var collected errList
	var walkNode func(n *Node) error
	walkNode = func(n *Node) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)

		next := func(ctx context.Context) error {
			for _, child := range n.Children {
				child := child
				g.Go(func() error {
					return walkNode(child)
				})
			}
			return nil
		}

		if err := visit(ctx, n, next); err != nil {
			collected.add(err)
			return nil // collected, not propagated: siblings keep walking
		}
		return nil
	}

	g.Go(func() error { return walkNode(root) })

	if err := g.Wait(); err != nil {
		collected.add(err)
	}

	return collected.result()
}

// errList collects errors from concurrent visitors under a mutex,
// producing the aggregate shape FirstError unwraps.
type errList struct {
	mu   sync.Mutex
	errs []error
}

func (l *errList) add(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *errList) result() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch len(l.errs) {
	case 0:
		return nil
	case 1:
		return l.errs[0]
	default:
		return &ErrAggregate{Errs: append([]error(nil), l.errs...)}
	}
}
