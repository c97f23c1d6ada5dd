package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distribution/pkginstall/configuration"
	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/events"
	"github.com/distribution/pkginstall/internal/dcontext"
	"github.com/distribution/pkginstall/pkgmap"
	"github.com/distribution/pkginstall/reclaim"
	"github.com/distribution/pkginstall/store"
	"github.com/distribution/pkginstall/tarball"
)

// TransientClassifier is an optional capability a Fetcher may
// implement to distinguish retryable transient failures (context
// deadline, connection reset) from permanent ones. A Fetcher that
// doesn't implement it is treated as having no transient failures:
// every error is final on first attempt.
type TransientClassifier interface {
	Transient(err error) bool
}

// Orchestrator drives one project install end to end.
// Every external collaborator the pipeline needs is injected; this
// core supplies none of them itself.
type Orchestrator struct {
	Fetcher           Fetcher
	ManifestResolver  ManifestResolver
	TreeBuilder       TreeBuilder
	LockfileVerifier  LockfileVerifier
	LockfileGenerator LockfileGenerator
	ScriptRunner      ScriptRunner
	BinLinker         BinLinker
	DirLinker         DirLinker
	Remover           reclaim.Remover
	Sink              events.Sink

	config *configuration.Configuration
	store  *store.Store
}

// New constructs an Orchestrator. cfg must already have its defaults
// applied (see configuration.Load/Default).
func New(cfg *configuration.Configuration, st *store.Store) *Orchestrator {
	return &Orchestrator{config: cfg, store: st}
}

// StageTimings records how long each pipeline stage took; Run returns
// them in its Result and does not log them itself.
type StageTimings struct {
	Prepare         time.Duration
	CheckLock       time.Duration
	FetchTree       time.Duration
	BuildPackageMap time.Duration
	WritePackageMap time.Duration
	BuildTree       time.Duration
	Teardown        time.Duration
}

// Result is what Run returns: the final package map, its timings, the
// number of packages accounted for, and the set of install directories
// the Reclaimer purged.
type Result struct {
	PackageMap *pkgmap.Map
	Timings    StageTimings

	// PkgCount is the number of packages the walk accounted for,
	// decremented by the Reclaimer's purge count. When checkLock reuses
	// a cached package map no walk runs, and PkgCount is that map's
	// PackageCount.
	PkgCount int

	Purged map[string]bool
}

func (o *Orchestrator) emit(e events.Event) {
	if o.Sink == nil {
		return
	}
	_ = o.Sink.Write(e)
}

func (o *Orchestrator) timeStage(name string, dst *time.Duration, fn func() error) error {
	start := time.Now()
	err := fn()
	*dst = time.Since(start)
	events.RecordStageDuration(name, start)
	o.emit(events.Event{Type: events.TypeStageCompleted, Name: name})
	return err
}

// Run executes the full install pipeline — prepare, checkLock,
// fetchTree, buildPackageMap, writePackageMap, buildTree, teardown —
// for the project rooted at prefix. Teardown always runs, even when an
// earlier stage fails.
func (o *Orchestrator) Run(ctx context.Context, prefix string) (*Result, error) {
	res := &Result{}
	var root *deptree.Node
	var lockfileIntegrity digest.Digest
	var pmap *pkgmap.Map

	runErr := func() error {
		if err := o.timeStage("prepare", &res.Timings.Prepare, func() error {
			var err error
			root, lockfileIntegrity, err = o.prepare(ctx, prefix)
			return err
		}); err != nil {
			return fmt.Errorf("install: prepare: %w", err)
		}

		var cached *pkgmap.Map
		if err := o.timeStage("checkLock", &res.Timings.CheckLock, func() error {
			var err error
			cached, err = o.checkLock(ctx, prefix, lockfileIntegrity)
			return err
		}); err != nil {
			return fmt.Errorf("install: checkLock: %w", err)
		}

		var purged map[string]bool
		if cached != nil {
			pmap = cached
			res.PkgCount = cached.PackageCount
		} else {
			if err := o.timeStage("fetchTree", &res.Timings.FetchTree, func() error {
				var err error
				res.PkgCount, purged, err = o.fetchTree(ctx, root, prefix)
				return err
			}); err != nil {
				return fmt.Errorf("install: fetchTree: %w", err)
			}

			if err := o.timeStage("buildPackageMap", &res.Timings.BuildPackageMap, func() error {
				pmap = o.buildPackageMap(root, lockfileIntegrity)
				return nil
			}); err != nil {
				return fmt.Errorf("install: buildPackageMap: %w", err)
			}

			if err := o.timeStage("writePackageMap", &res.Timings.WritePackageMap, func() error {
				return writePackageMap(prefix, pmap)
			}); err != nil {
				return fmt.Errorf("install: writePackageMap: %w", err)
			}
		}
		res.Purged = purged

		if err := o.timeStage("buildTree", &res.Timings.BuildTree, func() error {
			return o.buildTree(ctx, root, prefix)
		}); err != nil {
			return fmt.Errorf("install: buildTree: %w", err)
		}

		return nil
	}()

	teardownErr := o.timeStage("teardown", &res.Timings.Teardown, func() error {
		return o.teardown(ctx, prefix)
	})

	if runErr != nil {
		return res, deptree.FirstError(runErr)
	}
	if teardownErr != nil {
		return res, fmt.Errorf("install: teardown: %w", teardownErr)
	}

	res.PackageMap = pmap
	return res, nil
}

// prepare resolves the install prefix and builds the logical tree.
// Reading package.json/lockfiles is delegated to TreeBuilder, since
// this core treats the logical-tree builder as opaque. A project with
// no lockfile at all gets one generated, then the tree is built again
// from the fresh lockfile.
func (o *Orchestrator) prepare(ctx context.Context, prefix string) (*deptree.Node, digest.Digest, error) {
	if o.TreeBuilder == nil {
		return nil, "", fmt.Errorf("install: no TreeBuilder configured")
	}
	root, lockfileIntegrity, err := o.TreeBuilder.Build(ctx, prefix)
	if errors.Is(err, ErrNoLockfile) && o.LockfileGenerator != nil {
		dcontext.GetLogger(ctx).Infof("install: no lockfile at %s, generating one", prefix)
		if genErr := o.LockfileGenerator.Generate(ctx, prefix); genErr != nil {
			return nil, "", fmt.Errorf("install: generating lockfile: %w", genErr)
		}
		root, lockfileIntegrity, err = o.TreeBuilder.Build(ctx, prefix)
	}
	if err != nil {
		return nil, "", err
	}
	if root == nil {
		return nil, "", fmt.Errorf("install: TreeBuilder returned a nil tree")
	}
	return root, lockfileIntegrity, nil
}

// checkLock verifies a persisted package map's lockfile_integrity
// against the freshly computed one, discarding it on mismatch, and
// runs the lockfile verifier, regenerating the lockfile when it
// reports hard errors.
func (o *Orchestrator) checkLock(ctx context.Context, prefix string, lockfileIntegrity digest.Digest) (*pkgmap.Map, error) {
	existing, err := readPackageMap(prefix)
	if err != nil {
		return nil, err
	}

	if o.LockfileVerifier != nil {
		ok, warnings, errs, err := o.LockfileVerifier.Verify(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			dcontext.GetLogger(ctx).Warnf("install: lockfile warning: %s", w)
		}
		if !ok && len(errs) > 0 {
			if o.LockfileGenerator == nil {
				return nil, fmt.Errorf("install: lockfile invalid (%v) and no generator configured", errs)
			}
			if err := o.LockfileGenerator.Generate(ctx, prefix); err != nil {
				return nil, fmt.Errorf("install: regenerating lockfile: %w", err)
			}
			// The regenerated lockfile invalidates any cached map.
			return nil, nil
		}
	}

	if existing == nil {
		return nil, nil
	}
	if existing.LockfileIntegrity != lockfileIntegrity {
		return nil, nil
	}
	return existing, nil
}

// fetchTree iterates the logical tree at the configured concurrency,
// applying the dev/prod filter, short-
// circuiting root/bundled nodes, symlinking local-directory specs, and
// otherwise calling ensurePackage with retry-on-transient-failure for
// required dependencies. Failed optional dependencies are collected
// and swept by the Reclaimer; a failed required dependency's error is
// collected while the rest of the walk continues, and fetchTree then
// returns it.
func (o *Orchestrator) fetchTree(ctx context.Context, root *deptree.Node, prefix string) (int, map[string]bool, error) {
	filter := newDevProdFilter(o.config.Dev, o.config.Development, o.config.Production, o.config.Only, o.config.Also)

	var failedDeps failedSet
	var pkgCount atomic.Int64

	concurrency := o.config.Concurrency
	if concurrency <= 0 {
		concurrency = deptree.DefaultConcurrency
	}

	walkErr := deptree.Walk(ctx, root, concurrency, func(ctx context.Context, n *deptree.Node, next func(ctx context.Context) error) error {
		if n.IsRoot || n.Bundled {
			pkgCount.Add(1)
			return next(ctx)
		}
		if !filter.include(n.Dev) {
			return nil
		}

		if isLocalDirSpec(n.Resolved) {
			if o.DirLinker != nil {
				if err := o.DirLinker.Symlink(ctx, n.Resolved, n.Path(prefix)); err != nil {
					// A swallowed optional failure still counts here;
					// the Reclaimer deducts it again with the purge.
					if herr := o.handleNodeFailure(ctx, n, err, &failedDeps); herr != nil {
						return herr
					}
					pkgCount.Add(1)
					return nil
				}
			}
			pkgCount.Add(1)
			return next(ctx)
		}

		meta, err := o.ensurePackageWithRetry(ctx, n)
		if err != nil {
			if herr := o.handleNodeFailure(ctx, n, err, &failedDeps); herr != nil {
				return herr
			}
			pkgCount.Add(1)
			return nil
		}
		n.Metadata = meta
		pkgCount.Add(1)
		return next(ctx)
	})

	failed := failedDeps.snapshot()
	count := int(pkgCount.Load())

	if walkErr != nil {
		return count, nil, walkErr
	}

	if len(failed) == 0 || o.Remover == nil {
		return count, nil, nil
	}

	purged, err := reclaim.Sweep(ctx, root, prefix, failed, o.Remover)
	for range purged {
		events.RecordPackagePurged()
	}
	return count - len(purged), purged, err
}

// handleNodeFailure records a failed optional dependency for the
// Reclaimer and swallows the error, or returns it unchanged for a
// required dependency: a non-optional failure aborts the whole
// install, an optional failure is retained in failedDeps.
func (o *Orchestrator) handleNodeFailure(ctx context.Context, n *deptree.Node, err error, fs *failedSet) error {
	o.emit(events.Event{Type: events.TypePackageFailed, Name: n.Name, Address: n.Address, Err: err})

	if !n.Optional {
		return err
	}
	fs.add(n)
	dcontext.GetLogger(ctx).Warnf("install: optional dependency %s failed: %v", n.Name, err)
	return nil
}

// failedSet collects failed-optional-dependency nodes across the
// dependency iterator's concurrent visitors.
type failedSet struct {
	mu    sync.Mutex
	nodes map[*deptree.Node]bool
}

func (fs *failedSet) snapshot() map[*deptree.Node]bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[*deptree.Node]bool, len(fs.nodes))
	for n := range fs.nodes {
		out[n] = true
	}
	return out
}

func (fs *failedSet) add(n *deptree.Node) {
	fs.mu.Lock()
	if fs.nodes == nil {
		fs.nodes = map[*deptree.Node]bool{}
	}
	fs.nodes[n] = true
	fs.mu.Unlock()
}

// ensurePackageWithRetry wraps ensurePackage with the retry-on-
// transient-fetch-failure policy: required dependencies get up to
// Configuration.FetchRetries retries
// with jittered backoff on a transient error; optional dependencies
// are never retried, since a single failure already hands them to the
// Reclaimer.
func (o *Orchestrator) ensurePackageWithRetry(ctx context.Context, n *deptree.Node) (*tarball.Metadata, error) {
	meta, err := o.ensurePackage(ctx, n.Name, n)
	if err == nil || n.Optional {
		return meta, err
	}

	classifier, _ := o.Fetcher.(TransientClassifier)
	if classifier == nil {
		return meta, err
	}

	retries := o.config.FetchRetries
	for attempt := 0; attempt < retries; attempt++ {
		if !classifier.Transient(err) {
			return meta, err
		}

		backoff := time.Duration(attempt+1) * 100 * time.Millisecond
		backoff += time.Duration(rand.Intn(50)) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		meta, err = o.ensurePackage(ctx, n.Name, n)
		if err == nil {
			return meta, nil
		}
	}
	return meta, err
}

// buildPackageMap folds every node's metadata into the project-wide
// map.
func (o *Orchestrator) buildPackageMap(root *deptree.Node, lockfileIntegrity digest.Digest) *pkgmap.Map {
	m := pkgmap.New(lockfileIntegrity)
	var walk func(n *deptree.Node)
	walk = func(n *deptree.Node) {
		if !n.IsRoot && n.Metadata != nil {
			m.Insert(n.Address, n.Metadata)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	m.Finalize()
	return m
}

// buildTree invokes the external script runner and bin linker over
// the installed tree. Both are opaque hooks;
// this core only drives them in order.
func (o *Orchestrator) buildTree(ctx context.Context, root *deptree.Node, prefix string) error {
	if !o.config.IgnoreScripts && o.ScriptRunner != nil {
		if err := o.ScriptRunner.Run(ctx, root, prefix); err != nil {
			return err
		}
	}
	if o.BinLinker != nil {
		if err := o.BinLinker.Link(ctx, root, prefix); err != nil {
			return err
		}
	}
	return nil
}

// teardown always runs, including on failure.
// It flushes the event sink so no in-flight notification is dropped
// when the process is about to exit.
func (o *Orchestrator) teardown(ctx context.Context, prefix string) error {
	if o.Sink == nil {
		return nil
	}
	return o.Sink.Close()
}

func isLocalDirSpec(resolved string) bool {
	if resolved == "" {
		return false
	}
	return filepath.IsAbs(resolved) || resolved[0] == '.' || resolved[0] == os.PathSeparator
}

const packageMapFilename = ".package-map.json"

func readPackageMap(prefix string) (*pkgmap.Map, error) {
	data, err := os.ReadFile(filepath.Join(prefix, packageMapFilename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m pkgmap.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("install: parsing %s: %w", packageMapFilename, err)
	}
	return &m, nil
}

func writePackageMap(prefix string, m *pkgmap.Map) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(prefix, packageMapFilename), data, 0o644)
}
