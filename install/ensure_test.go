package install

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/distribution/pkginstall/configuration"
	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/store"
	"github.com/distribution/pkginstall/store/cache"
	"github.com/distribution/pkginstall/storagedriver/inmemory"
)

func newTestOrchestrator() (*Orchestrator, *store.Store) {
	st := store.New(inmemory.New(), cache.NewMemoryCache(0))
	cfg := configuration.Default()
	cfg.Cache.Dir = "unused-in-tests"
	return New(cfg, st), st
}

func buildPackageTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	archive []byte
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, name string, dep *deptree.Node) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.archive)), nil
}

func TestDepKeyIsDeterministic(t *testing.T) {
	dep := &deptree.Node{Version: "1.0.0", Resolved: "https://example.test/a-1.0.0.tgz", Integrity: digest.Digest("sha256-abc")}
	k1 := depKey("a", dep)
	k2 := depKey("a", dep)
	if k1 != k2 {
		t.Fatalf("depKey not deterministic: %q != %q", k1, k2)
	}

	other := &deptree.Node{Version: "1.0.0", Resolved: "https://example.test/a-1.0.0.tgz", Integrity: digest.Digest("sha256-xyz")}
	if depKey("a", other) == k1 {
		t.Fatalf("depKey did not change when integrity changed")
	}
}

func TestDepKeyPrefersIntegrityOverResolvedOverVersion(t *testing.T) {
	withIntegrity := &deptree.Node{Version: "1.0.0", Resolved: "r1", Integrity: "sha256-same"}
	sameIntegrityDifferentRest := &deptree.Node{Version: "2.0.0", Resolved: "r2", Integrity: "sha256-same"}
	if depKey("a", withIntegrity) != depKey("a", sameIntegrityDifferentRest) {
		t.Fatalf("depKey should key on integrity alone when present")
	}
}

func TestEnsurePackageUnpacksAndPersistsMetadata(t *testing.T) {
	o, _ := newTestOrchestrator()
	archive := buildPackageTar(t, map[string]string{
		"package/index.js":     "hello",
		"package/package.json": `{"name":"a","version":"1.0.0","main":"index.js"}`,
	})
	fetcher := &fakeFetcher{archive: archive}
	o.Fetcher = fetcher

	dep := &deptree.Node{Name: "a", Version: "1.0.0", Integrity: digest.FromBytes(archive)}

	meta, err := o.ensurePackage(context.Background(), "a", dep)
	if err != nil {
		t.Fatalf("ensurePackage: %v", err)
	}
	if meta.Name != "a" || meta.Version != "1.0.0" || meta.Main != "index.js" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.calls)
	}
}

func TestEnsurePackageCacheHitSkipsFetch(t *testing.T) {
	o, _ := newTestOrchestrator()
	o.config.Restore = false
	archive := buildPackageTar(t, map[string]string{
		"package/index.js":     "hello",
		"package/package.json": `{"name":"a","version":"1.0.0","main":"index.js"}`,
	})
	fetcher := &fakeFetcher{archive: archive}
	o.Fetcher = fetcher

	dep := &deptree.Node{Name: "a", Version: "1.0.0", Integrity: digest.FromBytes(archive)}

	if _, err := o.ensurePackage(context.Background(), "a", dep); err != nil {
		t.Fatalf("first ensurePackage: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch after first call, got %d", fetcher.calls)
	}

	dep2 := &deptree.Node{Name: "a", Version: "1.0.0", Integrity: dep.Integrity}
	meta2, err := o.ensurePackage(context.Background(), "a", dep2)
	if err != nil {
		t.Fatalf("second ensurePackage: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected cache hit to skip fetch, got %d fetch calls", fetcher.calls)
	}
	if meta2.Main != "index.js" {
		t.Fatalf("cached metadata wrong: %+v", meta2)
	}
}

func TestEnsurePackageRestoreForcesRefetch(t *testing.T) {
	o, _ := newTestOrchestrator()
	o.config.Restore = true
	archive := buildPackageTar(t, map[string]string{
		"package/index.js":     "hello",
		"package/package.json": `{"name":"a","version":"1.0.0","main":"index.js"}`,
	})
	fetcher := &fakeFetcher{archive: archive}
	o.Fetcher = fetcher

	dep := &deptree.Node{Name: "a", Version: "1.0.0", Integrity: digest.FromBytes(archive)}

	if _, err := o.ensurePackage(context.Background(), "a", dep); err != nil {
		t.Fatalf("first ensurePackage: %v", err)
	}
	dep2 := &deptree.Node{Name: "a", Version: "1.0.0", Integrity: dep.Integrity}
	if _, err := o.ensurePackage(context.Background(), "a", dep2); err != nil {
		t.Fatalf("second ensurePackage: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected Restore=true to force a refetch, got %d calls", fetcher.calls)
	}
}

func TestEnsurePackageFetchErrorIsWrapped(t *testing.T) {
	o, _ := newTestOrchestrator()
	o.Fetcher = &fakeFetcher{err: errors.New("boom")}

	dep := &deptree.Node{Name: "a", Version: "1.0.0"}
	if _, err := o.ensurePackage(context.Background(), "a", dep); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsurePackageRejectsIntegrityMismatch(t *testing.T) {
	o, _ := newTestOrchestrator()
	archive := buildPackageTar(t, map[string]string{
		"package/index.js": "hello",
	})
	o.Fetcher = &fakeFetcher{archive: archive}

	dep := &deptree.Node{
		Name:      "a",
		Version:   "1.0.0",
		Integrity: digest.FromBytes([]byte("some other tarball entirely")),
	}

	_, err := o.ensurePackage(context.Background(), "a", dep)
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("err = %v, want ErrIntegrityMismatch", err)
	}
}

func TestEnsurePackageResolvesMissingIntegrity(t *testing.T) {
	o, _ := newTestOrchestrator()
	archive := buildPackageTar(t, map[string]string{
		"package/index.js":     "hello",
		"package/package.json": `{"name":"a","version":"1.0.0"}`,
	})
	o.Fetcher = &fakeFetcher{archive: archive}

	dep := &deptree.Node{Name: "a", Version: "1.0.0"}
	meta, err := o.ensurePackage(context.Background(), "a", dep)
	if err != nil {
		t.Fatalf("ensurePackage: %v", err)
	}
	if dep.Integrity == "" {
		t.Fatal("expected IntegrityGate to populate dep.Integrity")
	}
	if want := digest.FromBytes(archive); dep.Integrity != want {
		t.Fatalf("dep.Integrity = %q, want whole-archive digest %q", dep.Integrity, want)
	}
	if meta.Integrity != dep.Integrity {
		t.Fatalf("meta.Integrity = %q, want %q", meta.Integrity, dep.Integrity)
	}
}
