package tarball

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/distribution/pkginstall/digest"
)

// memStore is a minimal BlobSink fake, grounded in store.Store's own
// contract (Put is idempotent over content). It also records
// MemoByDigest calls so tests can observe the memo handoff.
type memStore struct {
	mu      sync.Mutex
	blobs   map[digest.Digest][]byte
	memoed  map[digest.Digest][]byte
}

func newMemStore() *memStore {
	return &memStore{
		blobs:  map[digest.Digest][]byte{},
		memoed: map[digest.Digest][]byte{},
	}
}

func (s *memStore) Put(ctx context.Context, p []byte) (digest.Digest, error) {
	d := digest.FromBytes(p)
	s.mu.Lock()
	s.blobs[d] = append([]byte(nil), p...)
	s.mu.Unlock()
	return d, nil
}

func (s *memStore) MemoByDigest(d digest.Digest, p []byte) {
	s.mu.Lock()
	s.memoed[d] = append([]byte(nil), p...)
	s.mu.Unlock()
}

func buildTar(t *testing.T, files map[string]string) []byte {
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

func sha256Digest(body string) digest.Digest {
	h := sha256.Sum256([]byte(body))
	return digest.Digest(fmt.Sprintf("sha256-%s", base64.StdEncoding.EncodeToString(h[:])))
}

func TestUnpackSimplePackage(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"package/index.js":     "hello",
		"package/package.json": `{"name":"x","version":"1.0.0","main":"index.js"}`,
	})

	store := newMemStore()
	u := &Unpacker{Strip: 1, Store: store}

	res, err := u.Unpack(context.Background(), bytes.NewReader(archive), nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if res.Metadata.Main != "index.js" {
		t.Fatalf("Main = %q", res.Metadata.Main)
	}
	if res.Metadata.HasInstallScripts {
		t.Fatal("expected HasInstallScripts=false")
	}

	indexNode, ok := res.Manifest["index.js"]
	if !ok || indexNode.Digest != sha256Digest("hello") {
		t.Fatalf("manifest[index.js] = %+v", indexNode)
	}
	if _, ok := res.Manifest["package.json"]; !ok {
		t.Fatal("expected package.json in manifest")
	}

	if body, ok := store.memoed[indexNode.Digest]; !ok || string(body) != "hello" {
		t.Fatalf("memoed[%s] = %q, want the stored body handed to the memo", indexNode.Digest, body)
	}
}

func TestUnpackNativeBuild(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"package/binding.gyp": "{}",
	})

	u := &Unpacker{Strip: 1, Store: newMemStore()}
	res, err := u.Unpack(context.Background(), bytes.NewReader(archive), nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if !res.Metadata.HasInstallScripts || !res.Metadata.HasNativeBuild {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
}

func TestUnpackPathTraversalRejected(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"package/../../etc/passwd": "root:x:0:0",
		"package/safe.js":          "ok",
	})

	var warnings []string
	u := &Unpacker{
		Strip: 1,
		Store: newMemStore(),
		Warn: func(path, msg string) {
			warnings = append(warnings, path+": "+msg)
		},
	}

	res, err := u.Unpack(context.Background(), bytes.NewReader(archive), nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if len(res.Manifest) != 1 {
		t.Fatalf("manifest = %+v, want only safe.js", res.Manifest)
	}
	if _, ok := res.Manifest["safe.js"]; !ok {
		t.Fatal("expected safe.js present")
	}
	if len(warnings) == 0 {
		t.Fatal("expected a path-traversal warning")
	}
}

func TestUnpackEmitsEventsInOrder(t *testing.T) {
	archive := buildTar(t, map[string]string{"package/a.js": "x"})

	var order []string
	ev := &Events{
		Metadata:  func(*Metadata) { order = append(order, "metadata") },
		Prefinish: func() { order = append(order, "prefinish") },
		Finish:    func() { order = append(order, "finish") },
		End:       func() { order = append(order, "end") },
		Close:     func() { order = append(order, "close") },
	}

	u := &Unpacker{Strip: 1, Store: newMemStore()}
	if _, err := u.Unpack(context.Background(), bytes.NewReader(archive), ev); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	want := []string{"metadata", "prefinish", "finish", "end", "close"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestUnpackUnsupportedEntryTypeWarnsAndDrains(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "package/fifo", Typeflag: tar.TypeFifo}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "package/ok.js", Mode: 0o644, Size: 2}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var warned bool
	u := &Unpacker{Strip: 1, Store: newMemStore(), Warn: func(path, msg string) {
		if msg == "unsupported entry type" {
			warned = true
		}
	}}

	res, err := u.Unpack(context.Background(), bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !warned {
		t.Fatal("expected unsupported-entry-type warning")
	}
	if _, ok := res.Manifest["ok.js"]; !ok {
		t.Fatal("expected stream to continue past unsupported entry")
	}
}
