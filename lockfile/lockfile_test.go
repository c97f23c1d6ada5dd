package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/install"
)

const sampleLock = `{
  "name": "app",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "packages": {
    "": {
      "name": "app",
      "version": "1.0.0",
      "dependencies": {"a": "^1.0.0"}
    },
    "node_modules/a": {
      "version": "1.0.0",
      "resolved": "https://registry.npmjs.org/a/-/a-1.0.0.tgz",
      "integrity": "sha512-deadbeef"
    },
    "node_modules/a/node_modules/b": {
      "version": "2.0.0",
      "resolved": "https://registry.npmjs.org/b/-/b-2.0.0.tgz",
      "integrity": "sha256-LCa0a2j/xo/5m0U8HTBBNBNCLXBkg7+g+YpeiGJm564=",
      "optional": true
    }
  }
}`

func writeLockfile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestBuildTreeNestsByNodeModulesPath(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, sampleLock)

	root, lockIntegrity, err := BuildTree(prefix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if !root.IsRoot || root.Name != "app" {
		t.Fatalf("root = %+v", root)
	}
	if lockIntegrity == "" {
		t.Fatal("expected a lockfile integrity digest")
	}

	if len(root.Children) != 1 {
		t.Fatalf("root.Children = %+v", root.Children)
	}
	a := root.Children[0]
	if a.Name != "a" || a.Address != "root:a" {
		t.Fatalf("a = %+v", a)
	}
	if len(a.Children) != 1 {
		t.Fatalf("a.Children = %+v", a.Children)
	}
	b := a.Children[0]
	if b.Name != "b" || b.Address != "root:a:b" || !b.Optional {
		t.Fatalf("b = %+v", b)
	}
}

func TestBuildTreeAcceptsOnlySha256Integrity(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, sampleLock)

	root, _, err := BuildTree(prefix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	a := root.Children[0]
	if a.Integrity != "" {
		t.Fatalf("a.Integrity = %q, want empty for a sha512 lockfile entry", a.Integrity)
	}
	b := a.Children[0]
	if err := b.Integrity.Validate(); err != nil {
		t.Fatalf("b.Integrity = %q: %v", b.Integrity, err)
	}
}

func TestBuildTreeStripsBOM(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, "\xEF\xBB\xBF"+sampleLock)

	if _, _, err := BuildTree(prefix); err != nil {
		t.Fatalf("BuildTree with BOM: %v", err)
	}
}

func TestBuildTreePrefersShrinkwrap(t *testing.T) {
	prefix := writeLockfile(t, shrinkwrapFilename, sampleLock)
	other := `{"name":"other","version":"9.9.9","packages":{"":{}}}`
	if err := os.WriteFile(filepath.Join(prefix, packageLockFilename), []byte(other), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root, _, err := BuildTree(prefix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if root.Name != "app" {
		t.Fatalf("root.Name = %q, want the shrinkwrap's project", root.Name)
	}
}

func TestBuildTreeNoLockfileSentinel(t *testing.T) {
	_, _, err := BuildTree(t.TempDir())
	if !errors.Is(err, install.ErrNoLockfile) {
		t.Fatalf("err = %v, want install.ErrNoLockfile", err)
	}
}

func TestBuildTreeLockfileIntegrityIsContentDigest(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, sampleLock)

	_, lockIntegrity, err := BuildTree(prefix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if want := digest.FromBytes([]byte(sampleLock)); lockIntegrity != want {
		t.Fatalf("lockfile integrity = %q, want %q", lockIntegrity, want)
	}
}

func TestSplitNodeModulesPath(t *testing.T) {
	for _, tc := range []struct {
		in, parent, name string
	}{
		{"node_modules/a", "", "a"},
		{"node_modules/a/node_modules/b", "node_modules/a", "b"},
		{"node_modules/a/node_modules/b/node_modules/c", "node_modules/a/node_modules/b", "c"},
	} {
		parent, name := splitNodeModulesPath(tc.in)
		if parent != tc.parent || name != tc.name {
			t.Errorf("splitNodeModulesPath(%q) = (%q, %q), want (%q, %q)", tc.in, parent, name, tc.parent, tc.name)
		}
	}
}

func TestVerifierReportsMissingDependency(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, sampleLock)
	manifest := `{"dependencies":{"a":"^1.0.0","missing":"^2.0.0"}}`
	if err := os.WriteFile(filepath.Join(prefix, "package.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok, _, errs, err := Verifier{}.Verify(context.Background(), prefix)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok || len(errs) != 1 {
		t.Fatalf("ok=%v errs=%v, want one missing-dependency error", ok, errs)
	}
}

func TestVerifierAcceptsConsistentLockfile(t *testing.T) {
	prefix := writeLockfile(t, packageLockFilename, sampleLock)
	manifest := `{"dependencies":{"a":"^1.0.0"}}`
	if err := os.WriteFile(filepath.Join(prefix, "package.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok, _, errs, err := Verifier{}.Verify(context.Background(), prefix)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok || len(errs) != 0 {
		t.Fatalf("ok=%v errs=%v, want a clean verification", ok, errs)
	}
}
