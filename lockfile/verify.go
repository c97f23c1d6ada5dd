package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// packageManifest is the subset of package.json the Verifier checks
// dependency names against.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Verifier implements install.LockfileVerifier: it checks that every
// entry of package.json's "dependencies" also appears in
// package-lock.json, either in the root entry's dependencies or as a
// node_modules/<name> package. devDependencies are not checked.
type Verifier struct{}

// Verify satisfies install.LockfileVerifier.
func (Verifier) Verify(ctx context.Context, prefix string) (ok bool, warnings []string, errs []string, err error) {
	manifestData, rerr := os.ReadFile(filepath.Join(prefix, "package.json"))
	if os.IsNotExist(rerr) {
		// No manifest at all: nothing to verify against.
		return true, nil, nil, nil
	}
	if rerr != nil {
		return false, nil, nil, rerr
	}

	var manifest packageManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return false, nil, nil, fmt.Errorf("lockfile: parsing package.json: %w", err)
	}

	data, _, rerr := readLockfile(prefix)
	if rerr != nil {
		return false, nil, []string{"no lockfile present"}, nil
	}

	var doc lockDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, nil, nil, fmt.Errorf("lockfile: parsing lockfile: %w", err)
	}

	root, hasRoot := doc.Packages[""]

	for name := range manifest.Dependencies {
		if hasRoot {
			if _, ok := root.Dependencies[name]; ok {
				continue
			}
		}
		if _, ok := doc.Packages["node_modules/"+name]; ok {
			continue
		}
		errs = append(errs, fmt.Sprintf("%s is declared in package.json but missing from the lockfile", name))
	}

	return len(errs) == 0, warnings, errs, nil
}

// Generator implements install.LockfileGenerator by shelling out to
// npm itself — regenerating a lockfile is npm's own
// dependency-resolution algorithm, which this core deliberately
// treats as opaque.
type Generator struct {
	// NPMPath overrides the npm binary looked up on PATH, for tests.
	NPMPath string
}

// Generate satisfies install.LockfileGenerator.
func (g Generator) Generate(ctx context.Context, prefix string) error {
	bin := g.NPMPath
	if bin == "" {
		bin = "npm"
	}
	cmd := exec.CommandContext(ctx, bin, "install", "--package-lock-only")
	cmd.Dir = prefix
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("lockfile: %s install --package-lock-only: %w: %s", bin, err, out)
	}
	return nil
}
