// Package lockfile implements the install package's TreeBuilder and
// LockfileVerifier collaborators: it reads an npm package-lock.json
// (lockfileVersion 2 or 3's flat "packages" map) and folds it into
// the logical dependency tree the Installer Orchestrator walks.
package lockfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/install"
)

const (
	packageLockFilename = "package-lock.json"
	shrinkwrapFilename  = "npm-shrinkwrap.json"
)

// lockPackage is one entry in package-lock.json's flat "packages" map,
// keyed by its node_modules path (e.g. "node_modules/a/node_modules/b",
// or "" for the root project).
type lockPackage struct {
	Version      string            `json:"version"`
	Resolved     string            `json:"resolved"`
	Integrity    string            `json:"integrity"`
	Dev          bool              `json:"dev"`
	Optional     bool              `json:"optional"`
	Bundled      bool              `json:"inBundle"`
	Dependencies map[string]string `json:"dependencies"`
}

type lockDocument struct {
	Name     string                 `json:"name"`
	Version  string                 `json:"version"`
	Packages map[string]lockPackage `json:"packages"`
}

// Builder implements install.TreeBuilder by reading package-lock.json
// (or npm-shrinkwrap.json, checked first per npm's own precedence)
// from the install prefix.
type Builder struct{}

// Build satisfies install.TreeBuilder.
func (Builder) Build(ctx context.Context, prefix string) (*deptree.Node, digest.Digest, error) {
	return BuildTree(prefix)
}

// BuildTree reads the lockfile at prefix and returns the logical
// dependency tree plus the lockfile's own content digest, used as
// Package Map's lockfile_integrity.
//
// A leading UTF-8 BOM is stripped before parsing.
func BuildTree(prefix string) (*deptree.Node, digest.Digest, error) {
	data, path, err := readLockfile(prefix)
	if err != nil {
		return nil, "", err
	}

	lockIntegrity := digest.FromBytes(data)

	var doc lockDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("lockfile: parsing %s: %w", path, err)
	}

	root := &deptree.Node{
		IsRoot:  true,
		Address: "root",
		Name:    doc.Name,
		Version: doc.Version,
	}

	byNMPath := map[string]*deptree.Node{"": root}

	var nmPaths []string
	for p := range doc.Packages {
		if p == "" {
			continue
		}
		nmPaths = append(nmPaths, p)
	}
	// Shallower paths must be materialized before deeper ones so a
	// child always finds its parent already in byNMPath.
	sort.Slice(nmPaths, func(i, j int) bool {
		return strings.Count(nmPaths[i], "node_modules/") < strings.Count(nmPaths[j], "node_modules/")
	})

	for _, p := range nmPaths {
		lp := doc.Packages[p]
		parentPath, name := splitNodeModulesPath(p)
		parent, ok := byNMPath[parentPath]
		if !ok {
			return nil, "", fmt.Errorf("lockfile: %s references unknown parent path %q", p, parentPath)
		}

		// npm lockfiles mostly carry sha512 integrity strings; only
		// sha256 is accepted here, so anything else is treated as
		// unknown and recomputed by the integrity gate during fetch.
		var integrity digest.Digest
		if d, err := digest.Parse(lp.Integrity); err == nil {
			integrity = d
		}

		n := &deptree.Node{
			Name:      name,
			Version:   lp.Version,
			Resolved:  lp.Resolved,
			Integrity: integrity,
			Dev:       lp.Dev,
			Optional:  lp.Optional,
			Bundled:   lp.Bundled,
			Address:   parent.Address + ":" + name,
		}
		parent.Children = append(parent.Children, n)
		byNMPath[p] = n
	}

	return root, lockIntegrity, nil
}

// splitNodeModulesPath splits an npm lockfile "packages" key like
// "node_modules/a/node_modules/b" into its parent key
// ("node_modules/a") and leaf package name ("b").
func splitNodeModulesPath(p string) (parent, name string) {
	i := strings.LastIndex(p, "node_modules/")
	name = p[i+len("node_modules/"):]
	if i == 0 {
		return "", name
	}
	return strings.TrimSuffix(p[:i], "/"), name
}

func readLockfile(prefix string) (data []byte, path string, err error) {
	for _, name := range []string{shrinkwrapFilename, packageLockFilename} {
		p := filepath.Join(prefix, name)
		data, err = os.ReadFile(p)
		if err == nil {
			return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}), p, nil
		}
		if !os.IsNotExist(err) {
			return nil, p, err
		}
	}
	return nil, "", fmt.Errorf("lockfile: no %s or %s at %s: %w", packageLockFilename, shrinkwrapFilename, prefix, install.ErrNoLockfile)
}
