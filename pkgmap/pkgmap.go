// Package pkgmap folds per-package metadata produced by the Tarball
// Unpacker into the nested, project-wide Package Map that gets
// persisted as .package-map.json.
package pkgmap

import (
	"strings"

	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/tarball"
)

// PathPrefix is the install path every Package Map and scope
// declares.
const PathPrefix = "/node_modules"

// Package is one entry in a Map's packages table: the unpacked
// metadata for a dependency, plus any nested scopes beneath it.
type Package struct {
	Main              string                 `json:"main,omitempty"`
	HasInstallScripts bool                   `json:"hasInstallScripts,omitempty"`
	HasNativeBuild    bool                   `json:"hasNativeBuild,omitempty"`
	Files             tarball.Manifest       `json:"files,omitempty"`
	Name              string                 `json:"name,omitempty"`
	Version           string                 `json:"version,omitempty"`
	Integrity         digest.Digest          `json:"integrity,omitempty"`
	Resolved          string                 `json:"resolved,omitempty"`
	Scopes            map[string]*Map        `json:"scopes,omitempty"`
}

// Map is a project-level (or scope-level) package map: a path prefix
// plus the packages installed directly beneath it.
type Map struct {
	LockfileIntegrity digest.Digest       `json:"lockfile_integrity,omitempty"`
	PathPrefix        string              `json:"path_prefix"`
	Packages          map[string]*Package `json:"packages,omitempty"`

	// PackageCount/ScopeCount are derived diagnostics, not part of the
	// lockfile-integrity comparison: regenerating from an unchanged
	// lockfile stays byte-exact on packages/scopes/path_prefix alone.
	PackageCount int `json:"package_count"`
	ScopeCount   int `json:"scope_count"`
}

// New returns an empty root Map for lockfileIntegrity.
func New(lockfileIntegrity digest.Digest) *Map {
	return &Map{LockfileIntegrity: lockfileIntegrity, PathPrefix: PathPrefix}
}

// Insert folds meta into the map at address (the colon-delimited
// nesting path, e.g. "root:a:b"). The leading "root" segment is the
// tree root and is not itself represented in the map.
func (m *Map) Insert(address string, meta *tarball.Metadata) {
	parts := strings.Split(address, ":")
	if len(parts) < 2 {
		return // root node: accounted for, never inserted
	}

	acc := m
	for _, scope := range parts[1 : len(parts)-1] {
		if acc.Packages == nil {
			acc.Packages = map[string]*Package{}
		}
		pkg, ok := acc.Packages[scope]
		if !ok {
			pkg = &Package{}
			acc.Packages[scope] = pkg
		}
		if pkg.Scopes == nil {
			pkg.Scopes = map[string]*Map{}
		}
		next, ok := pkg.Scopes[scope]
		if !ok {
			next = &Map{PathPrefix: PathPrefix}
			pkg.Scopes[scope] = next
		}
		acc = next
	}

	name := parts[len(parts)-1]
	if acc.Packages == nil {
		acc.Packages = map[string]*Package{}
	}
	acc.Packages[name] = mergePackage(acc.Packages[name], meta)
}

// Has reports whether address (the same colon-delimited nesting path
// Insert takes) has a package entry in m. Used by the gc command to
// tell which nodes of a freshly-built tree are still represented in a
// persisted package map.
func (m *Map) Has(address string) bool {
	parts := strings.Split(address, ":")
	if len(parts) < 2 {
		return true // root node: always considered present
	}

	acc := m
	for _, scope := range parts[1 : len(parts)-1] {
		pkg, ok := acc.Packages[scope]
		if !ok || pkg.Scopes == nil {
			return false
		}
		next, ok := pkg.Scopes[scope]
		if !ok {
			return false
		}
		acc = next
	}

	_, ok := acc.Packages[parts[len(parts)-1]]
	return ok
}

// mergePackage shallow-overwrites the known metadata keys on existing
// (which may be nil), preserving any Scopes already recorded under it.
func mergePackage(existing *Package, meta *tarball.Metadata) *Package {
	pkg := existing
	if pkg == nil {
		pkg = &Package{}
	}
	pkg.Main = meta.Main
	pkg.HasInstallScripts = meta.HasInstallScripts
	pkg.HasNativeBuild = meta.HasNativeBuild
	pkg.Files = meta.Files
	pkg.Name = meta.Name
	pkg.Version = meta.Version
	pkg.Integrity = meta.Integrity
	pkg.Resolved = meta.Resolved
	return pkg
}

// Finalize computes the PackageCount/ScopeCount diagnostics over the
// whole tree. Call once after every Insert.
func (m *Map) Finalize() {
	m.PackageCount, m.ScopeCount = m.count()
}

func (m *Map) count() (packages, scopes int) {
	for _, pkg := range m.Packages {
		packages++
		for _, scope := range pkg.Scopes {
			scopes++
			p, s := scope.count()
			packages += p
			scopes += s
		}
	}
	return packages, scopes
}
