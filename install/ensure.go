package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/events"
	"github.com/distribution/pkginstall/internal/dcontext"
	"github.com/distribution/pkginstall/tarball"
)

// ErrIntegrityMismatch is returned when a fetched tarball's bytes
// don't hash to the integrity the dependency claimed. Fatal to that
// package's install.
var ErrIntegrityMismatch = errors.New("install: tarball integrity mismatch")

// depKey derives a stable string from a dependency's identity, used
// to key its cached metadata. It must be deterministic across runs,
// so it hashes the name plus whichever of resolved/integrity is known
// rather than anything positional in the tree.
func depKey(name string, dep *deptree.Node) string {
	identity := string(dep.Integrity)
	if identity == "" {
		identity = dep.Resolved
	}
	if identity == "" {
		identity = dep.Version
	}
	h := sha256.Sum256([]byte(name + "\x00" + identity))
	return hex.EncodeToString(h[:])
}

// persistedMetadata is the document ensurePackage writes through
// Store.PutKeyed and reads back on a cache hit: the full package
// metadata document plus the digest algorithms used to verify it.
type persistedMetadata struct {
	Metadata   *tarball.Metadata `json:"metadata"`
	Algorithms []string          `json:"algorithms"`
}

// ensurePackage resolves a dependency's missing resolved/integrity,
// short-circuits on a cache hit, and otherwise stream-unpacks the
// dependency's tarball and persists its metadata keyed by depKey.
func (o *Orchestrator) ensurePackage(ctx context.Context, name string, dep *deptree.Node) (*tarball.Metadata, error) {
	if dep.Resolved == "" || dep.Integrity == "" {
		if o.ManifestResolver != nil {
			resolved, integrity, err := o.ManifestResolver.Resolve(ctx, name, dep)
			if err != nil {
				return nil, fmt.Errorf("install: resolving manifest for %s: %w", name, err)
			}
			if dep.Resolved == "" {
				dep.Resolved = resolved
			}
			if dep.Integrity == "" {
				dep.Integrity = integrity
			}
		}
	}

	key := depKey(name, dep)

	if dep.Integrity != "" && !o.config.Restore {
		if raw, _, ok, err := o.store.GetInfo(ctx, key); err != nil {
			return nil, fmt.Errorf("install: checking cache for %s: %w", name, err)
		} else if ok {
			var pm persistedMetadata
			if err := json.Unmarshal([]byte(raw), &pm); err == nil {
				o.emit(events.Event{Type: events.TypePackageCacheHit, Name: name, Address: dep.Address})
				events.RecordPackageCacheHit()
				return pm.Metadata, nil
			}
		}
	}

	stream, err := o.Fetcher.Fetch(ctx, name, dep)
	if err != nil {
		return nil, fmt.Errorf("install: fetching %s: %w", name, err)
	}
	defer stream.Close()

	// The gate always sits between fetcher and unpacker: when the
	// dependency's integrity is unknown it supplies one, and when it
	// is known the streamed bytes are verified against it.
	gate := tarball.NewIntegrityGate(stream)

	warnLog := dcontext.GetLoggerWithFields(ctx, map[string]any{"package": name})
	u := &tarball.Unpacker{
		Strip: 1,
		Store: o.store,
		Warn: func(path, message string) {
			warnLog.Warnf("install: %s: %s", path, message)
		},
	}

	result, err := u.Unpack(ctx, gate, nil)
	if err != nil {
		return nil, fmt.Errorf("install: unpacking %s: %w", name, err)
	}

	// tar.Reader stops at the end-of-archive marker; drain the trailing
	// padding so the gate digests the whole archive, not a prefix.
	if _, err := io.Copy(io.Discard, gate); err != nil {
		return nil, fmt.Errorf("install: draining %s: %w", name, err)
	}

	if dep.Integrity == "" {
		dep.Integrity = gate.Digest()
	} else if dep.Integrity.Validate() == nil && gate.Digest() != dep.Integrity {
		return nil, fmt.Errorf("%w for %s: claimed %s, streamed %s", ErrIntegrityMismatch, name, dep.Integrity, gate.Digest())
	}

	meta := result.Metadata
	meta.Name = name
	meta.Version = dep.Version
	meta.Integrity = dep.Integrity
	meta.Resolved = dep.Resolved

	pm := persistedMetadata{Metadata: meta, Algorithms: []string{digest.CanonicalAlgorithm}}
	encoded, err := json.Marshal(pm)
	if err != nil {
		return nil, fmt.Errorf("install: encoding metadata for %s: %w", name, err)
	}
	// The cache write outlives a canceled install: a metadata entry for
	// content already committed to the store is never wrong to keep.
	if err := o.store.PutKeyed(dcontext.DetachedContext(ctx), key, string(encoded), dep.Integrity); err != nil {
		dcontext.GetLogger(ctx).Warnf("install: failed to persist metadata for %s: %v", name, err)
	}

	o.emit(events.Event{Type: events.TypePackageFetched, Name: name, Address: dep.Address})
	events.RecordPackageInstalled()

	return meta, nil
}
