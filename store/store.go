// Package store implements the content-addressed blob store: an
// idempotent put(bytes) -> Digest over a storagedriver.StorageDriver,
// plus a keyed metadata side-table used by installers to remember what
// they've already resolved.
package store

import (
	"context"
	"fmt"
	"io"

	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/internal/dcontext"
	"github.com/distribution/pkginstall/storagedriver"
)

// Store is a content-addressed blob store.
type Store struct {
	driver storagedriver.StorageDriver
	cache  MetadataCache
	memo   blobMemo
}

// New constructs a Store over driver. If cache is nil, keyed metadata
// operations (PutKeyed/GetInfo) are no-ops that always miss.
func New(driver storagedriver.StorageDriver, cache MetadataCache) *Store {
	return &Store{driver: driver, cache: cache}
}

// Exists reports whether a blob for dgst is already present.
func (s *Store) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	return exists(ctx, s.driver, blobPath(dgst))
}

// Put writes p into the store, returning its canonical digest. Put is
// idempotent: if a blob for the computed digest already exists, the
// write is skipped and the existing digest is returned.
func (s *Store) Put(ctx context.Context, p []byte) (digest.Digest, error) {
	dgst := digest.FromBytes(p)

	ok, err := s.Exists(ctx, dgst)
	if err != nil {
		return "", err
	}
	if ok {
		return dgst, nil
	}

	if err := s.driver.PutContent(ctx, blobPath(dgst), p); err != nil {
		return "", err
	}
	return dgst, nil
}

// Writer returns a streaming writer into the store. The caller must
// call Commit to learn the resulting digest and make the blob visible;
// Cancel discards everything written so far.
func (s *Store) Writer(ctx context.Context) (*BlobWriter, error) {
	stagingPath, err := newStagingPath()
	if err != nil {
		return nil, err
	}

	staging, err := s.driver.Writer(ctx, stagingPath, false)
	if err != nil {
		return nil, err
	}
	return &BlobWriter{
		ctx:         ctx,
		store:       s,
		staging:     staging,
		stagingPath: stagingPath,
		digester:    digest.NewCanonicalDigester(),
	}, nil
}

// Get retrieves the full contents of the blob named by dgst, preferring
// the in-process memo (MemoByDigest) over the backing driver. This
// should only be used for small blobs such as package.json or the
// package map; prefer Reader for tarballs.
func (s *Store) Get(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	if p, ok := s.memo.get(dgst); ok {
		return p, nil
	}
	return s.driver.GetContent(ctx, blobPath(dgst))
}

// Reader returns a stream over the blob named by dgst.
func (s *Store) Reader(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	return s.driver.Reader(ctx, blobPath(dgst), 0)
}

// PutKeyed records metadata under an arbitrary caller-chosen key
// (typically depKey(name, dep)), alongside the digest it was derived
// from, so a later GetInfo can short-circuit re-fetching it.
func (s *Store) PutKeyed(ctx context.Context, key, metadata string, dgst digest.Digest) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, key, metadata, dgst); err != nil {
		dcontext.GetLogger(ctx).Warnf("store: failed to cache metadata for %q: %v", key, err)
		return err
	}
	return nil
}

// GetInfo retrieves metadata previously recorded with PutKeyed. ok is
// false when nothing is cached for key.
func (s *Store) GetInfo(ctx context.Context, key string) (metadata string, dgst digest.Digest, ok bool, err error) {
	if s.cache == nil {
		return "", "", false, nil
	}
	return s.cache.Get(ctx, key)
}

// BlobWriter is a streaming writer into a Store that computes the
// content's digest as it is written.
type BlobWriter struct {
	ctx         context.Context
	store       *Store
	staging     storagedriver.FileWriter
	stagingPath string
	digester    digest.Digester
	closed      bool
}

// Write implements io.Writer, digesting as it streams to the staging
// location.
func (w *BlobWriter) Write(p []byte) (int, error) {
	n, err := w.staging.Write(p)
	if n > 0 {
		w.digester.Hash().Write(p[:n])
	}
	return n, err
}

// Size returns the number of bytes written so far.
func (w *BlobWriter) Size() int64 { return w.staging.Size() }

// Digest returns the digest of the bytes written so far. It is only
// meaningful to call this after all writes have completed.
func (w *BlobWriter) Digest() digest.Digest { return w.digester.Digest() }

// Commit finalizes the write, moving the staged content into its
// content-addressed path, and returns the resulting digest. If a blob
// for that digest already exists, the staged copy is discarded.
func (w *BlobWriter) Commit(ctx context.Context) (digest.Digest, error) {
	if w.closed {
		return "", fmt.Errorf("store: blob writer already closed")
	}
	w.closed = true

	if err := w.staging.Commit(); err != nil {
		return "", err
	}

	dgst := w.digester.Digest()
	dest := blobPath(dgst)

	ok, err := exists(ctx, w.store.driver, dest)
	if err != nil {
		return "", err
	}
	if ok {
		// Idempotent: someone already has this blob. Drop the staged
		// copy and hand back the canonical digest.
		_ = w.store.driver.Delete(ctx, w.stagingPath)
		return dgst, nil
	}

	if err := w.store.driver.Move(ctx, w.stagingPath, dest); err != nil {
		return "", err
	}
	return dgst, nil
}

// Cancel discards everything written so far.
func (w *BlobWriter) Cancel(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.staging.Cancel(); err != nil {
		return err
	}
	return nil
}

func exists(ctx context.Context, driver storagedriver.StorageDriver, path string) (bool, error) {
	if _, err := driver.Stat(ctx, path); err != nil {
		if storagedriver.IsPathNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
