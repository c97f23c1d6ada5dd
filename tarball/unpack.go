// Package tarball implements the streaming tarball unpacker: it
// stream-parses one package tar archive, sanitises entry paths, pipes
// file bodies into a content-addressed store, and yields a File
// Manifest plus Package Metadata.
package tarball

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/distribution/pkginstall/digest"
)

// BlobSink is the write side of a content-addressed store: exactly
// the signature store.Store.Put already has, kept as a narrow local
// interface so this package doesn't import store and stays usable
// against any CAS-shaped backend (including a test fake).
type BlobSink interface {
	Put(ctx context.Context, p []byte) (digest.Digest, error)
}

// BlobMemoizer is optionally implemented by a BlobSink that keeps an
// in-process copy of small blobs. When the sink supports it, the
// unpacker hands over every file body it just stored, so a follow-up
// read of the same content during the run never hits the backing
// storage.
type BlobMemoizer interface {
	MemoByDigest(dgst digest.Digest, p []byte)
}

// Transform optionally rewrites a file entry's body before it is
// digested and stored, e.g. for decompression filters layered by a
// caller. Returning the input reader unchanged is a no-op transform.
type Transform func(path string, r io.Reader) (io.Reader, error)

// WarnFunc receives a non-fatal diagnostic for a single entry: a bad
// path, an unsupported type, or a per-file transform failure. The
// unpack continues regardless.
type WarnFunc func(path, message string)

// Events lets a caller observe the Unpacker's state machine, always
// in the same order: exactly one Metadata, then Prefinish, Finish,
// End, Close. All fields are optional; Unpack still completes
// normally with ev == nil.
type Events struct {
	Metadata  func(*Metadata)
	Prefinish func()
	Finish    func()
	End       func()
	Close     func()
}

func (ev *Events) fireMetadata(m *Metadata) {
	if ev != nil && ev.Metadata != nil {
		ev.Metadata(m)
	}
}

func (ev *Events) firePrefinish() {
	if ev != nil && ev.Prefinish != nil {
		ev.Prefinish()
	}
}

func (ev *Events) fireFinish() {
	if ev != nil && ev.Finish != nil {
		ev.Finish()
	}
}

func (ev *Events) fireEnd() {
	if ev != nil && ev.End != nil {
		ev.End()
	}
}

func (ev *Events) fireClose() {
	if ev != nil && ev.Close != nil {
		ev.Close()
	}
}

// Unpacker stream-parses a single tar archive.
type Unpacker struct {
	// Strip is the number of leading path segments dropped from every
	// entry, conventionally 1 to drop npm's "package/" directory.
	Strip int

	// Transform, if set, is applied to every file entry's body before
	// it's handed to Store.
	Transform Transform

	// Warn receives non-fatal per-entry diagnostics. Defaults to a
	// no-op when nil.
	Warn WarnFunc

	// Store is where file bodies are written; its returned digests
	// become the Manifest's leaves.
	Store BlobSink
}

// Result is what Unpack returns: the file manifest plus the metadata
// document extracted along the way.
type Result struct {
	Manifest Manifest
	Metadata *Metadata
}

// Unpack stream-parses r as a tar archive (already decompressed by the
// caller) and returns the resulting Result. ev, if non-nil, is called
// through the ordered lifecycle documented on Events. A fatal stream
// error aborts the unpack and is returned directly; per-file errors
// are reported through Warn and do not abort.
func (u *Unpacker) Unpack(ctx context.Context, r io.Reader, ev *Events) (*Result, error) {
	warn := u.Warn
	if warn == nil {
		warn = func(string, string) {}
	}

	tr := tar.NewReader(r)
	manifest := Manifest{}
	meta := newMetadata()

	var mu sync.Mutex
	var wg sync.WaitGroup

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			wg.Wait()
			return nil, fmt.Errorf("tarball: reading entry: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeRegA, tar.TypeCont:
			cleaned, w, skip := sanitizeEntryPath(hdr.Name, u.Strip)
			if skip {
				if w != "" {
					warn(hdr.Name, w)
				}
				continue
			}
			if w != "" {
				warn(cleaned, w)
			}
			if cleaned == "" {
				continue
			}

			body, err := io.ReadAll(tr)
			if err != nil {
				warn(cleaned, err.Error())
				continue
			}

			wg.Add(1)
			go func(path string, body []byte) {
				defer wg.Done()
				if err := u.processFile(ctx, path, body, meta, manifest, &mu); err != nil {
					warn(path, err.Error())
				}
			}(cleaned, body)

		case tar.TypeDir, tar.TypeLink, tar.TypeSymlink:
			// Manifests record only regular files.
			continue

		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			warn(hdr.Name, "unsupported entry type")
			continue

		default:
			// PAX/GNU long-name headers and the like: archive/tar
			// already folds these into the following entry's Header.
			continue
		}
	}

	wg.Wait()

	meta.Files = manifest
	ev.fireMetadata(meta)
	ev.firePrefinish()
	ev.fireFinish()
	ev.fireEnd()
	ev.fireClose()

	return &Result{Manifest: manifest, Metadata: meta}, nil
}

func (u *Unpacker) processFile(ctx context.Context, path string, body []byte, meta *Metadata, manifest Manifest, mu *sync.Mutex) error {
	if u.Transform != nil {
		transformed, err := u.Transform(path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
		b, err := io.ReadAll(transformed)
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
		body = b
	}

	if path == "package.json" {
		mu.Lock()
		err := applyPackageJSON(meta, body)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("parse package.json: %w", err)
		}
	}

	mu.Lock()
	applyGypFile(meta, path)
	mu.Unlock()

	dgst, err := u.Store.Put(ctx, body)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if m, ok := u.Store.(BlobMemoizer); ok {
		m.MemoByDigest(dgst, body)
	}

	mu.Lock()
	manifest.insert(path, dgst)
	mu.Unlock()

	return nil
}
