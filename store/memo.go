package store

import (
	"sync"

	"github.com/distribution/pkginstall/digest"
)

// memoMaxBlobSize caps how large a single blob the memo will hold;
// anything bigger goes straight to the driver on read.
const memoMaxBlobSize = 1 << 20

// memoMaxTotal caps the memo's total footprint. Once reached, further
// hints are dropped rather than evicting: the memo is a hint cache for
// one install run, not an LRU.
const memoMaxTotal = 64 << 20

// blobMemo is the in-process small-object cache behind
// Store.MemoByDigest: the unpacker hands over every file body it just
// stored, so a follow-up Get during the same run never touches the
// backing driver.
type blobMemo struct {
	mu    sync.RWMutex
	blobs map[digest.Digest][]byte
	total int
}

func (m *blobMemo) put(dgst digest.Digest, p []byte) {
	if len(p) > memoMaxBlobSize {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = map[digest.Digest][]byte{}
	}
	if _, ok := m.blobs[dgst]; ok {
		return
	}
	if m.total+len(p) > memoMaxTotal {
		return
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	m.blobs[dgst] = buf
	m.total += len(p)
}

func (m *blobMemo) get(dgst digest.Digest) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.blobs[dgst]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, true
}

// MemoByDigest installs p in the store's in-process small-object cache
// under dgst. Side effect only: the backing driver is never touched,
// and Get transparently prefers the memo. The caller is responsible
// for dgst actually being p's digest; the unpacker passes back the
// digest Put just computed for the same bytes.
func (s *Store) MemoByDigest(dgst digest.Digest, p []byte) {
	s.memo.put(dgst, p)
}
