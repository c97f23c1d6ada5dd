package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/distribution/pkginstall/digest"
)

// blobPath returns the canonical on-disk path for a blob, using a
// split-directory layout so no single directory accumulates millions
// of entries: /blobs/<algorithm>/<first-2-of-encoded>/<encoded>/data
func blobPath(dgst digest.Digest) string {
	encoded := dgst.Encoded()
	prefix := encoded
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return fmt.Sprintf("/blobs/%s/%s/%s/data", dgst.Algorithm(), prefix, encoded)
}

// newStagingPath returns a unique path under /staging for an in-flight
// blob write, so concurrent writers never collide before Commit moves
// the content into its content-addressed home.
func newStagingPath() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("/staging/%s", hex.EncodeToString(buf[:])), nil
}
