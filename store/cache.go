package store

import (
	"context"

	"github.com/distribution/pkginstall/digest"
)

// MetadataCache is the keyed metadata side-table behind Store's
// PutKeyed/GetInfo. Implementations must be safe for concurrent use,
// since the dependency iterator resolves up to 50 packages at once.
type MetadataCache interface {
	Get(ctx context.Context, key string) (metadata string, dgst digest.Digest, ok bool, err error)
	Set(ctx context.Context, key, metadata string, dgst digest.Digest) error
}

// ComposedCache reads from a fast local cache first, falling back to a
// slower shared one, and writes through to both. This is how the Store
// composes an in-process MemoryCache with an optional RedisCache: a
// second pkginstall process on the same host can still observe a
// prior cache hit without re-fetching the tarball.
type ComposedCache struct {
	local  MetadataCache
	shared MetadataCache // may be nil
}

// NewComposedCache builds a ComposedCache. shared may be nil, in which
// case this behaves exactly like local alone.
func NewComposedCache(local, shared MetadataCache) *ComposedCache {
	return &ComposedCache{local: local, shared: shared}
}

func (c *ComposedCache) Get(ctx context.Context, key string) (string, digest.Digest, bool, error) {
	if metadata, dgst, ok, err := c.local.Get(ctx, key); ok || err != nil {
		return metadata, dgst, ok, err
	}
	if c.shared == nil {
		return "", "", false, nil
	}

	metadata, dgst, ok, err := c.shared.Get(ctx, key)
	if err != nil || !ok {
		return "", "", false, err
	}

	// Warm the local cache so the next lookup doesn't cross the
	// network.
	_ = c.local.Set(ctx, key, metadata, dgst)
	return metadata, dgst, true, nil
}

func (c *ComposedCache) Set(ctx context.Context, key, metadata string, dgst digest.Digest) error {
	if err := c.local.Set(ctx, key, metadata, dgst); err != nil {
		return err
	}
	if c.shared == nil {
		return nil
	}
	return c.shared.Set(ctx, key, metadata, dgst)
}
