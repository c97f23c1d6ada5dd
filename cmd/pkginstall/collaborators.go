package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/distribution/pkginstall/configuration"
	"github.com/distribution/pkginstall/events"
	"github.com/distribution/pkginstall/fetch"
	"github.com/distribution/pkginstall/install"
	"github.com/distribution/pkginstall/lockfile"
	"github.com/distribution/pkginstall/storagedriver"
	"github.com/distribution/pkginstall/storagedriver/filesystem"
	"github.com/distribution/pkginstall/storagedriver/inmemory"
	"github.com/distribution/pkginstall/store"
	"github.com/distribution/pkginstall/store/cache"
)

// newStorageDriver picks the filesystem driver for a real install
// and the in-memory driver for --dry-run, which reports what would
// happen without touching disk.
func newStorageDriver(cfg *configuration.Configuration, dryRun bool) storagedriver.StorageDriver {
	if dryRun {
		return inmemory.New()
	}
	return filesystem.New(cfg.Cache.Dir)
}

// newMetadataCache composes the in-process memory cache with an
// optional Redis-backed shared cache.
func newMetadataCache(cfg *configuration.Configuration) (store.MetadataCache, error) {
	local := cache.NewMemoryCache(4096)
	if cfg.Cache.Redis == nil {
		return local, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Cache.Redis.Addr,
		Password:    cfg.Cache.Redis.Password,
		DB:          cfg.Cache.Redis.DB,
		DialTimeout: cfg.Cache.Redis.DialTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Cache.Redis.Addr, err)
	}

	return store.NewComposedCache(local, cache.NewRedisCache(client)), nil
}

// newOrchestrator wires every external collaborator the install
// package leaves opaque: the HTTP fetcher/manifest resolver, the
// lockfile builder/verifier/generator, the os.RemoveAll-based Reclaimer
// Remover, and the event sink, then constructs the Store and
// Orchestrator over them.
func newOrchestrator(cfg *configuration.Configuration, dryRun bool, sink events.Sink) (*install.Orchestrator, error) {
	driver := newStorageDriver(cfg, dryRun)
	mcache, err := newMetadataCache(cfg)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, mcache)

	o := install.New(cfg, st)
	o.Fetcher = &fetch.HTTPFetcher{}
	o.ManifestResolver = &fetch.RegistryResolver{}
	o.TreeBuilder = lockfile.Builder{}
	o.LockfileVerifier = lockfile.Verifier{}
	o.LockfileGenerator = lockfile.Generator{}
	o.Remover = osRemover{}
	o.DirLinker = osDirLinker{}
	o.Sink = sink

	return o, nil
}

// osRemover implements reclaim.Remover by recursively deleting the
// dependency's install directory.
type osRemover struct{}

func (osRemover) Remove(ctx context.Context, path string) error {
	return os.RemoveAll(path)
}

// osDirLinker implements install.DirLinker for a "file:" / local-path
// dependency spec: it replaces any existing entry at newname with a
// symlink to oldname, matching npm's own junction-style local-
// dependency linking.
type osDirLinker struct{}

func (osDirLinker) Symlink(ctx context.Context, oldname, newname string) error {
	if err := os.RemoveAll(newname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newname), 0o755); err != nil {
		return err
	}
	return os.Symlink(oldname, newname)
}
