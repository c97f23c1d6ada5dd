// Package inmemory implements a storagedriver.StorageDriver backed by a
// process-local map. Intended for tests and --dry-run installs.
package inmemory

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/distribution/pkginstall/storagedriver"
)

// Driver is a storagedriver.StorageDriver implementation backed by a
// local map.
type Driver struct {
	mu      sync.RWMutex
	storage map[string][]byte
	modTime map[string]time.Time
}

// New constructs a new Driver.
func New() *Driver {
	return &Driver{
		storage: make(map[string][]byte),
		modTime: make(map[string]time.Time),
	}
}

func (d *Driver) GetContent(ctx context.Context, p string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	contents, ok := d.storage[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	out := make([]byte, len(contents))
	copy(out, contents)
	return out, nil
}

func (d *Driver) PutContent(ctx context.Context, p string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	d.storage[p] = buf
	d.modTime[p] = timeNow()
	return nil
}

func (d *Driver) Reader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	contents, ok := d.storage[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	if offset < 0 || int(offset) > len(contents) {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}
	buf := make([]byte, len(contents)-int(offset))
	copy(buf, contents[offset:])
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (d *Driver) Writer(ctx context.Context, p string, append bool) (storagedriver.FileWriter, error) {
	d.mu.RLock()
	existing := append2(d.storage[p], append)
	d.mu.RUnlock()
	return &fileWriter{driver: d, path: p, buf: existing}, nil
}

func append2(existing []byte, append bool) []byte {
	if !append {
		return nil
	}
	buf := make([]byte, len(existing))
	copy(buf, existing)
	return buf
}

type fileWriter struct {
	driver    *Driver
	path      string
	buf       []byte
	committed bool
	cancelled bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *fileWriter) Size() int64 { return int64(len(w.buf)) }

func (w *fileWriter) Close() error { return nil }

func (w *fileWriter) Cancel() error {
	w.cancelled = true
	return nil
}

func (w *fileWriter) Commit() error {
	w.committed = true
	return w.driver.PutContent(context.Background(), w.path, w.buf)
}

func (d *Driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	contents, ok := d.storage[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	return fileInfo{path: p, size: int64(len(contents)), modTime: d.modTime[p]}, nil
}

type fileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

func (f fileInfo) Path() string       { return f.path }
func (f fileInfo) Size() int64        { return f.size }
func (f fileInfo) ModTime() time.Time { return f.modTime }
func (f fileInfo) IsDir() bool        { return false }

func (d *Driver) List(ctx context.Context, p string) ([]string, error) {
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	keySet := make(map[string]struct{})
	for k := range d.storage {
		if !strings.HasPrefix(k, p) {
			continue
		}
		rest := k[len(p):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			continue
		}
		keySet[path.Join(p, rest)] = struct{}{}
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	return keys, nil
}

func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	contents, ok := d.storage[sourcePath]
	if !ok {
		return storagedriver.PathNotFoundError{Path: sourcePath}
	}
	d.storage[destPath] = contents
	d.modTime[destPath] = timeNow()
	delete(d.storage, sourcePath)
	delete(d.modTime, sourcePath)
	return nil
}

func (d *Driver) Delete(ctx context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var subPaths []string
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range d.storage {
		if k == p || strings.HasPrefix(k, prefix) {
			subPaths = append(subPaths, k)
		}
	}
	if len(subPaths) == 0 {
		return storagedriver.PathNotFoundError{Path: p}
	}
	for _, sp := range subPaths {
		delete(d.storage, sp)
		delete(d.modTime, sp)
	}
	return nil
}

// timeNow is a seam so tests don't depend on wall-clock time for
// ordering assertions.
var timeNow = time.Now
