package storagedriver

import (
	"context"
	"io"
	"path"
	"strings"
)

// wrapper wraps the underlying StorageDriver with common operations like
// path checks for each method.
type wrapper struct {
	driver StorageDriver
}

// Wrap creates a wrapper for the given storage driver to apply common
// checks on each StorageDriver method.
func Wrap(d StorageDriver) StorageDriver {
	return wrapper{driver: d}
}

func validPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") {
		return false
	}
	return path.Clean(p) == p
}

func (d wrapper) GetContent(ctx context.Context, p string) ([]byte, error) {
	if !validPath(p) {
		return nil, InvalidPathError{Path: p}
	}
	return d.driver.GetContent(ctx, p)
}

func (d wrapper) PutContent(ctx context.Context, p string, content []byte) error {
	if !validPath(p) {
		return InvalidPathError{Path: p}
	}
	return d.driver.PutContent(ctx, p, content)
}

func (d wrapper) Reader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	if !validPath(p) {
		return nil, InvalidPathError{Path: p}
	}
	return d.driver.Reader(ctx, p, offset)
}

func (d wrapper) Writer(ctx context.Context, p string, append bool) (FileWriter, error) {
	if !validPath(p) {
		return nil, InvalidPathError{Path: p}
	}
	return d.driver.Writer(ctx, p, append)
}

func (d wrapper) Stat(ctx context.Context, p string) (FileInfo, error) {
	if !validPath(p) {
		return nil, InvalidPathError{Path: p}
	}
	return d.driver.Stat(ctx, p)
}

func (d wrapper) List(ctx context.Context, p string) ([]string, error) {
	if !validPath(p) && p != "/" {
		return nil, InvalidPathError{Path: p}
	}
	return d.driver.List(ctx, p)
}

func (d wrapper) Move(ctx context.Context, sourcePath, destPath string) error {
	if !validPath(sourcePath) {
		return InvalidPathError{Path: sourcePath}
	}
	if !validPath(destPath) {
		return InvalidPathError{Path: destPath}
	}
	return d.driver.Move(ctx, sourcePath, destPath)
}

func (d wrapper) Delete(ctx context.Context, p string) error {
	if !validPath(p) {
		return InvalidPathError{Path: p}
	}
	return d.driver.Delete(ctx, p)
}
