// Package storagedriver defines the key/value byte-storage abstraction that
// the content-addressed store and the package-map writer sit on top of.
package storagedriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// StorageDriver defines methods that a storage driver must implement for a
// filesystem-like key/value object storage.
type StorageDriver interface {
	// GetContent retrieves the content stored at "path" as a []byte. This
	// should primarily be used for small objects.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores the []byte content at a location designated by
	// "path". This should primarily be used for small objects.
	PutContent(ctx context.Context, path string, content []byte) error

	// Reader retrieves an io.ReadCloser for the content stored at "path"
	// with a given byte offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Writer returns a FileWriter which will store the content written to
	// it at the location designated by "path" after the call to Commit.
	// With append set, a driver may write in place before Commit (the
	// filesystem driver does).
	Writer(ctx context.Context, path string, append bool) (FileWriter, error)

	// Stat retrieves the FileInfo for the given path, including the
	// current size in bytes and the modification time.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns a list of the objects that are direct descendants of
	// the given path.
	List(ctx context.Context, path string) ([]string, error)

	// Move moves an object stored at sourcePath to destPath, removing the
	// original object.
	Move(ctx context.Context, sourcePath string, destPath string) error

	// Delete recursively deletes all objects stored at "path" and its
	// subpaths.
	Delete(ctx context.Context, path string) error
}

// FileWriter is a file-like writer abstraction with a commit/cancel
// protocol, so a half-written upload through a non-append writer never
// becomes visible through Reader/Stat/List until Commit succeeds.
type FileWriter interface {
	io.WriteCloser

	// Size returns the number of bytes written to this FileWriter.
	Size() int64

	// Cancel removes any written content for this FileWriter.
	Cancel() error

	// Commit flushes all content written to this FileWriter and makes it
	// visible to subsequent calls to Stat, GetContent and Reader.
	Commit() error
}

// FileInfo describes a resource on the target storage system.
type FileInfo interface {
	Path() string
	Size() int64
	ModTime() time.Time
	IsDir() bool
}

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path string
}

func (err PathNotFoundError) Error() string {
	return fmt.Sprintf("storagedriver: path not found: %s", err.Path)
}

// InvalidPathError is returned when the provided path is malformed.
type InvalidPathError struct {
	Path string
}

func (err InvalidPathError) Error() string {
	return fmt.Sprintf("storagedriver: invalid path: %s", err.Path)
}

// InvalidOffsetError is returned when attempting to read or write from an
// invalid offset.
type InvalidOffsetError struct {
	Path   string
	Offset int64
}

func (err InvalidOffsetError) Error() string {
	return fmt.Sprintf("storagedriver: invalid offset %d for path %s", err.Offset, err.Path)
}

// IsPathNotFound reports whether err is (or wraps) a PathNotFoundError.
func IsPathNotFound(err error) bool {
	var notFound PathNotFoundError
	return errors.As(err, &notFound)
}
