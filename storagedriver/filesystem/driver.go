// Package filesystem implements a storagedriver.StorageDriver backed by
// the local disk.
package filesystem

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/distribution/pkginstall/storagedriver"
)

const defaultFilePerm = 0o644
const defaultDirPerm = 0o755

// Driver is a storagedriver.StorageDriver implementation backed by a local
// filesystem. All provided paths are subpaths of the root directory.
type Driver struct {
	rootDirectory string
}

// New constructs a new Driver rooted at rootDirectory.
func New(rootDirectory string) *Driver {
	return &Driver{rootDirectory: rootDirectory}
}

func (d *Driver) subPath(p string) string {
	return filepath.Join(d.rootDirectory, filepath.FromSlash(p))
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, p string) ([]byte, error) {
	contents, err := os.ReadFile(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}
	return contents, nil
}

// PutContent stores content at the location designated by "path".
func (d *Driver) PutContent(ctx context.Context, p string, content []byte) error {
	fullPath := d.subPath(p)
	if err := os.MkdirAll(filepath.Dir(fullPath), defaultDirPerm); err != nil {
		return err
	}
	return atomicWriteFile(fullPath, content)
}

// atomicWriteFile writes content to a temp file in the same directory as
// path, then renames it into place so readers never observe a partial
// write.
func atomicWriteFile(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, defaultFilePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Reader retrieves an io.ReadCloser for content stored at "path" starting
// at the given byte offset.
func (d *Driver) Reader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	file, err := os.Open(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}

	seekPos, err := file.Seek(offset, io.SeekStart)
	if err != nil {
		file.Close()
		return nil, err
	} else if seekPos < offset {
		file.Close()
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset}
	}

	return file, nil
}

// Writer returns a FileWriter. With append false it stages content at
// path's temp sibling until Commit, at which point it is renamed into
// place. With append true it appends straight to the file at path, so
// written bytes are visible there before Commit.
func (d *Driver) Writer(ctx context.Context, p string, append bool) (storagedriver.FileWriter, error) {
	fullPath := d.subPath(p)
	if err := os.MkdirAll(filepath.Dir(fullPath), defaultDirPerm); err != nil {
		return nil, err
	}

	if append {
		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, defaultFilePerm)
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		return &fileWriter{file: f, finalPath: fullPath, size: info.Size()}, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &fileWriter{file: tmp, finalPath: fullPath, tmpPath: tmp.Name()}, nil
}

type fileWriter struct {
	file      *os.File
	finalPath string
	tmpPath   string // non-empty for non-append (commit-via-rename) writers
	size      int64
	closed    bool
	committed bool
	cancelled bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Size() int64 { return w.size }

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

func (w *fileWriter) Cancel() error {
	w.cancelled = true
	w.file.Close()
	if w.tmpPath != "" {
		return os.Remove(w.tmpPath)
	}
	return nil
}

func (w *fileWriter) Commit() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.closed = true
	w.committed = true
	if w.tmpPath == "" {
		return nil // append mode, already in place
	}
	if err := os.Chmod(w.tmpPath, defaultFilePerm); err != nil {
		return err
	}
	return os.Rename(w.tmpPath, w.finalPath)
}

// Stat retrieves the FileInfo for the given path.
func (d *Driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.subPath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}
	return fileInfo{path: p, fi: fi}, nil
}

type fileInfo struct {
	path string
	fi   fs.FileInfo
}

func (f fileInfo) Path() string          { return f.path }
func (f fileInfo) Size() int64           { return f.fi.Size() }
func (f fileInfo) ModTime() time.Time    { return f.fi.ModTime() }
func (f fileInfo) IsDir() bool           { return f.fi.IsDir() }

// List returns a list of the objects that are direct descendants of the
// given path.
func (d *Driver) List(ctx context.Context, p string) ([]string, error) {
	fullPath := d.subPath(p)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: p}
		}
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, filepath.ToSlash(filepath.Join(p, entry.Name())))
	}
	return keys, nil
}

// Move moves an object stored at sourcePath to destPath.
func (d *Driver) Move(ctx context.Context, sourcePath, destPath string) error {
	source := d.subPath(sourcePath)
	dest := d.subPath(destPath)

	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: sourcePath}
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), defaultDirPerm); err != nil {
		return err
	}

	return os.Rename(source, dest)
}

// Delete recursively deletes all objects stored at "path" and its
// subpaths.
func (d *Driver) Delete(ctx context.Context, p string) error {
	fullPath := d.subPath(p)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: p}
		}
		return err
	}
	return os.RemoveAll(fullPath)
}
