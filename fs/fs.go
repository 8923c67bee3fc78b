// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package fs is a minimal local-filesystem adapter satisfying the narrow
// file contracts manifest.FS, blob.ReadableFile/WritableFile, and
// sstable.ReadableFile/WritableFile each declare, so the tree facade has
// somewhere real to put table, blob, and manifest files on disk. It is
// deliberately thin: no virtual filesystem layer, no file locking beyond
// what the OS gives Create for free.
package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
)

// Dir is a directory on the local filesystem that every table, blob, and
// manifest file for one tree lives under.
type Dir struct {
	path string
	dirf *os.File
}

// Open opens path as a Dir, creating it if it does not already exist.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "lsmtree/fs: create directory %s", path)
	}
	dirf, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtree/fs: open directory %s", path)
	}
	return &Dir{path: path, dirf: dirf}, nil
}

// Close releases the directory handle used by SyncDir.
func (d *Dir) Close() error {
	return d.dirf.Close()
}

// Path returns the directory's path.
func (d *Dir) Path() string { return d.path }

// Create creates (or truncates) name within the directory for writing.
func (d *Dir) Create(name string) (*File, error) {
	f, err := os.OpenFile(filepath.Join(d.path, name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtree/fs: create %s", name)
	}
	return &File{f: f}, nil
}

// Open opens name within the directory for reading.
func (d *Dir) Open(name string) (*File, error) {
	f, err := os.OpenFile(filepath.Join(d.path, name), os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtree/fs: open %s", name)
	}
	return &File{f: f}, nil
}

// Remove deletes name within the directory.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(filepath.Join(d.path, name)); err != nil {
		return errors.Wrapf(err, "lsmtree/fs: remove %s", name)
	}
	return nil
}

// SyncDir fsyncs the directory itself, so a create/rename/remove within it
// is durable even if the process crashes immediately after (spec §4.9,
// "folder fsync on Unix").
func (d *Dir) SyncDir() error {
	if err := d.dirf.Sync(); err != nil {
		return errors.Wrap(err, "lsmtree/fs: sync directory")
	}
	return nil
}

// ManifestFS adapts Dir to manifest.FS.
func (d *Dir) ManifestFS() manifest.FS {
	return manifest.FS{
		Create: func(name string) (manifest.File, error) { return d.Create(name) },
		Open:   func(name string) (manifest.File, error) { return d.Open(name) },
		Remove: d.Remove,
		SyncDir: d.SyncDir,
	}
}

// File wraps an *os.File, satisfying manifest.File, blob.ReadableFile,
// blob.WritableFile, sstable.ReadableFile, and sstable.WritableFile all at
// once: every one of those interfaces is a subset of io.Writer plus
// io.ReaderAt plus io.Closer plus Size/Sync.
type File struct {
	f *os.File
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) { return f.f.Write(p) }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

// Close implements io.Closer.
func (f *File) Close() error { return f.f.Close() }

// Sync flushes the file's content to stable storage.
func (f *File) Sync() error { return f.f.Sync() }

// Size returns the file's current size.
func (f *File) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "lsmtree/fs: stat")
	}
	return fi.Size(), nil
}

var _ io.Writer = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)
var _ io.Closer = (*File)(nil)
