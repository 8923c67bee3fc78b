// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import "io"

// File is the minimal handle the manifest needs for one named file: write
// during creation, read back during recovery.
type File interface {
	io.Writer
	io.ReaderAt
	io.Closer
	Sync() error
}

// FS is the narrow directory contract the manifest persists through,
// mirroring the teacher's own storage.Storage seam (dialtr-pebble's
// versionSet.fs field) without depending on the concrete (out-of-scope)
// fs package: any type satisfying this interface structurally, such as
// fs.Dir, can back a Manifest.
type FS struct {
	Create func(name string) (File, error)
	Open   func(name string) (File, error)
	Remove func(name string) error
	// SyncDir fsyncs the directory itself, so newly created version files
	// and the rewritten current pointer are durable even if the process
	// crashes immediately after
	// (spec §4.9, "folder fsync on Unix").
	SyncDir func() error
}
