// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateWriteReopenReadBack(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	f, err := d.Create("table-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := d.Open("table-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	size, err := r.Size()
	if err != nil || size != 11 {
		t.Fatalf("Size: got %d, %v", size, err)
	}
	buf := make([]byte, 5)
	if _, err := r.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("got %q, want %q", buf, "world")
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	f, err := d.Create("scratch")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.Close()

	if err := d.Remove("scratch"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scratch")); !os.IsNotExist(err) {
		t.Fatalf("expected scratch to be gone, stat err = %v", err)
	}
}

func TestManifestFSAdapterRoundTrips(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	mfs := d.ManifestFS()
	mf, err := mfs.Create("current")
	if err != nil {
		t.Fatalf("Create via manifest.FS: %v", err)
	}
	if _, err := mf.Write([]byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mf.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	mf.Close()

	if err := mfs.SyncDir(); err != nil {
		t.Fatalf("SyncDir: %v", err)
	}

	rf, err := mfs.Open("current")
	if err != nil {
		t.Fatalf("Open via manifest.FS: %v", err)
	}
	defer rf.Close()
	buf := make([]byte, 2)
	if _, err := rf.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "v1" {
		t.Fatalf("got %q, want v1", buf)
	}
}
