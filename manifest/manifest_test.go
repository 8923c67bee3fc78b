// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"sync"
	"testing"
)

// memFS is a trivial in-memory FS for exercising Manifest persistence
// without a real filesystem.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS { return &memFS{files: make(map[string][]byte)} }

type memFile struct {
	fs   *memFS
	name string
	buf  bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	data := f.fs.files[f.name]
	f.fs.mu.Unlock()
	if off >= int64(len(data)) {
		return 0, errEOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, errEOF
	}
	return n, nil
}
func (f *memFile) Close() error {
	f.fs.mu.Lock()
	f.fs.files[f.name] = append([]byte(nil), f.buf.Bytes()...)
	f.fs.mu.Unlock()
	return nil
}
func (f *memFile) Sync() error { return nil }

type errString string

func (e errString) Error() string { return string(e) }

const errEOF = errString("eof")

func (fs *memFS) asManifestFS() FS {
	return FS{
		Create: func(name string) (File, error) {
			return &memFile{fs: fs, name: name}, nil
		},
		Open: func(name string) (File, error) {
			fs.mu.Lock()
			_, ok := fs.files[name]
			fs.mu.Unlock()
			if !ok {
				return nil, errString("not found: " + name)
			}
			return &memFile{fs: fs, name: name}, nil
		},
		Remove: func(name string) error {
			fs.mu.Lock()
			delete(fs.files, name)
			fs.mu.Unlock()
			return nil
		},
		SyncDir: func() error { return nil },
	}
}

func TestManifestUpgradeVersionPersistsAndChains(t *testing.T) {
	mfs := newMemFS()
	m := Open(mfs.asManifestFS(), 3)

	edit := NewVersionEdit()
	tbl := &TableMetadata{TableID: m.NextTableID(), FirstKey: []byte("a"), LastKey: []byte("m"), ItemCount: 5, KeyCount: 5}
	edit.AddRun(0, []*TableMetadata{tbl})
	edit.LastSequence = 10

	sv, err := m.UpgradeVersion(edit, 10, SuperVersionMemtables{})
	if err != nil {
		t.Fatalf("UpgradeVersion: %v", err)
	}
	if sv.Version.ID != 2 {
		t.Fatalf("new version id = %d, want 2", sv.Version.ID)
	}
	if got := m.Current().Version.Levels[0].TableCount(); got != 1 {
		t.Fatalf("level 0 table count = %d, want 1", got)
	}

	if _, ok := mfs.files["v2"]; !ok {
		t.Fatalf("expected a persisted v2 file")
	}
	if _, ok := mfs.files["current"]; !ok {
		t.Fatalf("expected a persisted current pointer")
	}
}

func TestManifestRecoverReconstructsTopology(t *testing.T) {
	mfs := newMemFS()
	m := Open(mfs.asManifestFS(), 1)

	tbl := &TableMetadata{TableID: m.NextTableID(), FirstKey: []byte("a"), LastKey: []byte("z"), ItemCount: 1, KeyCount: 1}
	edit := NewVersionEdit()
	edit.AddRun(0, []*TableMetadata{tbl})
	if _, err := m.UpgradeVersion(edit, 1, SuperVersionMemtables{}); err != nil {
		t.Fatalf("UpgradeVersion: %v", err)
	}

	resolve := func(tableID uint64) (*TableMetadata, error) {
		return &TableMetadata{TableID: tableID, FirstKey: []byte("a"), LastKey: []byte("z"), ItemCount: 1, KeyCount: 1}, nil
	}
	recovered, err := Recover(mfs.asManifestFS(), resolve)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered.Current().Version.Levels[0].TableCount() != 1 {
		t.Fatalf("recovered topology missing the table")
	}
	if got := recovered.Current().Version.Levels[0].Tables()[0].TableID; got != tbl.TableID {
		t.Fatalf("recovered table id = %d, want %d", got, tbl.TableID)
	}
}

func TestHiddenSetDeclinesOverlappingClaims(t *testing.T) {
	mfs := newMemFS()
	m := Open(mfs.asManifestFS(), 1)

	if !m.HideTables([]uint64{1, 2, 3}) {
		t.Fatalf("first claim should succeed")
	}
	if m.HideTables([]uint64{3, 4}) {
		t.Fatalf("second claim overlapping table 3 should be declined")
	}
	m.UnhideTables([]uint64{1, 2, 3})
	if !m.HideTables([]uint64{3, 4}) {
		t.Fatalf("claim should succeed once released")
	}
}

func TestVersionEditDeleteAndAddRuns(t *testing.T) {
	parent := NewEmptyVersion(1)
	parent.ID = 1
	old := &TableMetadata{TableID: 1, FirstKey: []byte("a"), LastKey: []byte("z")}
	parent.Levels[0].Runs = []Run{{Tables: []*TableMetadata{old}}}

	edit := NewVersionEdit()
	edit.DeleteTable(1)
	newTable := &TableMetadata{TableID: 2, FirstKey: []byte("a"), LastKey: []byte("z")}
	edit.AddRun(0, []*TableMetadata{newTable})

	next := edit.Apply(parent)
	if next.ID != 2 {
		t.Fatalf("next.ID = %d, want 2", next.ID)
	}
	tables := next.Levels[0].Tables()
	if len(tables) != 1 || tables[0].TableID != 2 {
		t.Fatalf("expected only table 2 to remain, got %v", tables)
	}
	// The parent must be unaffected by the child's edits (copy-on-write).
	if len(parent.Levels[0].Tables()) != 1 || parent.Levels[0].Tables()[0].TableID != 1 {
		t.Fatalf("parent version was mutated by child's edit")
	}
}
