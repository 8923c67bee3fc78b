// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"bytes"
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

type memFile struct{ bytes.Buffer }

func (f *memFile) Close() error         { return nil }
func (f *memFile) Size() (int64, error) { return int64(f.Len()), nil }
func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	data := f.Bytes()
	if off >= int64(len(data)) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, bytes.ErrTooLarge
	}
	return n, nil
}

func newTestManifest(levels ...[]*manifest.TableMetadata) *manifest.Manifest {
	m := manifest.Open(manifest.FS{}, len(levels))
	edit := manifest.NewVersionEdit()
	for level, tables := range levels {
		edit.AddRun(level, tables)
	}
	if _, err := m.UpgradeVersion(edit, 1, manifest.SuperVersionMemtables{}); err != nil {
		panic(err)
	}
	return m
}

func writeTestTable(id uint64, items []base.InternalValue) (*manifest.TableMetadata, *memFile) {
	f := &memFile{}
	w := sstable.NewWriter(f, sstable.WriterOptions{TableID: id})
	for _, it := range items {
		if err := w.Add(it.Key, it.Value); err != nil {
			panic(err)
		}
	}
	meta, err := w.Finish()
	if err != nil {
		panic(err)
	}
	return manifest.FromSSTableMeta(meta), f
}

func TestExecutorMoveRelocatesWithoutRewriting(t *testing.T) {
	tbl, _ := writeTestTable(1, []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1}, Value: sstable.EncodeInlineValue([]byte("x"))},
	})
	m := newTestManifest([]*manifest.TableMetadata{tbl}, nil)
	e := &Executor{Manifest: m, Cmp: cmpBytes}

	choice := Choice{Kind: Move, InputTableIDs: []uint64{1}, DestLevel: 1}
	sv, err := e.Execute(choice, 2, manifest.SuperVersionMemtables{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sv.Version.Levels[0].TableCount() != 0 {
		t.Fatalf("level 0 should be empty after move")
	}
	if sv.Version.Levels[1].TableCount() != 1 {
		t.Fatalf("level 1 should hold the moved table")
	}
	if m.IsHidden(1) {
		t.Fatalf("table should be unhidden after a successful move")
	}
}

func TestExecutorDropDeletesInputsAndAccountsBlobStaleness(t *testing.T) {
	tbl, _ := writeTestTable(1, []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1}, Value: sstable.EncodeInlineValue([]byte("x"))},
	})
	tbl.BlobRefs = []sstable.BlobReference{{BlobFileID: 9, Items: 3, Bytes: 300}}
	m := newTestManifest([]*manifest.TableMetadata{tbl})
	// Seed a live blob file with exactly 3 total items so the drop edit
	// ripples into a full blob-file deletion.
	edit := manifest.NewVersionEdit()
	edit.NewBlobFiles = []manifest.BlobFileInfo{{FileID: 9, TotalItems: 3, TotalBytes: 300}}
	if _, err := m.UpgradeVersion(edit, 2, manifest.SuperVersionMemtables{}); err != nil {
		t.Fatalf("seed blob file: %v", err)
	}

	e := &Executor{Manifest: m, Cmp: cmpBytes}
	choice := Choice{Kind: Drop, InputTableIDs: []uint64{1}}
	sv, err := e.Execute(choice, 3, manifest.SuperVersionMemtables{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sv.Version.Levels[0].TableCount() != 0 {
		t.Fatalf("dropped table should be gone")
	}
	if _, live := sv.Version.BlobFiles[9]; live {
		t.Fatalf("blob file 9 should have been dropped once fully stale")
	}
}

func TestExecutorMergeRewritesSurvivingVersions(t *testing.T) {
	older, olderFile := writeTestTable(1, []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1, Kind: base.ValueKindSet}, Value: sstable.EncodeInlineValue([]byte("old"))},
	})
	newer, newerFile := writeTestTable(2, []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 2, Kind: base.ValueKindSet}, Value: sstable.EncodeInlineValue([]byte("new"))},
	})
	files := map[uint64]*memFile{1: olderFile, 2: newerFile}
	m := newTestManifest([]*manifest.TableMetadata{older, newer})

	var outputs []*memFile
	e := &Executor{
		Manifest: m,
		Cmp:      cmpBytes,
		OpenTable: func(tableID uint64) (*sstable.Reader, error) {
			return sstable.NewReader(files[tableID], sstable.ReaderOptions{})
		},
		NewOutputFile: func() (uint64, sstable.WritableFile, error) {
			f := &memFile{}
			outputs = append(outputs, f)
			return uint64(100 + len(outputs)), f, nil
		},
		TargetFileSizeDefault: 1 << 20,
		GCSeqnoWatermark:      0,
	}

	choice := Choice{Kind: Merge, InputTableIDs: []uint64{1, 2}, DestLevel: 0}
	sv, err := e.Execute(choice, 3, manifest.SuperVersionMemtables{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := sv.Version.Levels[0].Tables()
	if len(out) != 1 {
		t.Fatalf("expected a single merged output table, got %d", len(out))
	}
	r, err := sstable.NewReader(outputs[0], sstable.ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader on output: %v", err)
	}
	key, val, ok, err := r.Get([]byte("a"), base.SeqNumMax)
	if err != nil || !ok {
		t.Fatalf("Get(a) on merged output: ok=%v err=%v", ok, err)
	}
	if key.SeqNum != 2 {
		t.Fatalf("Get(a) on merged output should return the newest version, got seqno %d", key.SeqNum)
	}
	dv, err := sstable.DecodeValue(val)
	if err != nil || string(dv.Inline) != "new" {
		t.Fatalf("got value %q, err %v", dv.Inline, err)
	}
	if m.IsHidden(1) || m.IsHidden(2) {
		t.Fatalf("inputs should be unhidden after a successful merge")
	}
}

func TestExecutorDeclinesAlreadyHiddenInputs(t *testing.T) {
	tbl, _ := writeTestTable(1, []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1}, Value: sstable.EncodeInlineValue([]byte("x"))},
	})
	m := newTestManifest([]*manifest.TableMetadata{tbl})
	if !m.HideTables([]uint64{1}) {
		t.Fatalf("initial hide should succeed")
	}
	e := &Executor{Manifest: m, Cmp: cmpBytes}
	_, err := e.Execute(Choice{Kind: Move, InputTableIDs: []uint64{1}, DestLevel: 0}, 2, manifest.SuperVersionMemtables{})
	if err == nil {
		t.Fatalf("expected an error claiming an already-hidden table")
	}
}
