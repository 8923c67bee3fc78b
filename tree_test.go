// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import (
	"fmt"
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/compaction"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

// lastLevelOptions returns Options tuned so a two-level tree (L0, L1)
// always merges L0 into L1 on the very first Compact/MajorCompact call,
// making L1 the last level for eviction purposes (spec §4.11, §4.12).
func lastLevelOptions() Options {
	return Options{
		NumLevels: 2,
		CompactionConfig: compaction.Config{
			L0CompactionTrigger: 1,
		},
	}
}

func mustOpen(t *testing.T, opts Options) *Tree {
	t.Helper()
	tr, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

// S1 — Basic MVCC (spec §8).
func TestBasicMVCC(t *testing.T) {
	tr := mustOpen(t, Options{})

	mustInsert(t, tr, "a", "a0", 0)
	mustInsert(t, tr, "a", "a1", 1)
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("FlushActiveMemtable: %v", err)
	}
	mustInsert(t, tr, "a", "a5", 5)

	cases := []struct {
		snap base.SeqNum
		want string
	}{
		{1, "a0"},
		{2, "a1"},
		{5, "a1"},
		{6, "a5"},
		{base.SeqNumMax, "a5"},
	}
	for _, c := range cases {
		val, ok, err := tr.Get([]byte("a"), c.snap)
		if err != nil {
			t.Fatalf("Get(%d): %v", c.snap, err)
		}
		if !ok {
			t.Fatalf("Get(%d): key absent, want %q", c.snap, c.want)
		}
		if string(val) != c.want {
			t.Errorf("Get(%d) = %q, want %q", c.snap, val, c.want)
		}
	}
}

// S2 — Tombstone and last-level eviction (spec §8).
func TestTombstoneLastLevelEviction(t *testing.T) {
	tr := mustOpen(t, lastLevelOptions())

	mustInsert(t, tr, "a", "a", 0)
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush 1: %v", err)
	}
	if err := tr.Remove([]byte("a"), 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush 2: %v", err)
	}

	if n := countTables(tr); n != 2 {
		t.Fatalf("before compaction: %d tables, want 2", n)
	}

	if err := tr.MajorCompact(1000, 1000); err != nil {
		t.Fatalf("MajorCompact: %v", err)
	}

	if n := countTables(tr); n != 0 {
		t.Fatalf("after compaction: %d tables, want 0", n)
	}
	if _, ok, err := tr.Get([]byte("a"), base.SeqNumMax); err != nil {
		t.Fatalf("Get: %v", err)
	} else if ok {
		t.Fatalf("Get after eviction: found a value, want absent")
	}
	if n, err := tr.Len(base.SeqNumMax); err != nil {
		t.Fatalf("Len: %v", err)
	} else if n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}
}

// S3 — Weak delete pairs (spec §8).
func TestWeakDeletePairs(t *testing.T) {
	tr := mustOpen(t, lastLevelOptions())

	mustInsert(t, tr, "a", "a", 0)
	if err := tr.RemoveWeak([]byte("a"), 1); err != nil {
		t.Fatalf("RemoveWeak: %v", err)
	}
	if err := tr.FlushActiveMemtable(1); err != nil {
		t.Fatalf("FlushActiveMemtable: %v", err)
	}
	if err := tr.MajorCompact(1, 1); err != nil {
		t.Fatalf("MajorCompact: %v", err)
	}

	if n := countTables(tr); n != 0 {
		t.Fatalf("after compaction: %d tables, want 0 (both items should pair off)", n)
	}
	if _, ok, err := tr.Get([]byte("a"), base.SeqNumMax); err != nil {
		t.Fatalf("Get: %v", err)
	} else if ok {
		t.Fatalf("Get after weak-delete pairing: found a value, want absent")
	}
}

// S5 — Recovery of level topology (spec §8).
func TestRecoveryPreservesTopology(t *testing.T) {
	dir := t.TempDir()
	opts := lastLevelOptions()

	tr, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 50; i++ {
		mustInsert(t, tr, fmt.Sprintf("key-%03d", i), fmt.Sprintf("val-%03d", i), base.SeqNum(i))
	}
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for i := 50; i < 100; i++ {
		mustInsert(t, tr, fmt.Sprintf("key-%03d", i), fmt.Sprintf("val-%03d", i), base.SeqNum(i))
	}
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := tr.MajorCompact(0, 100); err != nil {
		t.Fatalf("MajorCompact: %v", err)
	}

	preTables := tableIDSet(tr)
	if len(preTables) == 0 {
		t.Fatalf("expected at least one table before reopen")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr2, err := Recover(dir, opts)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer tr2.Close()

	postTables := tableIDSet(tr2)
	if len(postTables) != len(preTables) {
		t.Fatalf("table count after reopen = %d, want %d", len(postTables), len(preTables))
	}
	for id := range preTables {
		if _, ok := postTables[id]; !ok {
			t.Errorf("table %d present before reopen, missing after", id)
		}
	}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%03d", i)
		want := fmt.Sprintf("val-%03d", i)
		val, ok, err := tr2.Get([]byte(key), base.SeqNumMax)
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if !ok || string(val) != want {
			t.Errorf("Get(%s) = %q, %v; want %q, true", key, val, ok, want)
		}
	}
}

// S6 — Blob GC (spec §8).
func TestBlobFileGarbageCollection(t *testing.T) {
	opts := lastLevelOptions()
	opts.ValueSeparationThreshold = 1
	tr := mustOpen(t, opts)

	v1 := make([]byte, 10_000)
	for i := range v1 {
		v1[i] = 'A'
	}
	v2 := make([]byte, 10_000)
	for i := range v2 {
		v2[i] = 'B'
	}

	if err := tr.Insert([]byte("a"), v1, 0); err != nil {
		t.Fatalf("Insert v1: %v", err)
	}
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush 1: %v", err)
	}
	if err := tr.Insert([]byte("a"), v2, 1); err != nil {
		t.Fatalf("Insert v2: %v", err)
	}
	if err := tr.FlushActiveMemtable(0); err != nil {
		t.Fatalf("flush 2: %v", err)
	}

	if n := len(tr.manifest.Current().Version.BlobFiles); n != 2 {
		t.Fatalf("blob files before compaction = %d, want 2", n)
	}

	if err := tr.MajorCompact(1000, 1000); err != nil {
		t.Fatalf("MajorCompact: %v", err)
	}

	sv := tr.manifest.Current()
	if n := len(sv.Version.BlobFiles); n != 1 {
		t.Fatalf("blob files after compaction = %d, want 1 (only the file backing v2 survives)", n)
	}

	val, ok, err := tr.Get([]byte("a"), base.SeqNumMax)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(val) != string(v2) {
		t.Fatalf("Get after compaction did not return the surviving blob value")
	}
}

func mustInsert(t *testing.T, tr *Tree, key, value string, seq base.SeqNum) {
	t.Helper()
	if err := tr.Insert([]byte(key), []byte(value), seq); err != nil {
		t.Fatalf("Insert(%s, %s, %d): %v", key, value, seq, err)
	}
}

func countTables(tr *Tree) int {
	sv := tr.manifest.Current()
	n := 0
	for _, l := range sv.Version.Levels {
		n += l.TableCount()
	}
	return n
}

func tableIDSet(tr *Tree) map[uint64]struct{} {
	sv := tr.manifest.Current()
	out := make(map[uint64]struct{})
	for _, l := range sv.Version.Levels {
		for _, tb := range l.Tables() {
			out[tb.TableID] = struct{}{}
		}
	}
	return out
}
