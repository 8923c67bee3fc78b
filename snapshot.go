// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import "github.com/fjall-rs/lsm-tree-sub003/internal/base"

// Snapshot pins a point-in-time view of a Tree: every read through it sees
// exactly the writes committed before the snapshot was taken (spec §4.14
// "snapshot"). A Snapshot holds no tables or memtables open by itself; it
// is a sequence number plus bookkeeping that keeps maintenance() from
// reclaiming anything the snapshot might still need.
type Snapshot struct {
	tree *Tree
	seq  base.SeqNum
}

// Snapshot opens a new Snapshot at the tree's current visible sequence
// number. Every version committed up to and including this call is
// visible through it; nothing committed afterward is.
func (t *Tree) Snapshot() *Snapshot {
	seq := base.SeqNum(t.visibleSeq.Load()) + 1
	s := &Snapshot{tree: t, seq: seq}
	t.snapMu.Lock()
	t.openSnaps[s] = seq
	t.snapMu.Unlock()
	return s
}

// SeqNum returns the snapshot sequence number reads through this Snapshot
// are pinned to.
func (s *Snapshot) SeqNum() base.SeqNum { return s.seq }

// Get reads key as of this snapshot.
func (s *Snapshot) Get(key []byte) ([]byte, bool, error) { return s.tree.Get(key, s.seq) }

// ContainsKey reports whether key is live as of this snapshot.
func (s *Snapshot) ContainsKey(key []byte) (bool, error) { return s.tree.ContainsKey(key, s.seq) }

// Range iterates [start, end) as of this snapshot.
func (s *Snapshot) Range(start, end []byte) (*RangeIterator, error) {
	return s.tree.Range(start, end, s.seq)
}

// Prefix iterates every key beginning with prefix as of this snapshot.
func (s *Snapshot) Prefix(prefix []byte) (*RangeIterator, error) {
	return s.tree.Prefix(prefix, s.seq)
}

// FirstKeyValue returns the smallest live key as of this snapshot.
func (s *Snapshot) FirstKeyValue() ([]byte, []byte, bool, error) { return s.tree.FirstKeyValue(s.seq) }

// LastKeyValue returns the largest live key as of this snapshot.
func (s *Snapshot) LastKeyValue() ([]byte, []byte, bool, error) { return s.tree.LastKeyValue(s.seq) }

// Release lets the tree reclaim versions this snapshot was pinning.
// Readers must not use the Snapshot after calling Release.
func (s *Snapshot) Release() {
	s.tree.snapMu.Lock()
	delete(s.tree.openSnaps, s)
	s.tree.snapMu.Unlock()
}

// gcWatermark returns the oldest sequence number any open snapshot still
// needs, or the tree's current visible sequence number plus one if none
// are open (spec §4.9, "maintenance(gc_watermark)"). Compaction and
// manifest maintenance must never evict a version or a value still
// visible at this watermark.
func (t *Tree) gcWatermark() base.SeqNum {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	watermark := base.SeqNum(t.visibleSeq.Load()) + 1
	for _, seq := range t.openSnaps {
		if seq < watermark {
			watermark = seq
		}
	}
	return watermark
}
