// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest records the durable topology of the tree: which tables
// and blob files belong to the live set, organized into levels and runs,
// plus the version chain used for snapshot isolation (spec §4.9, §4.10).
package manifest

import (
	"sync/atomic"

	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

// TableMetadata describes one table's identity and key range within a
// level, wrapping the sstable.Meta a reader would load (spec §4.9,
// "first_key ≤ last_key, the key range fully describes content").
type TableMetadata struct {
	TableID      uint64
	FirstKey     []byte
	LastKey      []byte
	FileSize     uint64
	ItemCount    uint64
	KeyCount     uint64 // UniqueKeyCount from sstable.Meta
	TombCount    uint64
	LowSeqNum    base.SeqNum
	HighSeqNum   base.SeqNum
	CreationTime uint64 // unix seconds, from sstable.Meta; used by the FIFO strategy's TTL check
	BlobRefs     []sstable.BlobReference

	refs atomic.Int32
}

// FromSSTableMeta builds a TableMetadata from a freshly-written table's
// metadata block.
func FromSSTableMeta(m sstable.Meta) *TableMetadata {
	return &TableMetadata{
		TableID:      m.TableID,
		FirstKey:     append([]byte(nil), m.FirstKey...),
		LastKey:      append([]byte(nil), m.LastKey...),
		FileSize:     m.FileSize,
		ItemCount:    m.ItemCount,
		KeyCount:     m.UniqueKeyCount,
		TombCount:    m.TombstoneCount,
		LowSeqNum:    m.LowSeqNum,
		HighSeqNum:   m.HighSeqNum,
		CreationTime: m.CreationTime,
		BlobRefs:     append([]sstable.BlobReference(nil), m.BlobRefs...),
	}
}

// Overlaps reports whether [FirstKey, LastKey] intersects [lo, hi] under
// cmp. An empty hi means unbounded above.
func (t *TableMetadata) Overlaps(cmp func(a, b []byte) int, lo, hi []byte) bool {
	if len(hi) > 0 && cmp(t.FirstKey, hi) > 0 {
		return false
	}
	if len(lo) > 0 && cmp(t.LastKey, lo) < 0 {
		return false
	}
	return true
}

// BlobBytes sums the bytes this table attributes to its referenced blob
// files, used by the FIFO strategy's size accounting (spec §4.11, "Size
// accounting includes referenced blob-file bytes attributed to each
// table").
func (t *TableMetadata) BlobBytes() uint64 {
	var sum uint64
	for _, r := range t.BlobRefs {
		sum += r.Bytes
	}
	return sum
}

// ref/unref/refCount maintain a reference counter on the table. Nothing in
// this module calls them: physical deletion of a table file is decided by
// the tree facade's before/after live-set diff (see DESIGN.md), not by
// this counter.
func (t *TableMetadata) ref()          { t.refs.Add(1) }
func (t *TableMetadata) unref() int32  { return t.refs.Add(-1) }
func (t *TableMetadata) refCount() int32 { return t.refs.Load() }
