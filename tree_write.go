// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import (
	"github.com/cockroachdb/errors"

	"github.com/fjall-rs/lsm-tree-sub003/blob"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

// Insert stores value under key, visible to any read whose snapshot
// sequence number is greater than seq (spec §4.14, "insert"). Values at
// or above Options.ValueSeparationThreshold are written to the active
// blob file and replaced in the memtable by an indirection handle, the
// same tagging every table on disk carries (spec §4.13).
func (t *Tree) Insert(key, value []byte, seq base.SeqNum) error {
	if err := base.UserKey(key).Validate(); err != nil {
		return err
	}
	tagged, err := t.tagValue(key, value)
	if err != nil {
		return err
	}
	return t.appendLive(base.InternalKey{UserKey: append(base.UserKey(nil), key...), SeqNum: seq, Kind: base.ValueKindSet}, tagged)
}

// Remove writes a tombstone that shadows every older version of key
// until it is evicted during compaction into the last level (spec §4.14
// "remove", spec §4.8).
func (t *Tree) Remove(key []byte, seq base.SeqNum) error {
	if err := base.UserKey(key).Validate(); err != nil {
		return err
	}
	return t.appendLive(base.InternalKey{UserKey: append(base.UserKey(nil), key...), SeqNum: seq, Kind: base.ValueKindTombstone}, nil)
}

// RemoveWeak writes a weak tombstone that cancels exactly one immediate
// predecessor version of key, rather than every older version (spec
// §4.14 "remove_weak", spec §3).
func (t *Tree) RemoveWeak(key []byte, seq base.SeqNum) error {
	if err := base.UserKey(key).Validate(); err != nil {
		return err
	}
	return t.appendLive(base.InternalKey{UserKey: append(base.UserKey(nil), key...), SeqNum: seq, Kind: base.ValueKindWeakTombstone}, nil)
}

// appendLive logs then inserts one internal value into the current
// active memtable, advancing the tree's visible sequence number (spec
// §4.7). rotateMu is held only long enough to read the active memtable
// reference, matching the concurrency model's "memtable writes need no
// external synchronization" (spec §5): the memtable itself arbitrates
// concurrent inserts.
func (t *Tree) appendLive(ik base.InternalKey, value []byte) error {
	t.rotateMu.Lock()
	mt := t.activeMemtable()
	w := t.walFor(mt.ID())
	t.rotateMu.Unlock()

	iv := base.InternalValue{Key: ik, Value: value}
	if w != nil {
		if err := w.Append(iv); err != nil {
			return errors.Wrap(err, "lsmtree: append write-ahead log")
		}
	}
	mt.Insert(iv)
	t.advanceVisibleSeq(ik.SeqNum)
	return nil
}

// advanceVisibleSeq bumps the tree's visible sequence number to seq if
// it is newer, using a CAS loop since concurrent inserts may race.
func (t *Tree) advanceVisibleSeq(seq base.SeqNum) {
	for {
		cur := t.visibleSeq.Load()
		if uint64(seq) <= cur {
			return
		}
		if t.visibleSeq.CompareAndSwap(cur, uint64(seq)) {
			return
		}
	}
}

// tagValue encodes value per Options.ValueSeparationThreshold: small
// values are tagged inline, large ones are appended to the active blob
// file and replaced by an indirection tag (spec §4.13). The active blob
// file is rotated in lockstep with the active memtable: its finished stats
// are registered by the rotation that seals that memtable, in a
// VersionEdit published before the one that adds the flushed tables.
func (t *Tree) tagValue(key, value []byte) ([]byte, error) {
	if t.opts.ValueSeparationThreshold <= 0 || len(value) < t.opts.ValueSeparationThreshold {
		return sstable.EncodeInlineValue(value), nil
	}
	t.blobMu.Lock()
	defer t.blobMu.Unlock()
	if t.activeBlob == nil {
		id, f, err := t.newBlobOutputFile()
		if err != nil {
			return nil, err
		}
		t.activeBlob = blob.NewFileWriter(id, f)
		t.activeBlobID = id
	}
	h, err := t.activeBlob.AddValue(key, value)
	if err != nil {
		return nil, err
	}
	return sstable.EncodeIndirectValue(h), nil
}

// finishedBlobFile is a closed blob file's stats, ready to register in a
// VersionEdit alongside the table the memtable that fed it flushes into.
type finishedBlobFile struct {
	fileID uint64
	stats  blob.FileStats
}

// rotateBlobWriterLocked closes the active blob file, if any. Callers
// must hold rotateMu, since it is always called alongside a memtable
// rotation (spec §4.13).
func (t *Tree) rotateBlobWriterLocked() (*finishedBlobFile, error) {
	t.blobMu.Lock()
	defer t.blobMu.Unlock()
	if t.activeBlob == nil {
		return nil, nil
	}
	stats, err := t.activeBlob.Close()
	if err != nil {
		return nil, err
	}
	out := &finishedBlobFile{fileID: t.activeBlobID, stats: stats}
	t.activeBlob = nil
	t.activeBlobID = 0
	return out, nil
}
