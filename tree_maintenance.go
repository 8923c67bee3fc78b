// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import (
	"io"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/fjall-rs/lsm-tree-sub003/compaction"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
	"github.com/fjall-rs/lsm-tree-sub003/memtable"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

// RotateMemtable seals the active memtable and its blob file, starting a
// fresh generation of both, without flushing the sealed memtable to a
// table (spec §4.7, §4.13). The sealed memtable stays queryable as a
// sealed memtable until a later FlushActiveMemtable drains it.
func (t *Tree) RotateMemtable() error {
	t.rotateMu.Lock()
	defer t.rotateMu.Unlock()
	_, err := t.rotateLocked()
	return err
}

// rotateLocked performs the seal-and-swap; callers must hold rotateMu.
func (t *Tree) rotateLocked() (*memtable.Memtable, error) {
	sealed := t.activeMemtable()
	sealed.Seal()
	newMt, err := t.newMemtable()
	if err != nil {
		return nil, err
	}
	blobDone, err := t.rotateBlobWriterLocked()
	if err != nil {
		return nil, err
	}

	sv := t.manifest.Current()
	edit := manifest.NewVersionEdit()
	appendBlobFile(edit, blobDone)
	edit.LastSequence = t.visibleSeq.Load()

	if _, err := t.manifest.UpgradeVersion(edit, t.visibleSeq.Load(), manifest.SuperVersionMemtables{
		Active: newMt,
		Sealed: append([]manifest.MemtableHandle{sealed}, sv.SealedMemtables...),
	}); err != nil {
		return nil, err
	}
	return sealed, nil
}

// appendBlobFile registers a rotated-out blob file's stats in edit, if
// any values were ever written to it.
func appendBlobFile(edit *manifest.VersionEdit, blobDone *finishedBlobFile) {
	if blobDone == nil {
		return
	}
	edit.NewBlobFiles = append(edit.NewBlobFiles, manifest.BlobFileInfo{
		FileID:       blobDone.fileID,
		TotalBytes:   blobDone.stats.ValueBytes,
		TotalItems:   blobDone.stats.ItemCount,
		CreationTime: uint64(time.Now().Unix()),
		ChecksumLo:   blobDone.stats.ChecksumLo,
	})
}

// FlushActiveMemtable seals the active memtable (the rotation registers any
// blob file the generation filled in its own VersionEdit), writes its
// contents into one or more new level-0 tables, registers them in a second
// VersionEdit, and retires the memtable's write-ahead log (spec §4.7
// "flush_active_memtable", spec
// §4.12). gcWatermark bounds how far back manifest.Maintenance may reclaim
// old versions still needed by an open Snapshot; pass Tree.gcWatermark()
// unless the caller already knows a tighter bound.
func (t *Tree) FlushActiveMemtable(gcWatermark base.SeqNum) error {
	t.rotateMu.Lock()
	sealed, err := t.rotateLocked()
	t.rotateMu.Unlock()
	if err != nil {
		return err
	}

	if sealed.Len() == 0 {
		return t.retireMemtable(sealed, gcWatermark)
	}

	mw := sstable.NewMultiWriter(t.newTableOutputFile, t.opts.WriterOptionsForLevel(0), t.opts.TargetFileSizeDefault)
	it := sealed.Iterator()
	for it.Next() {
		key, raw := it.Key(), it.Value()
		if err := mw.Add(key, raw); err != nil {
			return errors.Wrap(err, "lsmtree: write flushed table")
		}
		if key.Kind == base.ValueKindSet {
			if dv, derr := sstable.DecodeValue(raw); derr == nil && dv.Ref != nil {
				mw.AddBlobReference(dv.Ref.FileID, uint64(dv.Ref.ValueSize))
			}
		}
	}
	metas, err := mw.Finish()
	if err != nil {
		return errors.Wrap(err, "lsmtree: finish flushed table")
	}

	edit := manifest.NewVersionEdit()
	tables := make([]*manifest.TableMetadata, len(metas))
	for i, m := range metas {
		tables[i] = manifest.FromSSTableMeta(m)
	}
	edit.AddRun(0, tables)
	edit.LastSequence = t.visibleSeq.Load()

	sv := t.manifest.Current()
	if _, err := t.manifest.UpgradeVersion(edit, t.visibleSeq.Load(), manifest.SuperVersionMemtables{
		Active: sv.ActiveMemtable,
		Sealed: dropMemtable(sv.SealedMemtables, sealed),
	}); err != nil {
		return err
	}
	return t.retireMemtable(sealed, gcWatermark)
}

// retireMemtable deletes sealed's write-ahead log, now that its contents
// are durable in a published table (or were empty to begin with), and
// reclaims old manifest versions no open Snapshot still needs.
func (t *Tree) retireMemtable(sealed *memtable.Memtable, gcWatermark base.SeqNum) error {
	if err := t.deleteWAL(sealed.ID()); err != nil {
		return err
	}
	return t.manifest.Maintenance(uint64(gcWatermark))
}

// dropMemtable removes target from a SuperVersion's sealed list, by
// identity, once it has been flushed.
func dropMemtable(sealed []manifest.MemtableHandle, target *memtable.Memtable) []manifest.MemtableHandle {
	out := make([]manifest.MemtableHandle, 0, len(sealed))
	for _, h := range sealed {
		if h.(*memtable.Memtable) != target {
			out = append(out, h)
		}
	}
	return out
}

// Compact runs one round of strategy against the tree's current structure
// and, if it names work, executes it (spec §4.10 "compact(strategy)").
// Multiple Compact calls may run concurrently with each other so long as
// no MajorCompact is in progress; compaction.Executor's hidden-table set
// keeps them from double-claiming the same tables.
func (t *Tree) Compact(strategy compaction.Strategy, seq base.SeqNum) error {
	t.majorMu.RLock()
	defer t.majorMu.RUnlock()
	_, err := t.runCompactionOnce(strategy, t.gcWatermark(), seq)
	return err
}

// MajorCompact repeatedly applies a leveled strategy until it reports no
// further work, draining every level's backlog in one exclusive pass
// (spec §4.10, §4.12). It excludes concurrent Compact/MajorCompact calls
// via majorMu, since it is meant to run the whole tree down to a
// quiescent shape rather than claim one isolated piece of work.
func (t *Tree) MajorCompact(gcWatermark, seq base.SeqNum) error {
	t.majorMu.Lock()
	defer t.majorMu.Unlock()

	strategy := compaction.Leveled{Cmp: t.cmp(), Cfg: t.opts.CompactionConfig}
	const maxRounds = 10000
	for i := 0; i < maxRounds; i++ {
		did, err := t.runCompactionOnce(strategy, gcWatermark, seq)
		if err != nil {
			return err
		}
		if !did {
			break
		}
	}
	return t.manifest.Maintenance(uint64(gcWatermark))
}

// runCompactionOnce evaluates strategy against the current version and,
// if it names work, executes it and deletes whatever fell out of the live
// set as a result. It reports whether any work was done.
func (t *Tree) runCompactionOnce(strategy compaction.Strategy, gcWatermark, visibleSeqNum base.SeqNum) (bool, error) {
	sv := t.manifest.Current()
	choice := strategy.Evaluate(sv.Version)
	if choice.Kind == compaction.DoNothing {
		return false, nil
	}

	beforeTables := sv.Version.LiveTableIDs()
	beforeBlobs := sv.Version.LiveBlobFileIDs()

	ex := t.executor(gcWatermark)
	newSV, err := ex.Execute(choice, uint64(visibleSeqNum), manifest.SuperVersionMemtables{
		Active: sv.ActiveMemtable,
		Sealed: sv.SealedMemtables,
	})
	if err != nil {
		return false, err
	}
	t.deleteObsolete(beforeTables, beforeBlobs, newSV.Version)
	return true, nil
}

// deleteObsolete physically removes every table and blob file that was
// live before a compaction and is not live in v, the version it
// published. compaction.Executor only unpublishes references; the tree
// facade owns the files themselves.
func (t *Tree) deleteObsolete(beforeTables, beforeBlobs map[uint64]struct{}, v *manifest.Version) {
	live := v.LiveTableIDs()
	for id := range beforeTables {
		if _, ok := live[id]; ok {
			continue
		}
		if err := t.dir.Remove(filepath.Join(tablesSubdir, tableName(id))); err != nil {
			t.opts.Logger.Errorf("lsmtree: remove obsolete table %d: %v", id, err)
		}
	}
	liveBlobs := v.LiveBlobFileIDs()
	for id := range beforeBlobs {
		if _, ok := liveBlobs[id]; ok {
			continue
		}
		if err := t.dir.Remove(filepath.Join(blobsSubdir, blobName(id))); err != nil {
			t.opts.Logger.Errorf("lsmtree: remove obsolete blob file %d: %v", id, err)
		}
	}
}

// DropRange discards every table entirely contained within [lo, hi),
// without reading or rewriting its contents (spec §4.10 "drop_range": a
// table-granularity optimization for bulk deletes such as dropping a
// tenant's whole key range).
func (t *Tree) DropRange(lo, hi []byte) error {
	t.majorMu.RLock()
	defer t.majorMu.RUnlock()
	strategy := compaction.DropRange{Cmp: t.cmp(), Lo: lo, Hi: hi}
	_, err := t.runCompactionOnce(strategy, t.gcWatermark(), base.SeqNum(t.visibleSeq.Load()))
	return err
}

// IngestEntry is one pre-sorted, pre-tagged-by-caller-semantics record for
// a bulk Ingest (spec §4.14 "ingest"): SeqNum and Kind are assigned by the
// caller exactly as Insert/Remove/RemoveWeak would assign them one write
// at a time. Value is ignored for tombstone kinds.
type IngestEntry struct {
	Key    []byte
	SeqNum base.SeqNum
	Kind   base.ValueKind
	Value  []byte
}

// Ingest bulk-loads entries directly into one or more new level-0 tables,
// bypassing the memtable and write-ahead log entirely (spec §4.14
// "ingest": loading an externally-produced, already-sorted batch without
// paying for a memtable round-trip). entries must already be in strictly
// ascending internal-key order (ascending user key, descending seqno
// within a user key); Ingest does not sort or deduplicate them.
func (t *Tree) Ingest(entries []IngestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	mw := sstable.NewMultiWriter(t.newTableOutputFile, t.opts.WriterOptionsForLevel(0), t.opts.TargetFileSizeDefault)
	var maxSeq base.SeqNum
	for _, e := range entries {
		if err := base.UserKey(e.Key).Validate(); err != nil {
			return err
		}
		var tagged []byte
		if e.Kind == base.ValueKindSet {
			v, err := t.tagValue(e.Key, e.Value)
			if err != nil {
				return err
			}
			tagged = v
		}
		ik := base.InternalKey{UserKey: append(base.UserKey(nil), e.Key...), SeqNum: e.SeqNum, Kind: e.Kind}
		if err := mw.Add(ik, tagged); err != nil {
			return errors.Wrap(err, "lsmtree: ingest table")
		}
		if e.Kind == base.ValueKindSet {
			if dv, derr := sstable.DecodeValue(tagged); derr == nil && dv.Ref != nil {
				mw.AddBlobReference(dv.Ref.FileID, uint64(dv.Ref.ValueSize))
			}
		}
		if e.SeqNum > maxSeq {
			maxSeq = e.SeqNum
		}
	}
	metas, err := mw.Finish()
	if err != nil {
		return errors.Wrap(err, "lsmtree: finish ingest table")
	}

	edit := manifest.NewVersionEdit()
	tables := make([]*manifest.TableMetadata, len(metas))
	for i, m := range metas {
		tables[i] = manifest.FromSSTableMeta(m)
	}
	edit.AddRun(0, tables)
	edit.LastSequence = uint64(maxSeq)

	t.rotateMu.Lock()
	sv := t.manifest.Current()
	_, err = t.manifest.UpgradeVersion(edit, uint64(maxSeq), manifest.SuperVersionMemtables{
		Active: sv.ActiveMemtable,
		Sealed: sv.SealedMemtables,
	})
	t.rotateMu.Unlock()
	if err != nil {
		return err
	}
	t.advanceVisibleSeq(maxSeq)
	return nil
}

// Len counts every live (non-tombstone) user key visible at snapshotSeq.
// It pays for a full scan; ApproximateLen is the cheap alternative (spec
// §4.14 "len").
func (t *Tree) Len(snapshotSeq base.SeqNum) (int, error) {
	it, err := t.Range(nil, nil, snapshotSeq)
	if err != nil {
		return 0, err
	}
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Err()
}

// IsEmpty reports whether the tree has no live key visible at snapshotSeq
// (spec §4.14 "is_empty"). Unlike Len it stops at the first surviving
// key.
func (t *Tree) IsEmpty(snapshotSeq base.SeqNum) (bool, error) {
	it, err := t.Range(nil, nil, snapshotSeq)
	if err != nil {
		return false, err
	}
	ok := it.Next()
	return !ok, it.Err()
}

// ApproximateLen returns a cheap, possibly-overcounted estimate of the
// tree's key count: the sum of every memtable's item count and every
// table's key count, without resolving overlaps, shadowing, or
// tombstones across sources (spec §4.14 "approximate_len"). Use Len for
// an exact count.
func (t *Tree) ApproximateLen() int {
	sv := t.manifest.Current()
	total := t.activeMemtable().Len()
	for _, mt := range t.sealedMemtables() {
		total += mt.Len()
	}
	for _, l := range sv.Version.Levels {
		for _, tb := range l.Tables() {
			total += int(tb.KeyCount)
		}
	}
	return total
}

// DiskSpace returns the total on-disk size of every live table plus the
// logical value bytes of every live blob file (spec §4.14 "disk_space").
// Blob files are approximated by their logical value bytes, since the
// manifest records a blob file's item/byte counts but not its on-disk
// file size (header and per-record checksum overhead is a few dozen
// bytes per item).
func (t *Tree) DiskSpace() uint64 {
	sv := t.manifest.Current()
	var total uint64
	for _, l := range sv.Version.Levels {
		for _, tb := range l.Tables() {
			total += tb.FileSize
		}
	}
	for _, bf := range sv.Version.BlobFiles {
		total += bf.TotalBytes
	}
	return total
}

// Verify checks the current version's structural invariants (spec §4.9),
// confirms every live table and blob file can still be opened, and
// recomputes each live blob file's full-file checksum against the value
// recorded at close (spec §4.13, "verified at open").
func (t *Tree) Verify() error {
	sv := t.manifest.Current()
	if err := sv.Version.CheckInvariants(t.cmp()); err != nil {
		return err
	}
	for _, l := range sv.Version.Levels {
		for _, tb := range l.Tables() {
			if _, err := t.openTable(tb.TableID); err != nil {
				return errors.Wrapf(err, "lsmtree: verify table %d", tb.TableID)
			}
		}
	}
	for id, info := range sv.Version.BlobFiles {
		if err := t.verifyBlobFile(id, info); err != nil {
			return err
		}
	}
	return nil
}

// verifyBlobFile recomputes id's full-file checksum and compares it
// against the value the manifest recorded when the file was closed.
func (t *Tree) verifyBlobFile(id uint64, info manifest.BlobFileInfo) error {
	f, err := t.openBlobFile(id)
	if err != nil {
		return errors.Wrapf(err, "lsmtree: open blob file %d for verification", id)
	}
	size, err := f.Size()
	if err != nil {
		return err
	}

	h := xxhash.New()
	buf := make([]byte, 64<<10)
	var off int64
	for off < size {
		n, rerr := f.ReadAt(buf, off)
		if n > 0 {
			h.Write(buf[:n])
			off += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return errors.Wrapf(rerr, "lsmtree: read blob file %d", id)
		}
	}
	if h.Sum64() != info.ChecksumLo {
		return base.NewCorruptionError("blob file checksum", nil)
	}
	return nil
}
