// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/blob"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
	"github.com/fjall-rs/lsm-tree-sub003/merge"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

// Executor carries out the side effects of whatever Choice a Strategy
// returns (spec §4.12). A Strategy only decides; the Executor claims the
// hidden set, reads input tables, writes outputs, and publishes the new
// version.
type Executor struct {
	Manifest *manifest.Manifest
	Cmp      func(a, b []byte) int

	// OpenTable opens tableID for full-scan reading. The executor never
	// learns on-disk path conventions; the tree facade supplies this.
	OpenTable func(tableID uint64) (*sstable.Reader, error)
	// NewOutputFile allocates the next output table's backing file; the
	// tree facade supplies it from its own file-id counter and the fs
	// adapter.
	NewOutputFile sstable.FileFactory
	// WriterOptionsForLevel returns the block size/compression/filter
	// policy to use for an output table at the given level (spec §4.12
	// step 5, "configured with the per-level... policies").
	WriterOptionsForLevel func(level int) sstable.WriterOptions
	// TargetFileSizeDefault is used when a Choice's TargetFileSize is 0.
	TargetFileSizeDefault uint64

	// Filter is applied to every surviving item (spec §4.12 step 4); nil
	// means every item is kept.
	Filter Filter

	// GCSeqnoWatermark is the oldest open snapshot's sequence number,
	// threaded into the MvccStream (spec §4.12 step 3).
	GCSeqnoWatermark base.SeqNum
}

// Execute runs choice against the manifest's current version, publishing
// a new version on success. DoNothing is a no-op returning the current
// SuperVersion unchanged.
func (e *Executor) Execute(choice Choice, visibleSeqNum uint64, memtables manifest.SuperVersionMemtables) (*manifest.SuperVersion, error) {
	switch choice.Kind {
	case DoNothing:
		return e.Manifest.Current(), nil
	case Move:
		return e.executeMove(choice, visibleSeqNum, memtables)
	case Drop:
		return e.executeDrop(choice, visibleSeqNum, memtables)
	case Merge:
		return e.executeMerge(choice, visibleSeqNum, memtables)
	default:
		return nil, errors.Newf("lsmtree: unknown compaction choice kind %d", choice.Kind)
	}
}

// claim hides choice's inputs, returning an error if any is already
// hidden (spec §4.12 steps 1-2).
func (e *Executor) claim(ids []uint64) error {
	if !e.Manifest.HideTables(ids) {
		return errors.New("lsmtree: compaction input already claimed by another compaction")
	}
	return nil
}

func (e *Executor) findTables(v *manifest.Version, ids []uint64) ([]*manifest.TableMetadata, error) {
	index := make(map[uint64]*manifest.TableMetadata)
	for _, l := range v.Levels {
		for _, t := range l.Tables() {
			index[t.TableID] = t
		}
	}
	out := make([]*manifest.TableMetadata, len(ids))
	for i, id := range ids {
		t, ok := index[id]
		if !ok {
			return nil, errors.Newf("lsmtree: compaction input table %d not found in current version", id)
		}
		out[i] = t
	}
	return out, nil
}

func (e *Executor) executeMove(choice Choice, visibleSeqNum uint64, memtables manifest.SuperVersionMemtables) (*manifest.SuperVersion, error) {
	if err := e.claim(choice.InputTableIDs); err != nil {
		return nil, err
	}
	defer e.Manifest.UnhideTables(choice.InputTableIDs)

	v := e.Manifest.Current().Version
	tables, err := e.findTables(v, choice.InputTableIDs)
	if err != nil {
		return nil, err
	}

	edit := manifest.NewVersionEdit()
	for _, id := range choice.InputTableIDs {
		edit.DeleteTable(id)
	}
	edit.AddRun(choice.DestLevel, tables)
	edit.LastSequence = visibleSeqNum
	return e.Manifest.UpgradeVersion(edit, visibleSeqNum, memtables)
}

func (e *Executor) executeDrop(choice Choice, visibleSeqNum uint64, memtables manifest.SuperVersionMemtables) (*manifest.SuperVersion, error) {
	if err := e.claim(choice.InputTableIDs); err != nil {
		return nil, err
	}
	defer e.Manifest.UnhideTables(choice.InputTableIDs)

	v := e.Manifest.Current().Version
	tables, err := e.findTables(v, choice.InputTableIDs)
	if err != nil {
		return nil, err
	}

	edit := manifest.NewVersionEdit()
	for _, t := range tables {
		edit.DeleteTable(t.TableID)
		for _, ref := range t.BlobRefs {
			edit.AddStale(ref.BlobFileID, ref.Items, ref.Bytes)
		}
	}
	e.rippleBlobDrops(v, edit)
	edit.LastSequence = visibleSeqNum
	return e.Manifest.UpgradeVersion(edit, visibleSeqNum, memtables)
}

func (e *Executor) executeMerge(choice Choice, visibleSeqNum uint64, memtables manifest.SuperVersionMemtables) (*manifest.SuperVersion, error) {
	if err := e.claim(choice.InputTableIDs); err != nil {
		return nil, err
	}
	succeeded := false
	defer func() {
		if !succeeded {
			e.Manifest.UnhideTables(choice.InputTableIDs)
		}
	}()

	v := e.Manifest.Current().Version
	inputTables, err := e.findTables(v, choice.InputTableIDs)
	if err != nil {
		return nil, err
	}

	sources := make([]merge.Source, 0, len(inputTables))
	for _, t := range inputTables {
		r, err := e.OpenTable(t.TableID)
		if err != nil {
			return nil, errors.Wrapf(err, "lsmtree: open compaction input table %d", t.TableID)
		}
		sc, err := r.NewScanner()
		if err != nil {
			return nil, errors.Wrapf(err, "lsmtree: scan compaction input table %d", t.TableID)
		}
		if _, err := sc.Next(); err != nil {
			return nil, err
		}
		sources = append(sources, sc)
	}

	edit := manifest.NewVersionEdit()
	isLastLevel := choice.DestLevel == len(v.Levels)-1

	onShadowed := func(key base.InternalKey, value []byte) {
		dv, derr := sstable.DecodeValue(value)
		if derr != nil || dv.Ref == nil {
			return
		}
		edit.AddStale(dv.Ref.FileID, 1, uint64(dv.Ref.ValueSize))
	}

	m := merge.New(e.Cmp, sources)
	stream := merge.NewMvccStream(e.Cmp, m, merge.Options{
		GCSeqnoWatermark: e.GCSeqnoWatermark,
		EvictTombstones:  isLastLevel,
		OnShadowed:       onShadowed,
	})

	targetSize := choice.TargetFileSize
	if targetSize == 0 {
		targetSize = e.TargetFileSizeDefault
	}
	opts := sstable.WriterOptions{}
	if e.WriterOptionsForLevel != nil {
		opts = e.WriterOptionsForLevel(choice.DestLevel)
	}
	mw := sstable.NewMultiWriter(e.NewOutputFile, opts, targetSize)

	for {
		ok, err := stream.Next()
		if err != nil {
			e.destroyPartialOutput(mw)
			return nil, err
		}
		if !ok {
			break
		}
		key, value := stream.Key(), stream.Value()
		if e.Filter != nil {
			switch e.Filter.Decide(key, value) {
			case Remove, Destroy:
				continue
			}
		}
		if err := mw.Add(key, value); err != nil {
			e.destroyPartialOutput(mw)
			return nil, errors.Wrap(err, "lsmtree: write compaction output")
		}
		if dv, derr := sstable.DecodeValue(value); derr == nil && dv.Ref != nil {
			mw.AddBlobReference(dv.Ref.FileID, uint64(dv.Ref.ValueSize))
		}
	}

	metas, err := mw.Finish()
	if err != nil {
		return nil, errors.Wrap(err, "lsmtree: finish compaction output")
	}

	for _, id := range choice.InputTableIDs {
		edit.DeleteTable(id)
	}
	if len(metas) > 0 {
		tables := make([]*manifest.TableMetadata, len(metas))
		for i, meta := range metas {
			tables[i] = manifest.FromSSTableMeta(meta)
		}
		edit.AddRun(choice.DestLevel, tables)
	}
	e.rippleBlobDrops(v, edit)
	edit.LastSequence = visibleSeqNum

	sv, err := e.Manifest.UpgradeVersion(edit, visibleSeqNum, memtables)
	if err != nil {
		return nil, err
	}
	succeeded = true
	e.Manifest.UnhideTables(choice.InputTableIDs)
	return sv, nil
}

// destroyPartialOutput discards whatever a MultiWriter had buffered when
// a compaction fails before publication (spec §4.12 step 7, "discard
// partial outputs"). The MultiWriter's own Finish closes its current
// file. Output files already written stay on disk: neither the executor
// nor the tree facade deletes them.
func (e *Executor) destroyPartialOutput(mw *sstable.MultiWriter) {
	_, _ = mw.Finish()
}

// rippleBlobDrops marks as deleted every blob file whose referenced item
// count reaches zero once edit's pending fragmentation deltas are
// folded in (spec §4.13, "A blob file is dropped when no live table
// still references it").
func (e *Executor) rippleBlobDrops(v *manifest.Version, edit *manifest.VersionEdit) {
	for fileID, delta := range edit.FragmentationDeltas {
		info, ok := v.BlobFiles[fileID]
		if !ok || info.TotalItems == 0 {
			continue
		}
		cur := v.Fragmentation.Get(fileID)
		if cur.StaleItems+delta.Items >= info.TotalItems {
			edit.DeletedBlobFileIDs = append(edit.DeletedBlobFileIDs, fileID)
		}
	}
}

// SelectBlobFilesForRelink evaluates policy against the manifest's
// current live blob files, returning the ones it selects for rewriting
// into a fresh blob file; the tree facade runs no such rewrite (spec §4.13,
// "Policies... select which blob files to relink proactively").
func (e *Executor) SelectBlobFilesForRelink(policy blob.GCPolicy) []uint64 {
	v := e.Manifest.Current().Version
	return policy.SelectForRelink(v.BlobFileInfos())
}
