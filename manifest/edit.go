// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

// NewRun describes one run of output tables to insert into a level,
// produced by a single flush or compaction (spec §4.12 step 6, "insert
// outputs into dest_level").
type NewRun struct {
	Level  int
	Tables []*TableMetadata
}

// VersionEdit is the unit of structural change applied via upgrade_version
// (spec §4.9, "Atomicity"): it names the tables and blob files removed,
// the new runs and blob files added, and fragmentation accounting updates.
type VersionEdit struct {
	DeletedTableIDs map[uint64]struct{}
	NewRuns         []NewRun

	DeletedBlobFileIDs []uint64
	NewBlobFiles       []BlobFileInfo

	// FragmentationDeltas accumulates, per blob file id, stale items/bytes
	// newly attributed by this edit (spec §4.12 step 6, "update the
	// fragmentation map").
	FragmentationDeltas map[uint64]StaleDelta

	LastSequence uint64
}

// StaleDelta is an incremental fragmentation contribution.
type StaleDelta struct {
	Items uint64
	Bytes uint64
}

// NewVersionEdit returns an empty edit ready to be populated.
func NewVersionEdit() *VersionEdit {
	return &VersionEdit{
		DeletedTableIDs:     make(map[uint64]struct{}),
		FragmentationDeltas: make(map[uint64]StaleDelta),
	}
}

// DeleteTable marks tableID for removal from wherever it currently lives.
func (e *VersionEdit) DeleteTable(tableID uint64) {
	e.DeletedTableIDs[tableID] = struct{}{}
}

// AddRun appends a new run of tables to level.
func (e *VersionEdit) AddRun(level int, tables []*TableMetadata) {
	if len(tables) == 0 {
		return
	}
	e.NewRuns = append(e.NewRuns, NewRun{Level: level, Tables: tables})
}

// AddStale records that items blobs totaling bytesVal bytes in fileID
// were shadowed by this edit's compaction.
func (e *VersionEdit) AddStale(fileID uint64, items, bytesVal uint64) {
	d := e.FragmentationDeltas[fileID]
	d.Items += items
	d.Bytes += bytesVal
	e.FragmentationDeltas[fileID] = d
}

// Apply derives a new Version from parent by applying this edit: removing
// deleted tables and blob files, inserting new runs and blob files, and
// folding in fragmentation deltas (spec §4.12 step 6). The new version's
// id is parent.ID+1.
func (e *VersionEdit) Apply(parent *Version) *Version {
	v := parent.Clone()
	v.ID = parent.ID + 1
	v.Parent = parent
	if e.LastSequence > v.Seqno {
		v.Seqno = e.LastSequence
	}

	if len(e.DeletedTableIDs) > 0 {
		for li := range v.Levels {
			runs := v.Levels[li].Runs[:0]
			for _, r := range v.Levels[li].Runs {
				tables := r.Tables[:0]
				for _, t := range r.Tables {
					if _, dead := e.DeletedTableIDs[t.TableID]; !dead {
						tables = append(tables, t)
					}
				}
				if len(tables) > 0 {
					runs = append(runs, Run{Tables: tables})
				}
			}
			v.Levels[li].Runs = runs
		}
	}

	for _, nr := range e.NewRuns {
		for len(v.Levels) <= nr.Level {
			v.Levels = append(v.Levels, Level{})
		}
		v.Levels[nr.Level].Runs = append(v.Levels[nr.Level].Runs, Run{Tables: nr.Tables})
	}

	for _, bf := range e.NewBlobFiles {
		v.BlobFiles[bf.FileID] = bf
		v.Fragmentation.Register(bf.FileID)
	}
	for _, id := range e.DeletedBlobFileIDs {
		delete(v.BlobFiles, id)
		v.Fragmentation.Forget(id)
	}
	for id, d := range e.FragmentationDeltas {
		if _, ok := v.BlobFiles[id]; !ok {
			continue // the file was already dropped by this same edit
		}
		v.Fragmentation.AddStaleBatch(id, d.Items, d.Bytes)
	}

	return v
}
