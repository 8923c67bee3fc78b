// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
)

// TableResolver reconstructs a full TableMetadata for tableID by opening
// its table file and reading its metadata block (spec §4.9, "Recovery:
// ... open each referenced table's metadata and filter ... per policy").
// The manifest package does not know path conventions or the sstable
// reader; the tree facade supplies this callback.
type TableResolver func(tableID uint64) (*TableMetadata, error)

func versionFilename(id uint64) string { return fmt.Sprintf("v%d", id) }

const currentFilename = "current"

// Manifest owns the durable version chain: a deque of SuperVersion
// objects ordered by seqno, persisted as v{id} files plus an
// atomically-rewritten current pointer (spec §4.9). A v{id} file holds
// the tables, blob_files and blob_gc_stats sections back to back, in that
// fixed order; it has no table of contents, so a section can only be
// reached by decoding the ones before it.
type Manifest struct {
	fs FS

	mu       sync.Mutex
	chain    []*SuperVersion // ordered by seqno, oldest first
	nextID   uint64
	hidden   map[uint64]struct{} // hidden set: spec §4.10
}

// Open creates a fresh empty Manifest (numLevels levels, no tables) for a
// brand-new tree. Use Recover instead to reopen an existing one.
func Open(fsa FS, numLevels int) *Manifest {
	v := NewEmptyVersion(numLevels)
	v.ID = 1
	return &Manifest{
		fs:     fsa,
		chain:  []*SuperVersion{{Version: v}},
		nextID: 2,
		hidden: make(map[uint64]struct{}),
	}
}

// Recover reopens a Manifest from disk: read current, open v{id},
// reconstruct levels by resolving each referenced table, and return the
// resulting Manifest (spec §4.9, "Recovery").
func Recover(fsa FS, resolve TableResolver) (*Manifest, error) {
	cur, err := fsa.Open(currentFilename)
	if err != nil {
		return nil, errors.Wrap(err, "lsmtree: open current pointer")
	}
	defer cur.Close()
	raw, err := readAll(cur)
	if err != nil {
		return nil, err
	}
	versionID, err := decodeCurrentPointer(raw)
	if err != nil {
		return nil, err
	}

	vf, err := fsa.Open(versionFilename(versionID))
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtree: open version file for v%d", versionID)
	}
	defer vf.Close()
	vraw, err := readAll(vf)
	if err != nil {
		return nil, err
	}
	v, err := decodeVersionSkeleton(vraw)
	if err != nil {
		return nil, err
	}
	v.ID = versionID

	for li := range v.Levels {
		for ri := range v.Levels[li].Runs {
			tables := v.Levels[li].Runs[ri].Tables
			for ti, stub := range tables {
				full, err := resolve(stub.TableID)
				if err != nil {
					return nil, errors.Wrapf(err, "lsmtree: resolve table %d", stub.TableID)
				}
				tables[ti] = full
			}
		}
	}

	return &Manifest{
		fs:     fsa,
		chain:  []*SuperVersion{{Version: v}},
		nextID: versionID + 1,
		hidden: make(map[uint64]struct{}),
	}, nil
}

// readAll drains f from offset 0 until a short read signals end of file.
// File exposes only io.ReaderAt (random access for recovery path reads
// elsewhere), so this cannot rely on io.ReadAll's io.Reader contract.
func readAll(f File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	off := int64(0)
	for {
		n, err := f.ReadAt(chunk, off)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			off += int64(n)
		}
		if err != nil {
			return buf, nil
		}
		if n < len(chunk) {
			return buf, nil
		}
	}
}

// Current returns the most recently published SuperVersion.
func (m *Manifest) Current() *SuperVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain[len(m.chain)-1]
}

// VisibleFor returns the SuperVersion whose VisibleSeqNum is the greatest
// value < snapshotSeq, matching the rule spec §4.9 states for snapshot
// reads.
func (m *Manifest) VisibleFor(snapshotSeq uint64) *SuperVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *SuperVersion
	for _, sv := range m.chain {
		if sv.VisibleSeqNum < snapshotSeq {
			best = sv
		}
	}
	if best == nil {
		best = m.chain[0]
	}
	return best
}

// NextTableID allocates the next id from the manifest's own counter, which
// starts at 2 for a fresh manifest and at the recovered version id plus one
// after Recover. The tree facade does not use it: it allocates table and
// blob file ids from its own counter.
func (m *Manifest) NextTableID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// HideTables inserts tableIDs into the hidden set, declining if any is
// already hidden (spec §4.10: "A compaction strategy that selects any
// already-hidden table declines to run").
func (m *Manifest) HideTables(tableIDs []uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tableIDs {
		if _, ok := m.hidden[id]; ok {
			return false
		}
	}
	for _, id := range tableIDs {
		m.hidden[id] = struct{}{}
	}
	return true
}

// UnhideTables removes tableIDs from the hidden set, called whether the
// compaction that hid them succeeded or failed (spec §4.10).
func (m *Manifest) UnhideTables(tableIDs []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tableIDs {
		delete(m.hidden, id)
	}
}

// IsHidden reports whether tableID currently participates in a running
// compaction.
func (m *Manifest) IsHidden(tableID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hidden[tableID]
	return ok
}

// UpgradeVersion applies edit to the current version, persists the new
// version file, rewrites current atomically, and appends the result to
// the chain (spec §4.9, "Atomicity"). visibleSeqNum is the SuperVersion's
// new visibility sequence number.
func (m *Manifest) UpgradeVersion(edit *VersionEdit, visibleSeqNum uint64, memtables SuperVersionMemtables) (*SuperVersion, error) {
	m.mu.Lock()
	parent := m.chain[len(m.chain)-1].Version
	m.mu.Unlock()

	next := edit.Apply(parent)

	if m.fs.Create != nil {
		if err := m.persist(next); err != nil {
			return nil, err
		}
	}

	sv := &SuperVersion{
		Version:         next,
		ActiveMemtable:  memtables.Active,
		SealedMemtables: memtables.Sealed,
		VisibleSeqNum:   visibleSeqNum,
	}

	m.mu.Lock()
	m.chain = append(m.chain, sv)
	m.mu.Unlock()
	return sv, nil
}

// SuperVersionMemtables carries the memtable references a freshly
// upgraded SuperVersion should record.
type SuperVersionMemtables struct {
	Active MemtableHandle
	Sealed []MemtableHandle
}

func (m *Manifest) persist(v *Version) error {
	name := versionFilename(v.ID)
	f, err := m.fs.Create(name)
	if err != nil {
		return errors.Wrapf(err, "lsmtree: create version file %s", name)
	}
	payload := encodeVersionSkeleton(v)
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return errors.Wrap(err, "lsmtree: write version file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "lsmtree: sync version file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "lsmtree: close version file")
	}

	cf, err := m.fs.Create(currentFilename)
	if err != nil {
		return errors.Wrap(err, "lsmtree: rewrite current pointer")
	}
	if _, err := cf.Write(encodeCurrentPointer(v.ID)); err != nil {
		cf.Close()
		return errors.Wrap(err, "lsmtree: write current pointer")
	}
	if err := cf.Sync(); err != nil {
		cf.Close()
		return errors.Wrap(err, "lsmtree: sync current pointer")
	}
	if err := cf.Close(); err != nil {
		return err
	}
	if m.fs.SyncDir != nil {
		if err := m.fs.SyncDir(); err != nil {
			return errors.Wrap(err, "lsmtree: sync manifest directory")
		}
	}
	return nil
}

// Maintenance drops every SuperVersion from the front of the chain whose
// seqno is below watermark, deleting its v{id} file, keeping at least one
// entry (spec §4.9, "Old versions are garbage-collected by
// maintenance(gc_watermark)").
func (m *Manifest) Maintenance(watermark uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := 0
	for i < len(m.chain)-1 && m.chain[i].VisibleSeqNum < watermark {
		i++
	}
	if i == 0 {
		return nil
	}
	dropped := m.chain[:i]
	m.chain = m.chain[i:]
	if m.fs.Remove == nil {
		return nil
	}
	for _, sv := range dropped {
		if err := m.fs.Remove(versionFilename(sv.Version.ID)); err != nil {
			return errors.Wrapf(err, "lsmtree: remove version file v%d", sv.Version.ID)
		}
	}
	return nil
}
