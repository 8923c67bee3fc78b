// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blob

// Fragmentation is one blob file's staleness counters: how many of its
// blobs are no longer reachable from any live table (spec §4.13,
// "Fragmentation map"). A fresh blob file starts with zero fragmentation;
// compaction attributes staleness to it as newer versions shadow the keys
// that pointed into it.
type Fragmentation struct {
	StaleItems uint64
	StaleBytes uint64
}

// FragmentationMap tracks one Fragmentation entry per live blob file id.
// It is the tree's persistent view of how much of each blob file is dead
// weight, consulted by GC policies to pick relink/drop candidates.
type FragmentationMap struct {
	entries map[uint64]*Fragmentation
}

// NewFragmentationMap returns an empty map.
func NewFragmentationMap() *FragmentationMap {
	return &FragmentationMap{entries: make(map[uint64]*Fragmentation)}
}

// Register ensures fileID has an entry, used when a new blob file is
// published so it appears in the map even before any staleness accrues.
func (m *FragmentationMap) Register(fileID uint64) {
	if _, ok := m.entries[fileID]; !ok {
		m.entries[fileID] = &Fragmentation{}
	}
}

// AddStale attributes one stale item of valueSize bytes to fileID, called
// during compaction for every input key that is shadowed by a newer
// version and that pointed at a blob file (spec §4.13).
func (m *FragmentationMap) AddStale(fileID uint64, valueSize uint64) {
	e, ok := m.entries[fileID]
	if !ok {
		e = &Fragmentation{}
		m.entries[fileID] = e
	}
	e.StaleItems++
	e.StaleBytes += valueSize
}

// AddStaleBatch attributes items stale blobs totaling bytesVal stale bytes
// to fileID in one step, used when a compaction amortizes several shadowed
// versions of the same blob file into a single fragmentation update.
func (m *FragmentationMap) AddStaleBatch(fileID uint64, items, bytesVal uint64) {
	if items == 0 && bytesVal == 0 {
		return
	}
	e, ok := m.entries[fileID]
	if !ok {
		e = &Fragmentation{}
		m.entries[fileID] = e
	}
	e.StaleItems += items
	e.StaleBytes += bytesVal
}

// Get returns fileID's fragmentation counters, or the zero value if the
// file has none recorded (no staleness yet, or the file is unknown).
func (m *FragmentationMap) Get(fileID uint64) Fragmentation {
	if e, ok := m.entries[fileID]; ok {
		return *e
	}
	return Fragmentation{}
}

// Forget removes fileID's entry, called once the file is dropped.
func (m *FragmentationMap) Forget(fileID uint64) {
	delete(m.entries, fileID)
}

// Clone returns a deep copy, used when a new Version is derived
// copy-on-write from its parent (spec §4.9: "Version: an immutable
// snapshot... the fragmentation map").
func (m *FragmentationMap) Clone() *FragmentationMap {
	out := &FragmentationMap{entries: make(map[uint64]*Fragmentation, len(m.entries))}
	for id, e := range m.entries {
		cp := *e
		out.entries[id] = &cp
	}
	return out
}

// FileIDs returns every blob file id with an entry, in no particular
// order.
func (m *FragmentationMap) FileIDs() []uint64 {
	ids := make([]uint64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}
