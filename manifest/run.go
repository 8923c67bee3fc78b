// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

// Run is an ordered sequence of tables with disjoint, ascending key
// ranges (spec §4.9, "Run"). A run supports binary search for a key.
type Run struct {
	Tables []*TableMetadata
}

// Find returns the index of the table whose range may contain userKey, or
// -1 if none does. Tables within a run are assumed sorted by FirstKey and
// non-overlapping, so this is a binary search.
func (r Run) Find(cmp func(a, b []byte) int, userKey []byte) int {
	lo, hi := 0, len(r.Tables)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(r.Tables[mid].LastKey, userKey) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(r.Tables) {
		return -1
	}
	if cmp(r.Tables[lo].FirstKey, userKey) > 0 {
		return -1
	}
	return lo
}

// Size returns the sum of the run's table file sizes.
func (r Run) Size() uint64 {
	var sum uint64
	for _, t := range r.Tables {
		sum += t.FileSize
	}
	return sum
}

// Clone returns a shallow copy of the run's table slice (the
// TableMetadata pointers are shared and immutable; only the slice
// backing changes so levels can be edited independently after a
// copy-on-write Version derivation).
func (r Run) Clone() Run {
	out := make([]*TableMetadata, len(r.Tables))
	copy(out, r.Tables)
	return Run{Tables: out}
}

// Level is an ordered list of runs (spec §4.9, "Level"). Level 0 may hold
// multiple overlapping single-table runs; lower levels typically hold
// exactly one run of non-overlapping tables.
type Level struct {
	Runs []Run
}

// Clone returns a deep-enough copy for copy-on-write editing: each run's
// table slice is copied, but TableMetadata values are shared.
func (l Level) Clone() Level {
	out := Level{Runs: make([]Run, len(l.Runs))}
	for i, r := range l.Runs {
		out.Runs[i] = r.Clone()
	}
	return out
}

// TableCount returns the total number of tables across every run.
func (l Level) TableCount() int {
	n := 0
	for _, r := range l.Runs {
		n += len(r.Tables)
	}
	return n
}

// Size returns the sum of every run's size.
func (l Level) Size() uint64 {
	var sum uint64
	for _, r := range l.Runs {
		sum += r.Size()
	}
	return sum
}

// Tables returns every table in the level, run by run.
func (l Level) Tables() []*TableMetadata {
	var out []*TableMetadata
	for _, r := range l.Runs {
		out = append(out, r.Tables...)
	}
	return out
}
