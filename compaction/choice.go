// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compaction implements the compaction strategies and the
// executor that carries out whichever Choice a strategy returns (spec
// §4.10-§4.12).
package compaction

// Kind distinguishes the four possible strategy outcomes (spec §4.11).
type Kind uint8

const (
	// DoNothing means the strategy found no work worth doing.
	DoNothing Kind = iota
	// Merge rewrites InputTableIDs into one or more new tables in
	// DestLevel via a full MVCC merge.
	Merge
	// Move relocates InputTableIDs into DestLevel without rewriting
	// their bytes; their reference lists are left untouched (spec §4.11,
	// "Trivial-move").
	Move
	// Drop deletes InputTableIDs outright, with no output (spec §4.11,
	// "Drop(set_of_table_ids)").
	Drop
)

func (k Kind) String() string {
	switch k {
	case DoNothing:
		return "do-nothing"
	case Merge:
		return "merge"
	case Move:
		return "move"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Choice is the pure decision a Strategy returns; the Executor is solely
// responsible for carrying out its side effects (spec §4.11, "Every
// strategy must be pure; side effects are executed by the executor").
type Choice struct {
	Kind           Kind
	InputTableIDs  []uint64
	DestLevel      int
	TargetFileSize uint64
}

// L0SegmentCap bounds how many single-table runs L0 may accumulate before
// a strategy treats it as overloaded. Shared by the leveled strategy's L0
// trigger and the maintenance strategy's "even out L0" trigger, resolving
// the spec's Open Question about whether these are the same threshold
// (SPEC_FULL.md, "L0_SEGMENT_CAP").
const L0SegmentCap = 20
