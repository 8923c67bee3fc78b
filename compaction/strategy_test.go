// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"bytes"
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
)

func cmpBytes(a, b []byte) int { return bytes.Compare(a, b) }

func table(id uint64, lo, hi string, size uint64, creationTime uint64) *manifest.TableMetadata {
	return &manifest.TableMetadata{
		TableID:      id,
		FirstKey:     []byte(lo),
		LastKey:      []byte(hi),
		FileSize:     size,
		CreationTime: creationTime,
		HighSeqNum:   base.SeqNum(creationTime),
	}
}

func versionWithLevels(levels ...[]*manifest.TableMetadata) *manifest.Version {
	v := manifest.NewEmptyVersion(len(levels))
	for i, tables := range levels {
		v.Levels[i] = manifest.Level{Runs: []manifest.Run{{Tables: tables}}}
	}
	return v
}

func TestLeveledTriggersL0Merge(t *testing.T) {
	var l0 []*manifest.TableMetadata
	for i := 0; i < L0SegmentCap; i++ {
		l0 = append(l0, table(uint64(i+1), "a", "z", 100, uint64(i)))
	}
	v := versionWithLevels(l0, nil)
	s := Leveled{Cmp: cmpBytes, Cfg: Config{L0CompactionTrigger: L0SegmentCap}}
	choice := s.Evaluate(v)
	if choice.Kind != Merge {
		t.Fatalf("got kind %v, want Merge", choice.Kind)
	}
	if choice.DestLevel != 1 {
		t.Fatalf("got dest level %d, want 1", choice.DestLevel)
	}
	if len(choice.InputTableIDs) != L0SegmentCap {
		t.Fatalf("got %d inputs, want all L0 tables", len(choice.InputTableIDs))
	}
}

func TestLeveledTrivialMoveWhenNoOverlap(t *testing.T) {
	l1 := []*manifest.TableMetadata{table(1, "a", "b", 100, 1)}
	v := versionWithLevels(nil, l1, nil)
	s := Leveled{Cmp: cmpBytes, Cfg: Config{BaseLevelBytes: 1}}
	choice := s.Evaluate(v)
	if choice.Kind != Move {
		t.Fatalf("got kind %v, want Move", choice.Kind)
	}
	if choice.DestLevel != 2 {
		t.Fatalf("got dest level %d, want 2", choice.DestLevel)
	}
}

func TestLeveledDoesNothingWhenUnderBudget(t *testing.T) {
	l1 := []*manifest.TableMetadata{table(1, "a", "b", 100, 1)}
	v := versionWithLevels(nil, l1, nil)
	s := Leveled{Cmp: cmpBytes, Cfg: Config{BaseLevelBytes: 1 << 30}}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}

func TestSizeTieredMergesMatchingSizeClass(t *testing.T) {
	tables := []*manifest.TableMetadata{
		table(1, "a", "a", 100, 1),
		table(2, "b", "b", 110, 2),
		table(3, "c", "c", 90, 3),
		table(4, "d", "d", 105, 4),
	}
	v := versionWithLevels(tables)
	s := SizeTiered{Cfg: Config{SizeTieredMinTables: 4, SizeTieredSizeClassRatio: 2}, Level: 0}
	choice := s.Evaluate(v)
	if choice.Kind != Merge || len(choice.InputTableIDs) != 4 {
		t.Fatalf("got %+v, want a 4-table merge", choice)
	}
}

func TestSizeTieredDoesNothingBelowMinTables(t *testing.T) {
	tables := []*manifest.TableMetadata{table(1, "a", "a", 100, 1)}
	v := versionWithLevels(tables)
	s := SizeTiered{Cfg: Config{SizeTieredMinTables: 4}, Level: 0}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}

func TestFIFODropsOldestUnderByteBudget(t *testing.T) {
	tables := []*manifest.TableMetadata{
		table(1, "a", "a", 100, 1),
		table(2, "b", "b", 100, 2),
		table(3, "c", "c", 100, 3),
	}
	v := versionWithLevels(tables)
	s := FIFO{Cfg: Config{FIFOLevelByteBudget: 150}, Level: 0}
	choice := s.Evaluate(v)
	if choice.Kind != Drop {
		t.Fatalf("got kind %v, want Drop", choice.Kind)
	}
	if len(choice.InputTableIDs) != 2 || choice.InputTableIDs[0] != 1 {
		t.Fatalf("got %v, want [1 2] (oldest dropped first)", choice.InputTableIDs)
	}
}

func TestFIFODropsByTTL(t *testing.T) {
	tables := []*manifest.TableMetadata{
		table(1, "a", "a", 100, 10),
		table(2, "b", "b", 100, 1000),
	}
	v := versionWithLevels(tables)
	s := FIFO{Cfg: Config{FIFOTTLSeconds: 100, FIFONowUnix: 1000}, Level: 0}
	choice := s.Evaluate(v)
	if choice.Kind != Drop || len(choice.InputTableIDs) != 1 || choice.InputTableIDs[0] != 1 {
		t.Fatalf("got %+v, want Drop of table 1 only", choice)
	}
}

func TestFIFODoesNothingUnderBudget(t *testing.T) {
	tables := []*manifest.TableMetadata{table(1, "a", "a", 10, 1)}
	v := versionWithLevels(tables)
	s := FIFO{Cfg: Config{FIFOLevelByteBudget: 1000}, Level: 0}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}

func TestMaintenancePicksSmallestWindowPastCap(t *testing.T) {
	var tables []*manifest.TableMetadata
	for i := 0; i < L0SegmentCap+4; i++ {
		size := uint64(100)
		if i >= 10 && i < 14 {
			size = 10
		}
		tables = append(tables, table(uint64(i+1), "a", "z", size, uint64(i)))
	}
	v := versionWithLevels(tables)
	s := Maintenance{}
	choice := s.Evaluate(v)
	if choice.Kind != Merge {
		t.Fatalf("got kind %v, want Merge", choice.Kind)
	}
	if len(choice.InputTableIDs) != 4 || choice.InputTableIDs[0] != 11 {
		t.Fatalf("got %v, want the cheapest 4-table window (ids 11-14)", choice.InputTableIDs)
	}
}

func TestMaintenanceDoesNothingUnderCap(t *testing.T) {
	tables := []*manifest.TableMetadata{table(1, "a", "a", 1, 1)}
	v := versionWithLevels(tables)
	s := Maintenance{}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}

func TestMoveDownRelocatesIntoEmptyLevel(t *testing.T) {
	from := []*manifest.TableMetadata{table(1, "a", "a", 1, 1), table(2, "b", "b", 1, 2)}
	v := versionWithLevels(from, nil)
	s := MoveDown{From: 0, To: 1}
	choice := s.Evaluate(v)
	if choice.Kind != Move || len(choice.InputTableIDs) != 2 || choice.DestLevel != 1 {
		t.Fatalf("got %+v", choice)
	}
}

func TestMoveDownDoesNothingWhenDestNonEmpty(t *testing.T) {
	from := []*manifest.TableMetadata{table(1, "a", "a", 1, 1)}
	to := []*manifest.TableMetadata{table(2, "b", "b", 1, 1)}
	v := versionWithLevels(from, to)
	s := MoveDown{From: 0, To: 1}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}

func TestPullDownMergesBothLevels(t *testing.T) {
	from := []*manifest.TableMetadata{table(1, "a", "a", 1, 1)}
	to := []*manifest.TableMetadata{table(2, "b", "b", 1, 1)}
	v := versionWithLevels(from, to)
	s := PullDown{From: 0, To: 1}
	choice := s.Evaluate(v)
	if choice.Kind != Merge || len(choice.InputTableIDs) != 2 || choice.DestLevel != 1 {
		t.Fatalf("got %+v", choice)
	}
}

func TestDropRangeDropsFullyContainedTables(t *testing.T) {
	tables := []*manifest.TableMetadata{
		table(1, "b", "c", 1, 1),  // fully inside [a, d]
		table(2, "c", "e", 1, 1),  // partially overlapping, should be left alone
	}
	v := versionWithLevels(tables)
	s := DropRange{Cmp: cmpBytes, Lo: []byte("a"), Hi: []byte("d")}
	choice := s.Evaluate(v)
	if choice.Kind != Drop || len(choice.InputTableIDs) != 1 || choice.InputTableIDs[0] != 1 {
		t.Fatalf("got %+v, want Drop of table 1 only", choice)
	}
}

func TestDropRangeDoesNothingWhenNoTableContained(t *testing.T) {
	tables := []*manifest.TableMetadata{table(1, "x", "y", 1, 1)}
	v := versionWithLevels(tables)
	s := DropRange{Cmp: cmpBytes, Lo: []byte("a"), Hi: []byte("d")}
	if choice := s.Evaluate(v); choice.Kind != DoNothing {
		t.Fatalf("got kind %v, want DoNothing", choice.Kind)
	}
}
