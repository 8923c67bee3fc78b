// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blob

import "testing"

func TestFileInfoDroppable(t *testing.T) {
	f := FileInfo{FileID: 1, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleItems: 10, StaleBytes: 1000}}
	if !f.Droppable() {
		t.Fatalf("file with zero referenced items should be droppable")
	}

	f2 := FileInfo{FileID: 2, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleItems: 9, StaleBytes: 900}}
	if f2.Droppable() {
		t.Fatalf("file with one referenced item should not be droppable")
	}
}

func TestSpaceAmpPolicySelectsWastefulFiles(t *testing.T) {
	files := []FileInfo{
		{FileID: 1, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleBytes: 900, StaleItems: 1}},
		{FileID: 2, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleBytes: 100, StaleItems: 1}},
	}
	got := SpaceAmpPolicy{Target: 2.0}.SelectForRelink(files)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("SpaceAmpPolicy selected %v, want [1]", got)
	}
}

func TestStalenessThresholdPolicy(t *testing.T) {
	files := []FileInfo{
		{FileID: 1, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleItems: 6}},
		{FileID: 2, TotalBytes: 1000, TotalItems: 10, Fragmentation: Fragmentation{StaleItems: 2}},
	}
	got := StalenessThresholdPolicy{Threshold: 0.5}.SelectForRelink(files)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("StalenessThresholdPolicy selected %v, want [1]", got)
	}
}

func TestAgeCutoffPolicy(t *testing.T) {
	files := []FileInfo{
		{FileID: 1, TotalItems: 10, CreationTime: 100},
		{FileID: 2, TotalItems: 10, CreationTime: 500},
	}
	got := AgeCutoffPolicy{CutoffUnix: 200}.SelectForRelink(files)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("AgeCutoffPolicy selected %v, want [1]", got)
	}
}

func TestFragmentationMapCloneIsIndependent(t *testing.T) {
	m := NewFragmentationMap()
	m.Register(1)
	m.AddStale(1, 100)

	clone := m.Clone()
	m.AddStale(1, 50)

	if got := clone.Get(1); got.StaleBytes != 100 {
		t.Fatalf("clone should not observe later mutation, got %+v", got)
	}
	if got := m.Get(1); got.StaleBytes != 150 {
		t.Fatalf("original should observe its own mutation, got %+v", got)
	}
}
