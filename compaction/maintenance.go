// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// Maintenance evens out L0 once it grows beyond L0SegmentCap, picking the
// least-I/O window: the smallest-by-bytes contiguous run of tables, on
// the theory that merging the cheapest tables first relieves read
// amplification without paying for a large rewrite (spec §4.11,
// "Maintenance").
type Maintenance struct {
	Cfg Config
}

// Evaluate implements Strategy.
func (s Maintenance) Evaluate(v *manifest.Version) Choice {
	level := s.Cfg.MaintenanceLevel
	if level >= len(v.Levels) {
		return Choice{Kind: DoNothing}
	}
	tables := v.Levels[level].Tables()
	if len(tables) <= L0SegmentCap {
		return Choice{Kind: DoNothing}
	}

	const windowSize = 4
	n := windowSize
	if n > len(tables) {
		n = len(tables)
	}
	bestStart, bestSize := 0, uint64(0)
	for start := 0; start+n <= len(tables); start++ {
		var sum uint64
		for _, t := range tables[start : start+n] {
			sum += t.FileSize
		}
		if start == 0 || sum < bestSize {
			bestStart, bestSize = start, sum
		}
	}

	window := tables[bestStart : bestStart+n]
	ids := make([]uint64, len(window))
	for i, t := range window {
		ids[i] = t.TableID
	}
	target := s.Cfg.TargetFileSize
	if target == 0 {
		target = 32 << 20
	}
	return Choice{Kind: Merge, InputTableIDs: ids, DestLevel: level, TargetFileSize: target}
}
