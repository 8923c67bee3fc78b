// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// SizeTiered picks a contiguous window of tables at Level whose combined
// size falls within one "size class" (no table in the window exceeds the
// smallest by more than Config.SizeTieredSizeClassRatio) and merges them
// into a new table at the same level (spec §4.11, "SizeTiered").
type SizeTiered struct {
	Cfg   Config
	Level int
}

// Evaluate implements Strategy.
func (s SizeTiered) Evaluate(v *manifest.Version) Choice {
	if s.Level >= len(v.Levels) {
		return Choice{Kind: DoNothing}
	}
	tables := v.Levels[s.Level].Tables()
	minCount := s.Cfg.SizeTieredMinTables
	if minCount <= 0 {
		minCount = 4
	}
	if len(tables) < minCount {
		return Choice{Kind: DoNothing}
	}
	ratio := s.Cfg.SizeTieredSizeClassRatio
	if ratio <= 1 {
		ratio = 2
	}

	for start := 0; start+minCount <= len(tables); start++ {
		window := tables[start : start+minCount]
		minSize, maxSize := window[0].FileSize, window[0].FileSize
		for _, t := range window[1:] {
			if t.FileSize < minSize {
				minSize = t.FileSize
			}
			if t.FileSize > maxSize {
				maxSize = t.FileSize
			}
		}
		if minSize == 0 {
			continue
		}
		if float64(maxSize)/float64(minSize) <= ratio {
			ids := make([]uint64, len(window))
			for i, t := range window {
				ids[i] = t.TableID
			}
			target := s.Cfg.TargetFileSize
			if target == 0 {
				target = 32 << 20
			}
			return Choice{Kind: Merge, InputTableIDs: ids, DestLevel: s.Level, TargetFileSize: target}
		}
	}
	return Choice{Kind: DoNothing}
}
