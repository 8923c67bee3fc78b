// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// Leveled merges L0 into L1 once L0's run count reaches
// Config.L0CompactionTrigger (capped by L0SegmentCap), and otherwise
// looks for the shallowest level whose size exceeds its geometrically
// scaled budget, picking one table from it to merge with every
// overlapping table one level down (spec §4.11, "Leveled").
type Leveled struct {
	Cmp func(a, b []byte) int
	Cfg Config
}

// Evaluate implements Strategy.
func (s Leveled) Evaluate(v *manifest.Version) Choice {
	trigger := s.Cfg.L0CompactionTrigger
	if trigger <= 0 || trigger > L0SegmentCap {
		trigger = L0SegmentCap
	}
	if len(v.Levels) > 0 && v.Levels[0].TableCount() >= trigger {
		return s.mergeLevel(v, 0)
	}

	for n := 1; n < len(v.Levels)-1; n++ {
		budget := s.levelBudget(n)
		if v.Levels[n].Size() > budget {
			return s.mergeLevel(v, n)
		}
	}
	return Choice{Kind: DoNothing}
}

func (s Leveled) levelBudget(level int) uint64 {
	base := s.Cfg.BaseLevelBytes
	if base == 0 {
		base = 64 << 20
	}
	ratio := s.Cfg.LevelSizeRatio
	if ratio <= 1 {
		ratio = 10
	}
	budget := float64(base)
	for i := 1; i < level; i++ {
		budget *= ratio
	}
	return uint64(budget)
}

// mergeLevel picks one table (L0: every table, since L0 runs overlap
// arbitrarily; deeper levels: the first table) from level n and every
// table in level n+1 whose range overlaps it.
func (s Leveled) mergeLevel(v *manifest.Version, n int) Choice {
	srcTables := v.Levels[n].Tables()
	if len(srcTables) == 0 {
		return Choice{Kind: DoNothing}
	}

	var chosen []*manifest.TableMetadata
	if n == 0 {
		chosen = srcTables
	} else {
		chosen = srcTables[:1]
	}

	lo, hi := chosen[0].FirstKey, chosen[0].LastKey
	for _, t := range chosen[1:] {
		if s.Cmp(t.FirstKey, lo) < 0 {
			lo = t.FirstKey
		}
		if s.Cmp(t.LastKey, hi) > 0 {
			hi = t.LastKey
		}
	}

	destLevel := n + 1
	var overlapping []*manifest.TableMetadata
	if destLevel < len(v.Levels) {
		for _, t := range v.Levels[destLevel].Tables() {
			if t.Overlaps(s.Cmp, lo, hi) {
				overlapping = append(overlapping, t)
			}
		}
	}

	ids := make([]uint64, 0, len(chosen)+len(overlapping))
	for _, t := range chosen {
		ids = append(ids, t.TableID)
	}
	for _, t := range overlapping {
		ids = append(ids, t.TableID)
	}

	// Trivial-move: a single source table with nothing to merge against
	// in the destination can simply be relocated (spec §4.11).
	if len(chosen) == 1 && len(overlapping) == 0 {
		return Choice{Kind: Move, InputTableIDs: ids, DestLevel: destLevel}
	}

	target := s.Cfg.TargetFileSize
	if target == 0 {
		target = 32 << 20
	}
	return Choice{Kind: Merge, InputTableIDs: ids, DestLevel: destLevel, TargetFileSize: target}
}
