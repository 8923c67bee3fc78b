// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// DropRange drops every table, at any level, entirely contained within
// [Lo, Hi] (spec §4.11, "DropRange(key_range): drop every table
// contained entirely inside key_range"). Partial overlaps are left for a
// later Merge/Move to trim naturally (spec §8, "Non-goals: ...partial
// overlaps are left to natural compaction").
type DropRange struct {
	Cmp    func(a, b []byte) int
	Lo, Hi []byte
}

// Evaluate implements Strategy.
func (s DropRange) Evaluate(v *manifest.Version) Choice {
	var ids []uint64
	for _, l := range v.Levels {
		for _, t := range l.Tables() {
			if s.Cmp(t.FirstKey, s.Lo) >= 0 && s.Cmp(t.LastKey, s.Hi) <= 0 {
				ids = append(ids, t.TableID)
			}
		}
	}
	if len(ids) == 0 {
		return Choice{Kind: DoNothing}
	}
	return Choice{Kind: Drop, InputTableIDs: ids}
}
