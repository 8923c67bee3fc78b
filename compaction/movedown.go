// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// MoveDown relocates every table of From into To, without rewriting, when
// To is empty (spec §4.11, "MoveDown(from, to): pure relocation of every
// table in from into to when to is empty").
type MoveDown struct {
	From, To int
}

// Evaluate implements Strategy.
func (s MoveDown) Evaluate(v *manifest.Version) Choice {
	if s.From >= len(v.Levels) || s.To >= len(v.Levels) {
		return Choice{Kind: DoNothing}
	}
	if v.Levels[s.To].TableCount() != 0 {
		return Choice{Kind: DoNothing}
	}
	tables := v.Levels[s.From].Tables()
	if len(tables) == 0 {
		return Choice{Kind: DoNothing}
	}
	ids := make([]uint64, len(tables))
	for i, t := range tables {
		ids[i] = t.TableID
	}
	return Choice{Kind: Move, InputTableIDs: ids, DestLevel: s.To}
}
