// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// PullDown merges every table of From with every table of To into To
// (spec §4.11, "PullDown(from, to): merges every table of from with
// every table of to into to (used in tests)").
type PullDown struct {
	Cfg      Config
	From, To int
}

// Evaluate implements Strategy.
func (s PullDown) Evaluate(v *manifest.Version) Choice {
	if s.From >= len(v.Levels) || s.To >= len(v.Levels) {
		return Choice{Kind: DoNothing}
	}
	from := v.Levels[s.From].Tables()
	to := v.Levels[s.To].Tables()
	if len(from) == 0 && len(to) == 0 {
		return Choice{Kind: DoNothing}
	}
	ids := make([]uint64, 0, len(from)+len(to))
	for _, t := range from {
		ids = append(ids, t.TableID)
	}
	for _, t := range to {
		ids = append(ids, t.TableID)
	}
	target := s.Cfg.TargetFileSize
	if target == 0 {
		target = 32 << 20
	}
	return Choice{Kind: Merge, InputTableIDs: ids, DestLevel: s.To, TargetFileSize: target}
}
