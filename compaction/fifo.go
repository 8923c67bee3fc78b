// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// FIFO maintains a total size budget (including attributed blob bytes)
// per level, and optionally a TTL, dropping the oldest tables once
// either is exceeded (spec §4.11, "FIFO"). It never rewrites data: its
// only Choice kind is Drop.
type FIFO struct {
	Cfg   Config
	Level int
}

// Evaluate implements Strategy.
func (s FIFO) Evaluate(v *manifest.Version) Choice {
	if s.Level >= len(v.Levels) {
		return Choice{Kind: DoNothing}
	}
	tables := v.Levels[s.Level].Tables()
	if len(tables) == 0 {
		return Choice{Kind: DoNothing}
	}

	// Oldest-first, approximated by ascending CreationTime (ties broken
	// by HighSeqNum, since within one level wall-clock time and write
	// order agree).
	ordered := append([]*manifest.TableMetadata(nil), tables...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && older(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	var drop []uint64

	if s.Cfg.FIFOTTLSeconds > 0 {
		cutoff := uint64(0)
		if s.Cfg.FIFONowUnix > s.Cfg.FIFOTTLSeconds {
			cutoff = uint64(s.Cfg.FIFONowUnix - s.Cfg.FIFOTTLSeconds)
		}
		for _, t := range ordered {
			if t.CreationTime <= cutoff {
				drop = append(drop, t.TableID)
			}
		}
	}

	if s.Cfg.FIFOLevelByteBudget > 0 {
		total := uint64(0)
		for _, t := range ordered {
			total += t.FileSize + t.BlobBytes()
		}
		dropped := make(map[uint64]struct{}, len(drop))
		for _, id := range drop {
			dropped[id] = struct{}{}
		}
		for _, t := range ordered {
			if total <= s.Cfg.FIFOLevelByteBudget {
				break
			}
			if _, already := dropped[t.TableID]; already {
				continue
			}
			drop = append(drop, t.TableID)
			total -= t.FileSize + t.BlobBytes()
		}
	}

	if len(drop) == 0 {
		return Choice{Kind: DoNothing}
	}
	return Choice{Kind: Drop, InputTableIDs: drop, DestLevel: s.Level}
}

func older(a, b *manifest.TableMetadata) bool {
	if a.CreationTime != b.CreationTime {
		return a.CreationTime < b.CreationTime
	}
	return a.HighSeqNum < b.HighSeqNum
}
