// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/manifest"

// Strategy picks what compaction work, if any, is worth doing against a
// Version. Implementations must be pure (spec §4.11).
type Strategy interface {
	Evaluate(v *manifest.Version) Choice
}

// Config bundles the tunables every strategy needs. Not every field
// applies to every strategy; each strategy documents which it reads.
type Config struct {
	// L0CompactionTrigger is the L0 run count at which Leveled merges L0
	// into L1 (spec §4.11, "L0 is merged into L1 when its table count
	// reaches a threshold").
	L0CompactionTrigger int
	// LevelSizeRatio sizes level L_{n+1}'s budget as LevelSizeRatio times
	// level L_n's (spec §4.11, "sized geometrically by a ratio").
	LevelSizeRatio float64
	// BaseLevelBytes is level 1's size budget; deeper levels scale by
	// LevelSizeRatio.
	BaseLevelBytes uint64
	// TargetFileSize is the approximate output table size Leveled and
	// SizeTiered aim for.
	TargetFileSize uint64

	// SizeTieredMinTables is the smallest window SizeTiered will merge.
	SizeTieredMinTables int
	// SizeTieredSizeClassRatio bounds how much a window's largest table
	// may exceed its smallest before it stops qualifying as one "size
	// class" (spec §4.11, "a window of tables... whose combined size
	// falls in a size class").
	SizeTieredSizeClassRatio float64

	// FIFOLevelByteBudget is the total size, including attributed blob
	// bytes, a FIFO level may retain before its oldest tables are
	// dropped (spec §4.11, "maintain a total size budget per level").
	FIFOLevelByteBudget uint64
	// FIFOTTLSeconds, if non-zero, drops tables whose age (FIFONowUnix
	// minus CreationTime) reaches it regardless of budget.
	FIFOTTLSeconds int64
	// FIFONowUnix is injected (rather than read from the clock) so FIFO
	// stays pure; callers pass the current wall time.
	FIFONowUnix int64

	// MaintenanceLevel is the level (almost always 0) the Maintenance
	// strategy watches for L0SegmentCap overflow.
	MaintenanceLevel int
}
