// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blob

// FileInfo is the subset of a blob file's manifest metadata a GC policy
// needs to decide whether it is worth relinking (spec §4.13).
type FileInfo struct {
	FileID       uint64
	TotalBytes   uint64 // sum of value bytes written, from FileStats.ValueBytes
	TotalItems   uint64
	CreationTime uint64 // unix seconds
	Fragmentation
}

// ReferencedBytes returns the bytes still live (not yet shadowed).
func (f FileInfo) ReferencedBytes() uint64 {
	if f.StaleBytes >= f.TotalBytes {
		return 0
	}
	return f.TotalBytes - f.StaleBytes
}

// ReferencedItems returns the items still live.
func (f FileInfo) ReferencedItems() uint64 {
	if f.StaleItems >= f.TotalItems {
		return 0
	}
	return f.TotalItems - f.StaleItems
}

// Droppable reports whether no live table references this file any
// longer (spec §4.13: "A blob file is dropped when no live table still
// references it").
func (f FileInfo) Droppable() bool {
	return f.TotalItems > 0 && f.ReferencedItems() == 0
}

// spaceAmp returns the ratio of total bytes to referenced bytes, i.e. how
// many bytes of disk are paid for per byte of live data; 1.0 means no
// waste. A file with zero referenced bytes scores 0, so no space-amp
// target ever selects it.
func (f FileInfo) spaceAmp() float64 {
	ref := f.ReferencedBytes()
	if ref == 0 {
		return 0
	}
	return float64(f.TotalBytes) / float64(ref)
}

// GCPolicy selects which live (non-droppable) blob files should be
// proactively relinked to reclaim space (spec §4.13: "Policies (space-amp
// target; staleness-threshold; age-cutoff) select which blob files to
// relink proactively").
type GCPolicy interface {
	// SelectForRelink returns the subset of files worth rewriting into a
	// fresh blob file so the old one can eventually be dropped.
	SelectForRelink(files []FileInfo) []uint64
}

// SpaceAmpPolicy relinks any file whose ratio of total bytes to live
// bytes reaches or exceeds Target.
type SpaceAmpPolicy struct {
	Target float64
}

// SelectForRelink implements GCPolicy.
func (p SpaceAmpPolicy) SelectForRelink(files []FileInfo) []uint64 {
	target := p.Target
	if target <= 1.0 {
		target = 2.0
	}
	var out []uint64
	for _, f := range files {
		if f.Droppable() {
			continue
		}
		if f.spaceAmp() >= target {
			out = append(out, f.FileID)
		}
	}
	return out
}

// StalenessThresholdPolicy relinks any file whose fraction of stale items
// (by count) reaches or exceeds Threshold (0, 1].
type StalenessThresholdPolicy struct {
	Threshold float64
}

// SelectForRelink implements GCPolicy.
func (p StalenessThresholdPolicy) SelectForRelink(files []FileInfo) []uint64 {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	var out []uint64
	for _, f := range files {
		if f.Droppable() || f.TotalItems == 0 {
			continue
		}
		staleFraction := float64(f.StaleItems) / float64(f.TotalItems)
		if staleFraction >= threshold {
			out = append(out, f.FileID)
		}
	}
	return out
}

// AgeCutoffPolicy relinks every live file created at or before CutoffUnix,
// bounding the worst-case lifetime of any single blob file regardless of
// how stale it looks today.
type AgeCutoffPolicy struct {
	CutoffUnix uint64
}

// SelectForRelink implements GCPolicy.
func (p AgeCutoffPolicy) SelectForRelink(files []FileInfo) []uint64 {
	var out []uint64
	for _, f := range files {
		if f.Droppable() {
			continue
		}
		if f.CreationTime <= p.CutoffUnix {
			out = append(out, f.FileID)
		}
	}
	return out
}
