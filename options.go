// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import (
	"github.com/fjall-rs/lsm-tree-sub003/blob"
	"github.com/fjall-rs/lsm-tree-sub003/compaction"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/bloom"
)

// Options configures a Tree, following the functional-options-with-
// EnsureDefaults pattern used throughout the teacher's own db.Options.
type Options struct {
	// Comparer orders user keys; nil means byte-lexicographic order.
	Comparer *base.Comparer

	// NumLevels is the number of levels below the memtables, L0..L(n-1).
	NumLevels int

	// BlockCacheBytes bounds the shared block cache (spec §4.6).
	BlockCacheBytes uint64
	// DescriptorTableCapacity bounds how many table/blob file handles stay
	// open at once (spec §4.6).
	DescriptorTableCapacity int

	// MemtableRotateBytes is the in-memory size at which the active
	// memtable is sealed and a new one takes over (spec §4.7).
	MemtableRotateBytes uint32

	// WriterOptionsForLevel returns the block size/compression/filter
	// policy used for output tables written at level (spec §4.11, "each
	// level its own block size / compression / filter policy"). The
	// default favors uncompressed, filtered tables at L0 (hot, frequently
	// rewritten) and DEFLATE-compressed tables at the deepest levels
	// (cold, read-mostly), matching the teacher's own per-level tuning.
	WriterOptionsForLevel func(level int) sstable.WriterOptions

	// TargetFileSizeDefault sizes compaction/flush outputs when a Choice
	// does not specify one.
	TargetFileSizeDefault uint64

	// CompactionConfig tunes whichever Strategy the caller passes to
	// Compact.
	CompactionConfig compaction.Config

	// ValueSeparationThreshold is the minimum value size, in bytes, that
	// is written to a blob file instead of inlined into a table (spec
	// §4.13). Zero disables key/value separation entirely.
	ValueSeparationThreshold int
	// BlobTargetFileSize is defaulted by EnsureDefaults but not consulted:
	// a blob file rotates only together with the active memtable, whatever
	// its size.
	BlobTargetFileSize uint64
	// BlobGCPolicy is carried for callers but not read by the tree: no
	// relink pass runs, so blob files are reclaimed only when compaction
	// drops their last reference.
	BlobGCPolicy blob.GCPolicy

	// Logger receives diagnostics that are not returned as errors; nil
	// discards them.
	Logger Logger
}

// EnsureDefaults returns o with every zero-valued field replaced by the
// teacher's default, mirroring db.Options.EnsureDefaults.
func (o Options) EnsureDefaults() Options {
	o.Comparer = o.Comparer.EnsureDefaults()
	if o.NumLevels <= 0 {
		o.NumLevels = 7
	}
	if o.BlockCacheBytes == 0 {
		o.BlockCacheBytes = 8 << 20
	}
	if o.DescriptorTableCapacity <= 0 {
		o.DescriptorTableCapacity = 64
	}
	if o.MemtableRotateBytes == 0 {
		o.MemtableRotateBytes = 4 << 20
	}
	if o.TargetFileSizeDefault == 0 {
		o.TargetFileSizeDefault = 32 << 20
	}
	if o.BlobTargetFileSize == 0 {
		o.BlobTargetFileSize = 64 << 20
	}
	if o.WriterOptionsForLevel == nil {
		o.WriterOptionsForLevel = defaultWriterOptionsForLevel
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// defaultWriterOptionsForLevel builds the default blocked filter at every
// level and raises compression with depth (none at L0, LZ4 at L1-L2,
// DEFLATE level 6 from L3 down), matching the shape of the teacher's own per-level tuning (compression
// tends to increase with level depth; bottommost levels in pebble itself
// default to a stronger compressor than L0).
func defaultWriterOptionsForLevel(level int) sstable.WriterOptions {
	opts := sstable.WriterOptions{
		FilterPolicy: bloom.DefaultPolicy,
	}
	switch {
	case level == 0:
		opts.Compression = block.CompressionNone
	case level < 3:
		opts.Compression = block.CompressionLZ4
	default:
		opts.Compression = block.CompressionDeflate
		opts.CompressionLevel = 6
	}
	return opts
}
