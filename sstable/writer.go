// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/bloom"
)

// WriterOptions configures a Writer. Per-level policies (spec §4.5, §4.11)
// are threaded through as one of these per compaction/flush output.
type WriterOptions struct {
	TableID           uint64
	BlockSize         int // uncompressed threshold per data block
	IndexBlockSize    int // uncompressed threshold per leaf index block
	RestartInterval   int
	HashRatio         float64 // 0 disables the data-block hash index
	Compression       block.Compression
	CompressionLevel  uint8
	FilterPolicy      bloom.Policy
	ExpectedItemCount int // sizing hint for the filter builder
}

// EnsureDefaults fills zero-valued fields with the teacher's defaults.
func (o WriterOptions) EnsureDefaults() WriterOptions {
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.IndexBlockSize <= 0 {
		o.IndexBlockSize = 4096
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = 16
	}
	if o.ExpectedItemCount <= 0 {
		o.ExpectedItemCount = 1024
	}
	return o
}

// Writer consumes an ordered stream of internal values and produces one
// table file (spec §4.5 writer contract).
type Writer struct {
	opts WriterOptions
	w    io.Writer
	off  uint64

	curBlock     DataBlockWriter
	lastBlockOff uint64
	haveLastOff  bool

	leafIdx    IndexBlockWriter
	leafBlocks []KeyedBlockHandle // flushed leaf/partition index block handles

	filterBuilder interface {
		Insert(h uint64)
		Finish() *bloom.Filter
	}

	firstKey []byte
	lastKey  []byte

	itemCount        uint64
	uniqueKeys       uint64
	tombstones       uint64
	weakTombstones   uint64
	uncompressedSize uint64
	lowSeq         base.SeqNum
	highSeq        base.SeqNum
	haveSeq        bool
	lastUserKey    []byte

	blobRefs map[uint64]*BlobReference

	fileHash *xxhash.Digest
	closed   bool
}

// NewWriter creates a Writer that appends a table's bytes to w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	opts = opts.EnsureDefaults()
	tw := &Writer{
		opts:     opts,
		w:        w,
		blobRefs: make(map[uint64]*BlobReference),
		fileHash: xxhash.New(),
	}
	tw.curBlock = DataBlockWriter{
		RestartInterval:  opts.RestartInterval,
		HashRatio:        opts.HashRatio,
		Compression:      opts.Compression,
		CompressionLevel: opts.CompressionLevel,
	}
	tw.leafIdx = IndexBlockWriter{RestartInterval: 1}
	if opts.FilterPolicy.Enabled() {
		tw.filterBuilder = opts.FilterPolicy.Builder(opts.ExpectedItemCount)
	}
	return tw
}

func (w *Writer) write(p []byte) error {
	return w.writeTracked(p, true)
}

// writeTracked writes p and, when hash is true, folds it into the running
// full-file checksum. The metadata block is written with hash=false; the
// stored checksum is taken just before it (see Finish), so it covers only
// the bytes that precede the metadata block.
func (w *Writer) writeTracked(p []byte, hash bool) error {
	n, err := w.w.Write(p)
	w.off += uint64(n)
	if hash {
		_, _ = w.fileHash.Write(p[:n])
	}
	if err != nil {
		return errors.Wrap(err, "lsmtree: table write")
	}
	return nil
}

// Add appends one internal value. Keys must arrive in ascending internal-
// key order (spec §4.5).
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.closed {
		return base.ErrClosed
	}
	if err := key.UserKey.Validate(); err != nil {
		return err
	}
	if w.firstKey == nil {
		w.firstKey = append([]byte(nil), key.UserKey...)
	}
	w.lastKey = append(w.lastKey[:0], key.UserKey...)

	if !w.haveSeq {
		w.lowSeq, w.highSeq = key.SeqNum, key.SeqNum
		w.haveSeq = true
	} else {
		if key.SeqNum < w.lowSeq {
			w.lowSeq = key.SeqNum
		}
		if key.SeqNum > w.highSeq {
			w.highSeq = key.SeqNum
		}
	}
	if string(key.UserKey) != string(w.lastUserKey) {
		w.uniqueKeys++
		w.lastUserKey = append(w.lastUserKey[:0], key.UserKey...)
	}
	switch key.Kind {
	case base.ValueKindTombstone:
		w.tombstones++
	case base.ValueKindWeakTombstone:
		w.weakTombstones++
	}
	w.itemCount++

	if w.filterBuilder != nil {
		w.filterBuilder.Insert(bloom.Hash64(key.UserKey))
	}

	w.curBlock.Add(key, value)
	if w.curBlock.EstimatedSize() >= w.opts.BlockSize {
		if err := w.flushDataBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushDataBlock() error {
	if w.curBlock.ItemCount() == 0 {
		return nil
	}
	var prev uint64
	if w.haveLastOff {
		prev = w.lastBlockOff
	}
	blockOff := w.off
	raw, err := w.curBlock.Finish(prev)
	if err != nil {
		return err
	}
	if err := w.write(raw); err != nil {
		return err
	}
	w.uncompressedSize += uint64(w.curBlock.UncompressedSize())
	w.leafIdx.Add(KeyedBlockHandle{
		EndKey: w.curBlock.LastKey(),
		Handle: BlockHandle{Offset: blockOff, Size: uint64(len(raw))},
	})
	w.lastBlockOff = blockOff
	w.haveLastOff = true
	w.curBlock.Reset()

	if w.leafIdx.EstimatedSize() >= w.opts.IndexBlockSize {
		return w.flushLeafIndexBlock()
	}
	return nil
}

func (w *Writer) flushLeafIndexBlock() error {
	if w.leafIdx.ItemCount() == 0 {
		return nil
	}
	off := w.off
	raw, err := w.leafIdx.Finish()
	if err != nil {
		return err
	}
	if err := w.write(raw); err != nil {
		return err
	}
	w.leafBlocks = append(w.leafBlocks, KeyedBlockHandle{
		EndKey: w.leafIdx.LastKey(),
		Handle: BlockHandle{Offset: off, Size: uint64(len(raw))},
	})
	w.leafIdx.Reset()
	return nil
}

// AddBlobReference records that this table references a blob file, for
// the table's persisted reference list (spec §4.13).
func (w *Writer) AddBlobReference(blobFileID uint64, bytes uint64) {
	r, ok := w.blobRefs[blobFileID]
	if !ok {
		r = &BlobReference{BlobFileID: blobFileID}
		w.blobRefs[blobFileID] = r
	}
	r.Bytes += bytes
	r.Items++
}

// Finish flushes any buffered blocks, writes the index, filter, metadata,
// and trailer, and returns the final Meta. finish with zero items written
// is a programmer error (Invariant, spec §7) since a writer should not be
// created unless the caller has at least one item to write.
func (w *Writer) Finish() (Meta, error) {
	if w.closed {
		return Meta{}, base.ErrClosed
	}
	w.closed = true
	if w.itemCount == 0 {
		return Meta{}, errors.AssertionFailedf("lsmtree: table writer finished with zero items")
	}
	if err := w.flushDataBlock(); err != nil {
		return Meta{}, err
	}
	if err := w.flushLeafIndexBlock(); err != nil {
		return Meta{}, err
	}

	var trailer Trailer
	if len(w.leafBlocks) == 1 {
		// Single-level index: the one leaf block doubles as the top-level
		// index, directly mapping end_key -> data block handle.
		trailer.TopLevelIndex = w.leafBlocks[0].Handle
	} else {
		tli := IndexBlockWriter{RestartInterval: 1}
		for _, h := range w.leafBlocks {
			tli.Add(h)
		}
		tliOff := w.off
		raw, err := tli.Finish()
		if err != nil {
			return Meta{}, err
		}
		if err := w.write(raw); err != nil {
			return Meta{}, err
		}
		trailer.TopLevelIndex = BlockHandle{Offset: tliOff, Size: uint64(len(raw))}
		// PartitionedIndex spans the leaf index blocks (interleaved with
		// the data blocks); its non-zero size marks the index as two-level.
		firstLeaf := w.leafBlocks[0]
		lastLeaf := w.leafBlocks[len(w.leafBlocks)-1]
		trailer.PartitionedIndex = BlockHandle{
			Offset: firstLeaf.Handle.Offset,
			Size:   (lastLeaf.Handle.Offset + lastLeaf.Handle.Size) - firstLeaf.Handle.Offset,
		}
	}

	if w.filterBuilder != nil {
		f := w.filterBuilder.Finish()
		encoded := f.Encode()
		filterOff := w.off
		if err := w.write(encoded); err != nil {
			return Meta{}, err
		}
		trailer.Filter = BlockHandle{Offset: filterOff, Size: uint64(len(encoded))}
	}

	blobRefs := make([]BlobReference, 0, len(w.blobRefs))
	for _, r := range w.blobRefs {
		blobRefs = append(blobRefs, *r)
	}

	// The file checksum is a 64-bit xxhash of every byte written so far
	// (data, index and filter blocks). The metadata block and the trailer
	// written after it are not covered.
	checksum := w.fileHash.Sum64()

	meta := Meta{
		TableID:          w.opts.TableID,
		CreationTime:     uint64(time.Now().Unix()),
		VersionTag:       TableVersion,
		Compression:      w.opts.Compression,
		ItemCount:        w.itemCount,
		UniqueKeyCount:   w.uniqueKeys,
		TombstoneCount:   w.tombstones,
		WeakTombCount:    w.weakTombstones,
		FirstKey:         w.firstKey,
		LastKey:          w.lastKey,
		LowSeqNum:        w.lowSeq,
		HighSeqNum:       w.highSeq,
		UncompressedSize: w.uncompressedSize,
		FileChecksumLo:   checksum,
		BlobRefs:         blobRefs,
	}

	// FileSize must be assigned before Encode so it round-trips through the
	// on-disk metadata block rather than only surviving in the in-memory
	// Meta this method returns (spec §4.5; DecodeMeta/Meta.Encode round-trip
	// it, and recovery reads the on-disk value, not this one). Encode embeds
	// FileSize as a uvarint whose own byte length can in turn affect the
	// payload length, so fix point over it; this converges in at most one
	// extra pass since the file only grows past a varint size class once.
	metaOff := w.off
	meta.FileSize = metaOff + TrailerSize
	for i := 0; i < 4; i++ {
		next := metaOff + uint64(len(meta.Encode())) + TrailerSize
		if next == meta.FileSize {
			break
		}
		meta.FileSize = next
	}
	metaPayload := meta.Encode()
	if err := w.writeTracked(metaPayload, false); err != nil {
		return Meta{}, err
	}
	trailer.Metadata = BlockHandle{Offset: metaOff, Size: uint64(len(metaPayload))}
	trailer.Version = TableVersion

	if err := w.write(trailer.Encode()); err != nil {
		return Meta{}, err
	}
	return meta, nil
}
