// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/bloom"
)

// ReadableFile is the minimal random-access file handle a Reader needs.
// The concrete implementation is supplied by the (out-of-scope) file
// system adapter; see fs.File.
type ReadableFile interface {
	io.ReaderAt
	Size() (int64, error)
}

// BlockLoader abstracts over the block cache (spec §4.6): Load either
// serves a block from cache or reads it from disk, inserting per the
// configured cache policy.
type BlockLoader func(tableID uint64, h BlockHandle, load func() ([]byte, error)) ([]byte, error)

// noCacheLoader reads straight through, used when no cache is configured.
func noCacheLoader(_ uint64, _ BlockHandle, load func() ([]byte, error)) ([]byte, error) {
	return load()
}

// Reader opens one table file for point lookups, range iteration, and
// full-scan (spec §4.5). A Reader is safe for concurrent use by multiple
// goroutines.
type Reader struct {
	file    ReadableFile
	cmp     func(a, b []byte) int
	loader  BlockLoader
	trailer Trailer
	meta    Meta
	filter  *bloom.Filter
	tli     *IndexBlockReader
	tableID uint64
}

// ReaderOptions configures how a table is opened.
type ReaderOptions struct {
	Compare     func(a, b []byte) int
	Loader      BlockLoader // nil disables caching
	PinFilter   bool
	PinTLI      bool
}

// NewReader opens file as a table, reading the trailer, metadata block,
// and (per pinning policy) the filter and top-level index eagerly (spec
// §4.5: "A reader opens a table by reading the trailer first, then the
// metadata block, then (optionally) loading and pinning the filter and
// TLI.").
func NewReader(file ReadableFile, opts ReaderOptions) (*Reader, error) {
	if opts.Compare == nil {
		opts.Compare = base.DefaultCompare
	}
	loader := opts.Loader
	if loader == nil {
		loader = noCacheLoader
	}
	size, err := file.Size()
	if err != nil {
		return nil, errors.Wrap(err, "lsmtree: stat table file")
	}
	if size < TrailerSize {
		return nil, errors.New("lsmtree: table file too small")
	}
	tail := make([]byte, TrailerSize)
	if _, err := file.ReadAt(tail, size-TrailerSize); err != nil {
		return nil, errors.Wrap(err, "lsmtree: read table trailer")
	}
	trailer, err := DecodeTrailer(tail)
	if err != nil {
		return nil, err
	}

	metaRaw := make([]byte, trailer.Metadata.Size)
	if _, err := file.ReadAt(metaRaw, int64(trailer.Metadata.Offset)); err != nil {
		return nil, errors.Wrap(err, "lsmtree: read table metadata")
	}
	meta, err := DecodeMeta(metaRaw)
	if err != nil {
		return nil, err
	}

	r := &Reader{file: file, cmp: opts.Compare, loader: loader, trailer: trailer, meta: meta, tableID: meta.TableID}

	if trailer.Filter.Size > 0 && opts.PinFilter {
		raw := make([]byte, trailer.Filter.Size)
		if _, err := file.ReadAt(raw, int64(trailer.Filter.Offset)); err != nil {
			return nil, errors.Wrap(err, "lsmtree: read filter block")
		}
		f, err := bloom.Decode(raw)
		if err != nil {
			return nil, err
		}
		r.filter = f
	}
	if opts.PinTLI {
		tli, err := r.loadTLI()
		if err != nil {
			return nil, err
		}
		r.tli = tli
	}
	return r, nil
}

// Meta returns the table's metadata.
func (r *Reader) Meta() Meta { return r.meta }

func (r *Reader) loadFilter() (*bloom.Filter, error) {
	if r.filter != nil {
		return r.filter, nil
	}
	if r.trailer.Filter.Size == 0 {
		return nil, nil
	}
	raw, err := r.loader(r.tableID, r.trailer.Filter, func() ([]byte, error) {
		b := make([]byte, r.trailer.Filter.Size)
		_, err := r.file.ReadAt(b, int64(r.trailer.Filter.Offset))
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return bloom.Decode(raw)
}

func (r *Reader) loadTLI() (*IndexBlockReader, error) {
	if r.tli != nil {
		return r.tli, nil
	}
	raw, err := r.loader(r.tableID, r.trailer.TopLevelIndex, func() ([]byte, error) {
		b := make([]byte, r.trailer.TopLevelIndex.Size)
		_, err := r.file.ReadAt(b, int64(r.trailer.TopLevelIndex.Offset))
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return NewIndexBlockReader(raw)
}

func (r *Reader) loadDataBlock(h BlockHandle) (*DataBlockReader, error) {
	raw, err := r.loader(r.tableID, h, func() ([]byte, error) {
		b := make([]byte, h.Size)
		_, err := r.file.ReadAt(b, int64(h.Offset))
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return NewDataBlockReader(raw)
}

// MayContain consults the table's filter, if any, returning false only
// when the key is definitively absent (spec §4.4, §8.6). A table without
// a filter always returns true.
func (r *Reader) MayContain(userKey []byte) (bool, error) {
	f, err := r.loadFilter()
	if err != nil {
		return true, err
	}
	if f == nil {
		return true, nil
	}
	return f.ContainsHash(bloom.Hash64(userKey)), nil
}

// Get performs the point-read algorithm from spec §4.14 step 2 restricted
// to this one table: consult the filter, locate the data block via the
// (possibly partitioned) index, and point-read within it.
func (r *Reader) Get(userKey []byte, snapshotSeq base.SeqNum) (base.InternalKey, []byte, bool, error) {
	if ok, err := r.MayContain(userKey); err != nil {
		return base.InternalKey{}, nil, false, err
	} else if !ok {
		return base.InternalKey{}, nil, false, nil
	}
	h, ok, err := r.blockHandleFor(userKey)
	if err != nil || !ok {
		return base.InternalKey{}, nil, false, err
	}
	db, err := r.loadDataBlock(h)
	if err != nil {
		return base.InternalKey{}, nil, false, err
	}
	return db.Get(r.cmp, userKey, snapshotSeq)
}

// blockHandleFor resolves the data block that may contain userKey via the
// top-level index, descending one extra level when the index is
// partitioned (trailer.PartitionedIndex is non-empty).
func (r *Reader) blockHandleFor(userKey []byte) (BlockHandle, bool, error) {
	tli, err := r.loadTLI()
	if err != nil {
		return BlockHandle{}, false, err
	}
	h, ok, err := tli.Lookup(r.cmp, userKey)
	if err != nil || !ok {
		return BlockHandle{}, false, err
	}
	if r.trailer.PartitionedIndex.Size == 0 {
		// Single-level index: the TLI handle already names a data block.
		return h.Handle, true, nil
	}
	// Two-level: the TLI handle names a leaf index block; resolve once
	// more within it.
	leaf, err := r.loadIndexBlock(h.Handle)
	if err != nil {
		return BlockHandle{}, false, err
	}
	h2, ok, err := leaf.Lookup(r.cmp, userKey)
	if err != nil || !ok {
		return BlockHandle{}, false, err
	}
	return h2.Handle, true, nil
}

func (r *Reader) loadIndexBlock(h BlockHandle) (*IndexBlockReader, error) {
	raw, err := r.loader(r.tableID, h, func() ([]byte, error) {
		b := make([]byte, h.Size)
		_, err := r.file.ReadAt(b, int64(h.Offset))
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return NewIndexBlockReader(raw)
}

// Contains reports whether this table's key range [FirstKey, LastKey]
// could contain userKey, without touching the filter or any block.
func (r *Reader) Contains(userKey []byte) bool {
	return r.cmp(userKey, r.meta.FirstKey) >= 0 && r.cmp(userKey, r.meta.LastKey) <= 0
}
