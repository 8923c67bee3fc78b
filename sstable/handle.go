// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable implements the on-disk table format: data blocks, index
// blocks, filters, the metadata block and trailer, and the readers and
// writers that assemble/consume them (spec §4.2-§4.5).
package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// BlockHandle is the file offset and size of one block (spec §3).
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// Encode appends the varint-encoded handle to dst.
func (h BlockHandle) Encode(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	dst = binary.AppendUvarint(dst, h.Size)
	return dst
}

// DecodeBlockHandle reads a handle from the start of src, returning the
// handle and the number of bytes consumed.
func DecodeBlockHandle(src []byte) (BlockHandle, int, error) {
	off, n := binary.Uvarint(src)
	if n <= 0 {
		return BlockHandle{}, 0, errors.New("lsmtree: bad block handle offset")
	}
	size, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return BlockHandle{}, 0, errors.New("lsmtree: bad block handle size")
	}
	return BlockHandle{Offset: off, Size: size}, n + m, nil
}

// KeyedBlockHandle is a block handle paired with the largest key in the
// block it addresses (spec §3). Index blocks store these, sorted by
// EndKey.
type KeyedBlockHandle struct {
	EndKey []byte
	Handle BlockHandle
}
