// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/blob"
)

// valueTag distinguishes an inline value from an indirection into a blob
// file, prefixed onto every value a table or the memtable stores (spec
// §4.13, "the table stores an indirection: { blob_file_id,
// offset_in_blob_file, value_size }").
type valueTag byte

const (
	valueTagInline valueTag = iota
	valueTagIndirect
)

// EncodeInlineValue tags raw as an inline value. Every value handed to a
// Writer is expected to already carry a tag, produced by either this
// function or EncodeIndirectValue, so that a later compaction can tell
// the two apart without consulting the source table's policy.
func EncodeInlineValue(raw []byte) []byte {
	out := make([]byte, 1+len(raw))
	out[0] = byte(valueTagInline)
	copy(out[1:], raw)
	return out
}

// EncodeIndirectValue encodes a blob.Handle as a tagged indirection
// value.
func EncodeIndirectValue(h blob.Handle) []byte {
	out := make([]byte, 1, 1+3*binary.MaxVarintLen64)
	out[0] = byte(valueTagIndirect)
	out = binary.AppendUvarint(out, h.FileID)
	out = binary.AppendUvarint(out, h.OffsetBytes)
	out = binary.AppendUvarint(out, uint64(h.ValueSize))
	return out
}

// DecodedValue is the result of inspecting one tagged value.
type DecodedValue struct {
	Inline []byte      // set when Ref is nil
	Ref    *blob.Handle // set when the value is an indirection
}

// DecodeValue reverses EncodeInlineValue/EncodeIndirectValue.
func DecodeValue(raw []byte) (DecodedValue, error) {
	if len(raw) == 0 {
		return DecodedValue{}, errors.New("lsmtree: empty tagged value")
	}
	switch valueTag(raw[0]) {
	case valueTagInline:
		return DecodedValue{Inline: raw[1:]}, nil
	case valueTagIndirect:
		rest := raw[1:]
		fileID, n := binary.Uvarint(rest)
		if n <= 0 {
			return DecodedValue{}, errors.New("lsmtree: truncated indirect value: file id")
		}
		rest = rest[n:]
		offset, n := binary.Uvarint(rest)
		if n <= 0 {
			return DecodedValue{}, errors.New("lsmtree: truncated indirect value: offset")
		}
		rest = rest[n:]
		size, n := binary.Uvarint(rest)
		if n <= 0 {
			return DecodedValue{}, errors.New("lsmtree: truncated indirect value: size")
		}
		h := blob.Handle{FileID: fileID, OffsetBytes: offset, ValueSize: uint32(size)}
		return DecodedValue{Ref: &h}, nil
	default:
		return DecodedValue{}, errors.Newf("lsmtree: unknown value tag %d", raw[0])
	}
}
