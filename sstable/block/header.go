// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// Magic identifies this engine's blocks and table trailers on disk (spec
// §6, compatibility). Every block begins with it.
var Magic = [4]byte{'L', 'S', 'M', 'T'}

// HeaderSize is the fixed size, in bytes, of a block header.
const HeaderSize = 4 /*magic*/ + 1 /*compression*/ + 1 /*level*/ + 8 /*checksum*/ + 8 /*prev offset*/ + 4 /*data len*/ + 4 /*uncompressed len*/

// Header precedes the (possibly compressed) payload of every block.
type Header struct {
	Compression      Compression
	CompressionLevel uint8
	Checksum         uint64
	// PreviousBlockOffset back-links data blocks within a table so a
	// reverse scan can walk blocks without consulting the index.
	PreviousBlockOffset uint64
	DataLength          uint32
	UncompressedLength  uint32
}

// Encode writes h into dst, which must have at least HeaderSize bytes.
func (h Header) Encode(dst []byte) {
	copy(dst[0:4], Magic[:])
	dst[4] = byte(h.Compression)
	dst[5] = h.CompressionLevel
	binary.LittleEndian.PutUint64(dst[6:14], h.Checksum)
	binary.LittleEndian.PutUint64(dst[14:22], h.PreviousBlockOffset)
	binary.LittleEndian.PutUint32(dst[22:26], h.DataLength)
	binary.LittleEndian.PutUint32(dst[26:30], h.UncompressedLength)
}

// DecodeHeader reads a Header from the start of src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, errors.New("lsmtree: truncated block header")
	}
	if string(src[0:4]) != string(Magic[:]) {
		return Header{}, errors.New("lsmtree: bad block magic")
	}
	h := Header{
		Compression:         Compression(src[4]),
		CompressionLevel:    src[5],
		Checksum:            binary.LittleEndian.Uint64(src[6:14]),
		PreviousBlockOffset: binary.LittleEndian.Uint64(src[14:22]),
		DataLength:          binary.LittleEndian.Uint32(src[22:26]),
		UncompressedLength:  binary.LittleEndian.Uint32(src[26:30]),
	}
	if !h.Compression.Valid() {
		return Header{}, errors.Newf("lsmtree: unknown compression tag %d", h.Compression)
	}
	return h, nil
}

// Checksum64 computes the checksum the spec calls for over an uncompressed
// payload: a 64-bit xxhash digest (standing in for xxh3, see SPEC_FULL.md).
func Checksum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}
