// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

// TrailerSize is the fixed size, in bytes, of the table trailer (spec
// §4.5).
const TrailerSize = 128

// TableVersion is the trailer's version tag; an unknown value on open
// causes ErrInvalidVersion (spec §6).
const TableVersion = 1

// Trailer is the fixed-size footer at the end of every table file,
// holding the four top-level block handles and the file's magic/version.
type Trailer struct {
	TopLevelIndex    BlockHandle
	PartitionedIndex BlockHandle
	Filter           BlockHandle
	Metadata         BlockHandle
	Version          uint32
}

func fixedEncodeHandle(dst []byte, h BlockHandle) {
	binary.LittleEndian.PutUint64(dst[0:8], h.Offset)
	binary.LittleEndian.PutUint64(dst[8:16], h.Size)
}

func fixedDecodeHandle(src []byte) BlockHandle {
	return BlockHandle{
		Offset: binary.LittleEndian.Uint64(src[0:8]),
		Size:   binary.LittleEndian.Uint64(src[8:16]),
	}
}

// Encode serializes t into exactly TrailerSize bytes.
func (t Trailer) Encode() []byte {
	buf := make([]byte, TrailerSize)
	fixedEncodeHandle(buf[0:16], t.TopLevelIndex)
	fixedEncodeHandle(buf[16:32], t.PartitionedIndex)
	fixedEncodeHandle(buf[32:48], t.Filter)
	fixedEncodeHandle(buf[48:64], t.Metadata)
	binary.LittleEndian.PutUint32(buf[64:68], t.Version)
	copy(buf[68:72], base_magic[:])
	return buf
}

var base_magic = [4]byte{'L', 'S', 'M', 'T'}

// DecodeTrailer parses the last TrailerSize bytes of a table file.
func DecodeTrailer(raw []byte) (Trailer, error) {
	if len(raw) < TrailerSize {
		return Trailer{}, errors.New("lsmtree: file too small to contain a trailer")
	}
	buf := raw[len(raw)-TrailerSize:]
	if string(buf[68:72]) != string(base_magic[:]) {
		return Trailer{}, errors.New("lsmtree: bad table magic")
	}
	t := Trailer{
		TopLevelIndex:    fixedDecodeHandle(buf[0:16]),
		PartitionedIndex: fixedDecodeHandle(buf[16:32]),
		Filter:           fixedDecodeHandle(buf[32:48]),
		Metadata:         fixedDecodeHandle(buf[48:64]),
		Version:          binary.LittleEndian.Uint32(buf[64:68]),
	}
	if t.Version != TableVersion {
		return Trailer{}, errors.Wrapf(base.ErrInvalidVersion, "table version %d", t.Version)
	}
	return t, nil
}
