// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
)

// BlobReference records, for one blob file referenced by a table, the
// bytes and item count attributed to it (spec §3, §4.13). Tables track
// reference lists rather than per-blob refcounts.
type BlobReference struct {
	BlobFileID uint64
	Bytes      uint64
	Items      uint64
}

// Meta is the table's metadata block contents (spec §4.5).
type Meta struct {
	TableID          uint64
	CreationTime     uint64
	VersionTag       uint32
	Compression      block.Compression
	TableType        uint8 // 0 = data table, 1 = blob-reference-only (reserved)
	ItemCount        uint64
	UniqueKeyCount   uint64
	TombstoneCount   uint64
	WeakTombCount    uint64
	FirstKey         []byte
	LastKey          []byte
	LowSeqNum        base.SeqNum
	HighSeqNum       base.SeqNum
	UncompressedSize uint64
	FileSize         uint64
	// FileChecksumLo is a 64-bit xxhash digest of every byte that
	// precedes the metadata block; the metadata block and the trailer are
	// not covered. The writer always leaves FileChecksumHi at zero.
	FileChecksumLo uint64
	FileChecksumHi uint64
	BlobRefs       []BlobReference
}

// Encode serializes the metadata block as an ordered sequence of
// length-prefixed fields (spec §4.5: "a small key-value table of
// strings", implemented here as a fixed-schema record for determinism).
func (m Meta) Encode() []byte {
	buf := make([]byte, 0, 256)
	buf = binary.AppendUvarint(buf, m.TableID)
	buf = binary.AppendUvarint(buf, m.CreationTime)
	buf = binary.AppendUvarint(buf, uint64(m.VersionTag))
	buf = append(buf, byte(m.Compression))
	buf = append(buf, m.TableType)
	buf = binary.AppendUvarint(buf, m.ItemCount)
	buf = binary.AppendUvarint(buf, m.UniqueKeyCount)
	buf = binary.AppendUvarint(buf, m.TombstoneCount)
	buf = binary.AppendUvarint(buf, m.WeakTombCount)
	buf = binary.AppendUvarint(buf, uint64(len(m.FirstKey)))
	buf = append(buf, m.FirstKey...)
	buf = binary.AppendUvarint(buf, uint64(len(m.LastKey)))
	buf = append(buf, m.LastKey...)
	buf = binary.AppendUvarint(buf, uint64(m.LowSeqNum))
	buf = binary.AppendUvarint(buf, uint64(m.HighSeqNum))
	buf = binary.AppendUvarint(buf, m.UncompressedSize)
	buf = binary.AppendUvarint(buf, m.FileSize)
	buf = binary.AppendUvarint(buf, m.FileChecksumLo)
	buf = binary.AppendUvarint(buf, m.FileChecksumHi)
	buf = binary.AppendUvarint(buf, uint64(len(m.BlobRefs)))
	for _, r := range m.BlobRefs {
		buf = binary.AppendUvarint(buf, r.BlobFileID)
		buf = binary.AppendUvarint(buf, r.Bytes)
		buf = binary.AppendUvarint(buf, r.Items)
	}
	return buf
}

// DecodeMeta parses a metadata block's payload.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	pos := 0
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return 0, errors.New("lsmtree: truncated metadata block")
		}
		pos += n
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		n, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if pos+int(n) > len(data) {
			return nil, errors.New("lsmtree: truncated metadata block")
		}
		b := data[pos : pos+int(n)]
		pos += int(n)
		return b, nil
	}
	var v uint64
	var err error
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.TableID = v
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.CreationTime = v
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.VersionTag = uint32(v)
	if pos+2 > len(data) {
		return m, errors.New("lsmtree: truncated metadata block")
	}
	m.Compression = block.Compression(data[pos])
	pos++
	m.TableType = data[pos]
	pos++
	for _, dst := range []*uint64{&m.ItemCount, &m.UniqueKeyCount, &m.TombstoneCount, &m.WeakTombCount} {
		if v, err = readUvarint(); err != nil {
			return m, err
		}
		*dst = v
	}
	if m.FirstKey, err = readBytes(); err != nil {
		return m, err
	}
	if m.LastKey, err = readBytes(); err != nil {
		return m, err
	}
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.LowSeqNum = base.SeqNum(v)
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.HighSeqNum = base.SeqNum(v)
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.UncompressedSize = v
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.FileSize = v
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.FileChecksumLo = v
	if v, err = readUvarint(); err != nil {
		return m, err
	}
	m.FileChecksumHi = v
	n, err := readUvarint()
	if err != nil {
		return m, err
	}
	m.BlobRefs = make([]BlobReference, n)
	for i := range m.BlobRefs {
		var id, bytes_, items uint64
		if id, err = readUvarint(); err != nil {
			return m, err
		}
		if bytes_, err = readUvarint(); err != nil {
			return m, err
		}
		if items, err = readUvarint(); err != nil {
			return m, err
		}
		m.BlobRefs[i] = BlobReference{BlobFileID: id, Bytes: bytes_, Items: items}
	}
	return m, nil
}
