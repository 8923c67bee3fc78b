// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// TrailerSize is the fixed size, in bytes, of a block trailer. The trailer
// is never compressed and sits immediately after the (possibly compressed)
// payload (spec §4.1).
const TrailerSize = 4 + 4 + 4 + 4 + 1 + 4 + 4

// Trailer records item count, restart interval, and the location of the
// binary and (optional) hash indices within the decompressed payload.
type Trailer struct {
	ItemCount         uint32
	RestartInterval   uint32
	BinaryIndexOffset uint32
	BinaryIndexLength uint32
	// BinaryIndexStep is 2 or 4, the byte width of each binary index entry.
	BinaryIndexStep   uint8
	HashIndexOffset   uint32
	HashIndexLength   uint32
}

// Encode writes t into dst, which must have at least TrailerSize bytes.
func (t Trailer) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], t.ItemCount)
	binary.LittleEndian.PutUint32(dst[4:8], t.RestartInterval)
	binary.LittleEndian.PutUint32(dst[8:12], t.BinaryIndexOffset)
	binary.LittleEndian.PutUint32(dst[12:16], t.BinaryIndexLength)
	dst[16] = t.BinaryIndexStep
	binary.LittleEndian.PutUint32(dst[17:21], t.HashIndexOffset)
	binary.LittleEndian.PutUint32(dst[21:25], t.HashIndexLength)
}

// DecodeTrailer reads a Trailer from the last TrailerSize bytes of src.
func DecodeTrailer(src []byte) (Trailer, error) {
	if len(src) < TrailerSize {
		return Trailer{}, errors.New("lsmtree: truncated block trailer")
	}
	src = src[len(src)-TrailerSize:]
	t := Trailer{
		ItemCount:         binary.LittleEndian.Uint32(src[0:4]),
		RestartInterval:   binary.LittleEndian.Uint32(src[4:8]),
		BinaryIndexOffset: binary.LittleEndian.Uint32(src[8:12]),
		BinaryIndexLength: binary.LittleEndian.Uint32(src[12:16]),
		BinaryIndexStep:   src[16],
		HashIndexOffset:   binary.LittleEndian.Uint32(src[17:21]),
		HashIndexLength:   binary.LittleEndian.Uint32(src[21:25]),
	}
	if t.BinaryIndexStep != 2 && t.BinaryIndexStep != 4 {
		return Trailer{}, errors.Newf("lsmtree: bad binary index step %d", t.BinaryIndexStep)
	}
	return t, nil
}

// BinaryIndexBuilder accumulates restart-head offsets and emits a
// monotonically ascending array, 2 or 4 bytes per entry depending on
// whether every offset fits in 16 bits (spec §4.1).
type BinaryIndexBuilder struct {
	offsets []uint32
}

// Add records the offset (within the uncompressed payload) of one restart
// head.
func (b *BinaryIndexBuilder) Add(offset uint32) {
	b.offsets = append(b.offsets, offset)
}

// Len returns the number of restart heads recorded so far.
func (b *BinaryIndexBuilder) Len() int { return len(b.offsets) }

// Finish appends the encoded binary index to dst and returns the new slice
// along with the step size used (2 or 4).
func (b *BinaryIndexBuilder) Finish(dst []byte) ([]byte, uint8) {
	step := uint8(2)
	for _, off := range b.offsets {
		if off > 0xFFFF {
			step = 4
			break
		}
	}
	if step == 2 {
		for _, off := range b.offsets {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(off))
		}
	} else {
		for _, off := range b.offsets {
			dst = binary.LittleEndian.AppendUint32(dst, off)
		}
	}
	return dst, step
}

// BinaryIndex is a read-only view over an encoded binary index.
type BinaryIndex struct {
	data []byte
	step uint8
	n    int
}

// NewBinaryIndex wraps the raw encoded bytes (t.BinaryIndexOffset length
// region of the decompressed payload).
func NewBinaryIndex(data []byte, step uint8) BinaryIndex {
	n := 0
	if step > 0 {
		n = len(data) / int(step)
	}
	return BinaryIndex{data: data, step: step, n: n}
}

// Len returns the number of restart heads.
func (bi BinaryIndex) Len() int { return bi.n }

// Get returns the payload offset of the i'th restart head.
func (bi BinaryIndex) Get(i int) uint32 {
	if bi.step == 2 {
		return uint32(binary.LittleEndian.Uint16(bi.data[i*2 : i*2+2]))
	}
	return binary.LittleEndian.Uint32(bi.data[i*4 : i*4+4])
}

// Search returns the index of the largest restart head whose key is <=
// needle, using the supplied key-at function to fetch each head's key, or
// -1 if needle is smaller than every restart head's key.
func (bi BinaryIndex) Search(needle []byte, keyAt func(i int) []byte, cmp func(a, b []byte) int) int {
	n := bi.n
	idx := sort.Search(n, func(i int) bool {
		return cmp(keyAt(i), needle) > 0
	})
	return idx - 1
}

// Hash index bucket markers (spec §4.1).
const (
	HashIndexMarkerFree     = 254
	HashIndexMarkerConflict = 255
	// hashIndexMaxRestarts bounds how many restart heads a hash index can
	// address: the restart-head index must fit in a byte excluding the two
	// reserved markers.
	hashIndexMaxRestarts = 254
)

// HashIndexBuilder builds the optional per-block hash index: B buckets
// mapping xxhash(key) mod B to a restart-head index, or a conflict marker.
type HashIndexBuilder struct {
	buckets []byte
}

// NewHashIndexBuilder allocates a hash index with the given bucket count,
// all initialized to HashIndexMarkerFree.
func NewHashIndexBuilder(bucketCount int) *HashIndexBuilder {
	b := &HashIndexBuilder{buckets: make([]byte, bucketCount)}
	for i := range b.buckets {
		b.buckets[i] = HashIndexMarkerFree
	}
	return b
}

// CanIndex reports whether restartHeadCount restart heads can be addressed
// by a hash index (capacity constraint, spec §4.1).
func CanIndex(restartHeadCount int) bool {
	return restartHeadCount <= hashIndexMaxRestarts
}

// Insert records that key hashes into the bucket owned by restart head
// restartIdx. A conflicting write marks the bucket MARKER_CONFLICT.
func (b *HashIndexBuilder) Insert(key []byte, restartIdx int) {
	i := int(xxhash.Sum64(key) % uint64(len(b.buckets)))
	cur := b.buckets[i]
	switch cur {
	case HashIndexMarkerFree:
		b.buckets[i] = byte(restartIdx)
	case HashIndexMarkerConflict:
		// Already unusable; leave it.
	default:
		if int(cur) != restartIdx {
			b.buckets[i] = HashIndexMarkerConflict
		}
	}
}

// Finish appends the encoded bucket array to dst.
func (b *HashIndexBuilder) Finish(dst []byte) []byte {
	return append(dst, b.buckets...)
}

// HashIndex is a read-only view over an encoded hash index.
type HashIndex struct {
	buckets []byte
}

// NewHashIndex wraps the raw bucket bytes.
func NewHashIndex(data []byte) HashIndex { return HashIndex{buckets: data} }

// BucketCount reports the number of buckets, 0 if no hash index is
// present.
func (hi HashIndex) BucketCount() int { return len(hi.buckets) }

// Lookup returns (restartIdx, ok, conflict). ok is false when the bucket is
// MARKER_FREE (definitively absent from the block); conflict is true when
// the caller must fall back to binary search.
func (hi HashIndex) Lookup(key []byte) (restartIdx int, ok bool, conflict bool) {
	if len(hi.buckets) == 0 {
		return 0, false, true
	}
	i := int(xxhash.Sum64(key) % uint64(len(hi.buckets)))
	v := hi.buckets[i]
	switch v {
	case HashIndexMarkerFree:
		return 0, false, false
	case HashIndexMarkerConflict:
		return 0, false, true
	default:
		return int(v), true, false
	}
}
