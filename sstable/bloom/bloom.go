// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bloom implements the two approximate-membership filter variants
// used by tables: a standard Bloom filter with double-hashing, and a
// blocked (cache-line-partitioned) Bloom filter (spec §4.4).
package bloom

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// FilterType tags which variant a filter block encodes.
type FilterType uint8

const (
	// FilterTypeStandard is the classic double-hashed Bloom filter.
	FilterTypeStandard FilterType = 0
	// FilterTypeBlocked partitions the bit array into 64-byte blocks.
	FilterTypeBlocked FilterType = 1
)

// Magic identifies a filter block, mirroring the table-wide magic but
// scoped to this block type (spec §4.4: "the filter encoding begins with
// the engine's magic bytes").
var Magic = [4]byte{'L', 'S', 'M', 'F'}

// Hash64 computes the primary key hash filters are built and queried with.
func Hash64(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// blockBits is the size, in bits, of one cache-line block in the blocked
// variant (64 bytes = 512 bits).
const blockBits = 64 * 8

// Size computes (m bits rounded up to a byte multiple, k hash functions)
// for a standard Bloom filter sized to hold n items at the target false
// positive rate (spec §4.4).
func Size(n int, fpr float64) (m uint64, k uint32) {
	if n <= 0 {
		n = 1
	}
	if fpr <= 0 {
		fpr = 0.01
	}
	mf := -float64(n) * math.Log(fpr) / (math.Ln2 * math.Ln2)
	m = uint64(math.Ceil(mf/8)) * 8
	if m == 0 {
		m = 8
	}
	k = uint32(math.Floor((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return m, k
}

// blockInflation returns the fractional bits-per-key inflation applied to
// the blocked variant to offset its well-known accuracy loss relative to a
// standard filter at the same nominal size (spec §4.4: 5%-25% depending on
// target FPR).
func blockInflation(fpr float64) float64 {
	switch {
	case fpr <= 0.01:
		return 1.25
	case fpr <= 0.02:
		return 1.15
	default:
		return 1.05
	}
}

// Filter is a built, queryable approximate-membership filter.
type Filter struct {
	Type FilterType
	M    uint64
	K    uint32
	Bits []byte
}

// ContainsHash reports whether h may have been inserted. A false result is
// definitive; a true result may be a false positive (spec §4.4, §8.6).
func (f *Filter) ContainsHash(h uint64) bool {
	if f == nil || len(f.Bits) == 0 {
		return true
	}
	switch f.Type {
	case FilterTypeStandard:
		return standardContains(f.Bits, f.M, f.K, h)
	case FilterTypeBlocked:
		return blockedContains(f.Bits, f.M, f.K, h)
	default:
		return true
	}
}

// Encode serializes the filter: magic, type tag, m, k, and the raw bit
// array (spec §4.4).
func (f *Filter) Encode() []byte {
	out := make([]byte, 0, 4+1+8+4+len(f.Bits))
	out = append(out, Magic[:]...)
	out = append(out, byte(f.Type))
	out = appendUint64(out, f.M)
	out = appendUint32(out, f.K)
	out = append(out, f.Bits...)
	return out
}

// Decode parses a filter previously produced by Encode.
func Decode(data []byte) (*Filter, error) {
	if len(data) < 4+1+8+4 {
		return nil, errors.New("lsmtree: truncated filter block")
	}
	if string(data[0:4]) != string(Magic[:]) {
		return nil, errors.New("lsmtree: bad filter magic")
	}
	typ := FilterType(data[4])
	if typ != FilterTypeStandard && typ != FilterTypeBlocked {
		return nil, errors.Newf("lsmtree: unknown filter type %d", typ)
	}
	m := readUint64(data[5:13])
	k := readUint32(data[13:17])
	bits := data[17:]
	return &Filter{Type: typ, M: m, K: k, Bits: bits}, nil
}

func appendUint64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func readUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
