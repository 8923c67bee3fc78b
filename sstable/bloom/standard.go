// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bloom

// standardPositions derives the k bit positions for a standard Bloom
// filter from one 64-bit hash using double hashing: h1 is the primary
// hash, h2 is a secondary hash derived from it, and position i is
// (h1 + i*h2) mod m (spec §4.4).
func standardPositions(h uint64, m uint64, k uint32, yield func(pos uint64)) {
	h1 := h
	h2 := (h >> 32) | (h << 32)
	for i := uint32(0); i < k; i++ {
		yield((h1 + uint64(i)*h2) % m)
	}
}

func standardSet(bits []byte, m uint64, k uint32, h uint64) {
	standardPositions(h, m, k, func(pos uint64) {
		bits[pos/8] |= 1 << (pos % 8)
	})
}

func standardContains(bits []byte, m uint64, k uint32, h uint64) bool {
	found := true
	standardPositions(h, m, k, func(pos uint64) {
		if bits[pos/8]&(1<<(pos%8)) == 0 {
			found = false
		}
	})
	return found
}

// StandardBuilder accumulates key hashes and produces a standard Bloom
// filter sized for the expected item count.
type StandardBuilder struct {
	m, k uint64
	kk   uint32
	bits []byte
}

// NewStandardBuilder allocates a builder sized to hold expectedItems at
// fpr false-positive rate.
func NewStandardBuilder(expectedItems int, fpr float64) *StandardBuilder {
	m, k := Size(expectedItems, fpr)
	return &StandardBuilder{m: m, kk: k, bits: make([]byte, m/8)}
}

// Insert records the hash of one key.
func (b *StandardBuilder) Insert(h uint64) {
	standardSet(b.bits, b.m, b.kk, h)
}

// Finish returns the built filter.
func (b *StandardBuilder) Finish() *Filter {
	return &Filter{Type: FilterTypeStandard, M: b.m, K: b.kk, Bits: b.bits}
}
