// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bloom

// blockedBlockIndex folds the high 32 bits of the primary hash to choose
// one of blockCount 64-byte blocks (spec §4.4).
func blockedBlockIndex(h uint64, blockCount uint64) uint64 {
	hi := h >> 32
	return (hi * blockCount) >> 32
}

func blockedPositions(h uint64, blockCount uint64, k uint32, yield func(blockIdx uint64, bitInBlock uint32)) {
	blk := blockedBlockIndex(h, blockCount)
	h1 := h
	h2 := (h >> 16) | (h << 48)
	for i := uint32(0); i < k; i++ {
		pos := uint32((h1 + uint64(i)*h2) % blockBits)
		yield(blk, pos)
	}
}

func blockedSet(bits []byte, blockCount uint64, k uint32, h uint64) {
	blockedPositions(h, blockCount, k, func(blk uint64, pos uint32) {
		byteOff := blk*64 + uint64(pos/8)
		bits[byteOff] |= 1 << (pos % 8)
	})
}

func blockedContains(bits []byte, m uint64, k uint32, h uint64) bool {
	blockCount := m / blockBits
	if blockCount == 0 {
		blockCount = 1
	}
	found := true
	blockedPositions(h, blockCount, k, func(blk uint64, pos uint32) {
		byteOff := blk*64 + uint64(pos/8)
		if byteOff >= uint64(len(bits)) || bits[byteOff]&(1<<(pos%8)) == 0 {
			found = false
		}
	})
	return found
}

// BlockedBuilder accumulates key hashes into a cache-line-partitioned
// Bloom filter. It inflates the bit budget relative to a standard filter
// of the same item count and target FPR to compensate for the accuracy
// loss intrinsic to blocked filters (spec §4.4).
type BlockedBuilder struct {
	m, blockCount uint64
	k             uint32
	bits          []byte
}

// NewBlockedBuilder allocates a builder sized to hold expectedItems at fpr
// false-positive rate, inflated for the blocked layout.
func NewBlockedBuilder(expectedItems int, fpr float64) *BlockedBuilder {
	m, k := Size(expectedItems, fpr)
	m = uint64(float64(m) * blockInflation(fpr))
	// Round up to a whole number of 64-byte (512-bit) blocks.
	blockCount := (m + blockBits - 1) / blockBits
	if blockCount == 0 {
		blockCount = 1
	}
	m = blockCount * blockBits
	return &BlockedBuilder{m: m, blockCount: blockCount, k: k, bits: make([]byte, m/8)}
}

// Insert records the hash of one key.
func (b *BlockedBuilder) Insert(h uint64) {
	blockedSet(b.bits, b.blockCount, b.k, h)
}

// Finish returns the built filter.
func (b *BlockedBuilder) Finish() *Filter {
	return &Filter{Type: FilterTypeBlocked, M: b.m, K: b.k, Bits: b.bits}
}
