// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package cache implements the shared block cache and the descriptor
// table (open file handle cache), both bounded, approximate-LRU caches
// (spec §4.6).
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Tag distinguishes what kind of block a BlockKey names.
type Tag uint8

const (
	TagData Tag = iota
	TagIndex
	TagFilter
)

// BlockKey identifies one cached block (spec §4.6: "keys entries by
// (tag, tree_id, table_id, block_offset)").
type BlockKey struct {
	Tag      Tag
	TreeID   uint64
	TableID  uint64
	Offset   uint64
}

// BlockCache is a shared, bounded, weighted (approximate LRU) cache of
// decompressed block bytes (spec §4.6). hashicorp/golang-lru/v2 provides
// the underlying recency-ordered eviction primitive, which is count-
// bounded rather than byte-bounded; weight tracking is layered on top by
// repeatedly evicting the least-recently-used entry via RemoveOldest
// until the tracked byte budget is restored, approximating a weighted
// LRU with the pack's available LRU library. See DESIGN.md.
type BlockCache struct {
	mu            sync.Mutex
	entries       *lru.Cache[BlockKey, []byte]
	capacityBytes uint64
	usedBytes     uint64
}

// NewBlockCache creates a BlockCache bounded to capacityBytes.
func NewBlockCache(capacityBytes uint64) *BlockCache {
	c := &BlockCache{capacityBytes: capacityBytes}
	// The count bound passed to golang-lru is a safety backstop (it must
	// be a positive int); the real bound is enforced by evictUntilFits.
	entries, err := lru.NewWithEvict[BlockKey, []byte](1<<20, func(_ BlockKey, v []byte) {
		c.usedBytes -= uint64(len(v))
	})
	if err != nil {
		// lru.New only errors on a non-positive size, which 1<<20 never is.
		panic(err)
	}
	c.entries = entries
	return c
}

// GetRead implements the Read cache policy (spec §4.6): consult the
// cache, but never insert on miss.
func (c *BlockCache) GetRead(key BlockKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

// GetOrInsertWrite implements the Write cache policy (spec §4.6): consult
// the cache, and on miss call load and insert its result.
func (c *BlockCache) GetOrInsertWrite(key BlockKey, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := load()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, v)
	c.usedBytes += uint64(len(v))
	c.evictUntilFits()
	return v, nil
}

// evictUntilFits pops the least-recently-used entry until usedBytes is
// back within capacityBytes. Must be called with c.mu held.
func (c *BlockCache) evictUntilFits() {
	for c.usedBytes > c.capacityBytes {
		_, _, ok := c.entries.RemoveOldest()
		if !ok {
			return
		}
	}
}

// Remove evicts key if present, used when a table is dropped so its
// blocks don't linger.
func (c *BlockCache) Remove(key BlockKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// UsedBytes returns the cache's current tracked weight.
func (c *BlockCache) UsedBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}
