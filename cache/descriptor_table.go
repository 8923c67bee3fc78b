// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cache

import (
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FileTag distinguishes a table's descriptor from a blob file's.
type FileTag uint8

const (
	FileTagTable FileTag = iota
	FileTagBlob
)

// DescriptorKey identifies one cached open file handle (spec §4.6,
// "keyed by (tag: table|blob, tree_id, id)").
type DescriptorKey struct {
	Tag    FileTag
	TreeID uint64
	FileID uint64
}

// DescriptorTable caches open file handles with a bounded capacity;
// eviction closes the handle (spec §4.6). Backed by
// hashicorp/golang-lru/v2, the same library the block cache uses,
// matching the teacher pack's preference for one LRU implementation
// reused across cache-shaped components.
type DescriptorTable struct {
	mu      sync.Mutex
	handles *lru.Cache[DescriptorKey, io.Closer]
}

// NewDescriptorTable creates a DescriptorTable bounded to capacity open
// handles.
func NewDescriptorTable(capacity int) *DescriptorTable {
	d := &DescriptorTable{}
	handles, err := lru.NewWithEvict[DescriptorKey, io.Closer](capacity, func(_ DescriptorKey, v io.Closer) {
		_ = v.Close()
	})
	if err != nil {
		panic(err)
	}
	d.handles = handles
	return d
}

// Get returns the cached handle for key, opening and inserting one via
// open if absent (spec §4.6, "A missing entry is materialized by opening
// the file at the known on-disk path and inserting").
func (d *DescriptorTable) Get(key DescriptorKey, open func() (io.Closer, error)) (io.Closer, error) {
	d.mu.Lock()
	if v, ok := d.handles.Get(key); ok {
		d.mu.Unlock()
		return v, nil
	}
	d.mu.Unlock()

	v, err := open()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.handles.Get(key); ok {
		// Lost a race with a concurrent opener; keep the winner's handle
		// and close the one this call just opened.
		_ = v.Close()
		return existing, nil
	}
	d.handles.Add(key, v)
	return v, nil
}

// Evict closes and removes key's handle, if present, called when a table
// or blob file is physically deleted.
func (d *DescriptorTable) Evict(key DescriptorKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles.Remove(key)
}
