// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import "github.com/fjall-rs/lsm-tree-sub003/internal/base"

// FilterDecision is a compaction filter's verdict on one surviving item
// (spec §4.12 step 4).
type FilterDecision uint8

const (
	// Keep emits the item unchanged.
	Keep FilterDecision = iota
	// Remove logically deletes the item: nothing is emitted, and the key
	// is treated as absent from this level onward (spec §4.12, "suitable
	// for compacting away expired/TTL'd items").
	Remove
	// Destroy drops the item without emitting a replacement tombstone,
	// valid only when no older version could still be shadowed by its
	// absence (spec §4.12, "used only when there is no older version to
	// shadow").
	Destroy
)

// Filter is an injectable policy applied to every item a compaction
// would otherwise emit (spec §4.12 step 4).
type Filter interface {
	Decide(key base.InternalKey, value []byte) FilterDecision
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(key base.InternalKey, value []byte) FilterDecision

// Decide implements Filter.
func (f FilterFunc) Decide(key base.InternalKey, value []byte) FilterDecision {
	return f(key, value)
}
