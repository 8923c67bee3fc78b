// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blob implements the key/value separation sidecar (spec §4.13):
// blob files holding large values external to the LSM tree, the
// indirections tables use to point into them, and the fragmentation
// bookkeeping that drives garbage collection.
package blob

// Handle is the indirection a table stores in place of an inlined value
// once it has been separated into a blob file (spec §4.13): the blob
// file's id, the byte offset of the blob's record within that file, and
// the value's length, so a reader can size its buffer before reading.
type Handle struct {
	FileID      uint64
	OffsetBytes uint64
	ValueSize   uint32
}
