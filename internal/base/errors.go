// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// Sentinel errors surfaced by the read/write paths (spec §7's error
// taxonomy, minus Invariant errors which panic rather than propagate).
var (
	// ErrNotFound is returned internally by point-lookup helpers; the tree
	// facade translates it into an "absent" result rather than propagating
	// it to callers.
	ErrNotFound = errors.New("lsmtree: not found")

	// ErrCorrupt marks a block or table that failed a checksum or decode
	// check. Once returned, the table should be treated as corrupt.
	ErrCorrupt = errors.New("lsmtree: corruption detected")

	// ErrInvalidVersion is returned when a trailer's version tag is not
	// recognized by this build (spec §6, compatibility).
	ErrInvalidVersion = errors.New("lsmtree: invalid version")

	// ErrClosed is returned by operations on a closed tree, table, or file.
	ErrClosed = errors.New("lsmtree: use of closed object")
)

// CorruptionError wraps ErrCorrupt with context about where the corruption
// was detected, mirroring how pebble's sstable reader annotates checksum
// failures with the offending block's location.
type CorruptionError struct {
	Where string
	Cause error
}

func (e *CorruptionError) Error() string {
	if e.Cause != nil {
		return "lsmtree: corruption in " + e.Where + ": " + e.Cause.Error()
	}
	return "lsmtree: corruption in " + e.Where
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

// NewCorruptionError constructs a CorruptionError, wrapping cause for
// %+v-style stack capture via cockroachdb/errors.
func NewCorruptionError(where string, cause error) error {
	return errors.WithStack(&CorruptionError{Where: where, Cause: cause})
}
