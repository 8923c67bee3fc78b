// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines the primitive key and value types shared across the
// tree: user keys, sequence numbers, value kinds, and the internal key that
// combines them into the on-disk ordering unit.
package base

import (
	"bytes"

	"github.com/cockroachdb/errors"
)

// MaxUserKeyLen bounds a UserKey, per the data model (§3): non-empty,
// at most 65535 bytes so that its length always fits a varint16.
const MaxUserKeyLen = 65535

// SeqNum is a 64-bit monotonically increasing MVCC version identifier.
type SeqNum uint64

// SeqNumMax is the largest representable sequence number, used as the
// snapshot bound for "read everything committed so far".
const SeqNumMax = SeqNum(1<<64 - 1)

// ValueKind distinguishes a live value from the two tombstone variants.
type ValueKind uint8

const (
	// ValueKindSet marks a live key/value pair.
	ValueKindSet ValueKind = iota
	// ValueKindTombstone marks the key as deleted; it obscures every older
	// version of the same user key until it is evicted at the last level.
	ValueKindTombstone
	// ValueKindWeakTombstone cancels exactly one prior version of the key;
	// it never shadows more than its paired predecessor.
	ValueKindWeakTombstone
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindSet:
		return "set"
	case ValueKindTombstone:
		return "tombstone"
	case ValueKindWeakTombstone:
		return "weak-tombstone"
	default:
		return "unknown"
	}
}

// IsTombstone reports whether the kind is one of the two deletion markers.
func (k ValueKind) IsTombstone() bool {
	return k == ValueKindTombstone || k == ValueKindWeakTombstone
}

// Valid reports whether k is one of the known value kinds.
func (k ValueKind) Valid() bool {
	return k <= ValueKindWeakTombstone
}

// UserKey is an opaque, non-empty, bounded byte sequence.
type UserKey []byte

// Validate checks the bound from the data model (§3).
func (k UserKey) Validate() error {
	if len(k) == 0 {
		return errors.New("lsmtree: empty user key")
	}
	if len(k) > MaxUserKeyLen {
		return errors.Newf("lsmtree: user key exceeds %d bytes", MaxUserKeyLen)
	}
	return nil
}

// InternalKey is (user_key, seqno, value_type). Ordering is by user_key
// ascending, then seqno descending, so that the newest version of a key
// sorts first (§3).
type InternalKey struct {
	UserKey UserKey
	SeqNum  SeqNum
	Kind    ValueKind
}

// Compare orders two internal keys per the data model.
func Compare(cmp func(a, b []byte) int, a, b InternalKey) int {
	if c := cmp(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	// Descending seqno: larger seqno sorts first.
	switch {
	case a.SeqNum > b.SeqNum:
		return -1
	case a.SeqNum < b.SeqNum:
		return 1
	default:
		return 0
	}
}

// DefaultCompare is the natural lexicographic byte ordering used unless a
// tree is configured with a custom comparer.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// InternalValue is an internal key paired with its user value. Tombstones
// carry an empty value.
type InternalValue struct {
	Key   InternalKey
	Value []byte
}

// Size approximates the in-memory footprint of one internal value, used by
// the memtable to track its size for rotation decisions.
func (v InternalValue) Size() uint32 {
	return uint32(len(v.Key.UserKey) + len(v.Value) + 16)
}

// Comparer bundles the user-key ordering function used throughout a tree.
// A nil Comparer is equivalent to DefaultCompare.
type Comparer struct {
	Compare func(a, b []byte) int
	Name    string
}

// DefaultComparer is the comparer used when none is supplied.
var DefaultComparer = &Comparer{Compare: DefaultCompare, Name: "lsmtree.DefaultComparer"}

// EnsureDefaults returns c, or DefaultComparer if c is nil, following the
// pattern used throughout the teacher's Options types.
func (c *Comparer) EnsureDefaults() *Comparer {
	if c == nil {
		return DefaultComparer
	}
	if c.Compare == nil {
		c.Compare = DefaultCompare
	}
	return c
}
