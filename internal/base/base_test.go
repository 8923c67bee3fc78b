// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "testing"

func TestInternalKeyOrderingDescendingSeqno(t *testing.T) {
	a := InternalKey{UserKey: UserKey("a"), SeqNum: 5}
	b := InternalKey{UserKey: UserKey("a"), SeqNum: 3}
	if Compare(DefaultCompare, a, b) >= 0 {
		t.Fatalf("a newer version of the same user key should sort first")
	}
	if Compare(DefaultCompare, b, a) <= 0 {
		t.Fatalf("ordering should be antisymmetric")
	}
}

func TestInternalKeyOrderingByUserKey(t *testing.T) {
	a := InternalKey{UserKey: UserKey("a"), SeqNum: 1}
	b := InternalKey{UserKey: UserKey("b"), SeqNum: 100}
	if Compare(DefaultCompare, a, b) >= 0 {
		t.Fatalf("user key ordering should take priority over seqno")
	}
}

func TestUserKeyValidate(t *testing.T) {
	if err := UserKey("").Validate(); err == nil {
		t.Fatalf("empty user key should be invalid")
	}
	if err := UserKey("ok").Validate(); err != nil {
		t.Fatalf("non-empty user key within bounds should validate: %v", err)
	}
	oversized := make([]byte, MaxUserKeyLen+1)
	if err := UserKey(oversized).Validate(); err == nil {
		t.Fatalf("oversized user key should be invalid")
	}
}

func TestValueKindIsTombstone(t *testing.T) {
	if ValueKindSet.IsTombstone() {
		t.Fatalf("a live value is not a tombstone")
	}
	if !ValueKindTombstone.IsTombstone() || !ValueKindWeakTombstone.IsTombstone() {
		t.Fatalf("both tombstone kinds should report IsTombstone")
	}
}

func TestComparerEnsureDefaults(t *testing.T) {
	var c *Comparer
	got := c.EnsureDefaults()
	if got != DefaultComparer {
		t.Fatalf("a nil Comparer should ensure to DefaultComparer")
	}

	custom := &Comparer{Name: "custom"}
	got = custom.EnsureDefaults()
	if got.Compare == nil {
		t.Fatalf("EnsureDefaults should fill in a Compare function")
	}
}

func TestCorruptionErrorUnwrapsToErrCorrupt(t *testing.T) {
	err := NewCorruptionError("block 3", nil)
	if !isErrCorrupt(err) {
		t.Fatalf("NewCorruptionError should unwrap to ErrCorrupt")
	}
}

func isErrCorrupt(err error) bool {
	for err != nil {
		if err == ErrCorrupt {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
