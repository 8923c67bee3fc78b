// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import (
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

// sliceSource is a minimal forward-and-backward Source over an
// already-sorted (by internal key, descending seqno within a user key)
// slice, used to exercise the Merger and MvccStream without depending on
// memtable/sstable.
type sliceSource struct {
	items []mvccItem
	idx   int
}

func src(pairs ...[3]interface{}) *sliceSource {
	s := &sliceSource{idx: -1}
	for _, p := range pairs {
		s.items = append(s.items, mvccItem{
			key:   base.InternalKey{UserKey: base.UserKey(p[0].(string)), SeqNum: base.SeqNum(p[1].(int)), Kind: p[2].(base.ValueKind)},
			value: []byte(p[0].(string)),
		})
	}
	return s
}

func (s *sliceSource) Next() (bool, error) {
	s.idx++
	return s.idx < len(s.items), nil
}
func (s *sliceSource) Prev() (bool, error) {
	s.idx--
	return s.idx >= 0, nil
}
func (s *sliceSource) Last() (bool, error) {
	s.idx = len(s.items) - 1
	return s.idx >= 0, nil
}
func (s *sliceSource) Valid() bool              { return s.idx >= 0 && s.idx < len(s.items) }
func (s *sliceSource) Key() base.InternalKey    { return s.items[s.idx].key }
func (s *sliceSource) Value() []byte            { return s.items[s.idx].value }

func firstPositioned(s *sliceSource) *sliceSource {
	s.Next()
	return s
}

func TestMergerOrdersByUserKeyThenDescendingSeqno(t *testing.T) {
	a := firstPositioned(src([3]interface{}{"b", 1, base.ValueKindSet}, [3]interface{}{"d", 1, base.ValueKindSet}))
	b := firstPositioned(src([3]interface{}{"a", 1, base.ValueKindSet}, [3]interface{}{"b", 3, base.ValueKindSet}, [3]interface{}{"c", 1, base.ValueKindSet}))

	m := New(base.DefaultCompare, []Source{a, b})
	var order []string
	var seqs []base.SeqNum
	for {
		ok, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		order = append(order, string(m.Key().UserKey))
		seqs = append(seqs, m.Key().SeqNum)
	}
	want := []string{"a", "b", "b", "c", "d"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	// "b" at seqno 3 must come before "b" at seqno 1 (descending seqno).
	if seqs[1] != 3 || seqs[2] != 1 {
		t.Fatalf("expected b@3 before b@1, got seqnos %v for %v", seqs, order)
	}
}

func TestMergerNextBack(t *testing.T) {
	a := firstPositioned(src([3]interface{}{"a", 1, base.ValueKindSet}, [3]interface{}{"c", 1, base.ValueKindSet}))
	b := firstPositioned(src([3]interface{}{"b", 1, base.ValueKindSet}))

	m := New(base.DefaultCompare, []Source{a, b})
	var order []string
	for {
		ok, err := m.NextBack()
		if err != nil {
			t.Fatalf("NextBack: %v", err)
		}
		if !ok {
			break
		}
		order = append(order, string(m.BackKey().UserKey))
	}
	want := []string{"c", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func mkSource(entries ...[3]interface{}) Source {
	return firstPositioned(src(entries...))
}

func TestMvccStreamCollapsesBelowWatermark(t *testing.T) {
	// Key "a" has three versions: 5, 3, 1. Watermark = 3: versions above
	// 3 survive individually (5), and only the newest version <= 3
	// survives (3), dropping 1.
	s := mkSource(
		[3]interface{}{"a", 5, base.ValueKindSet},
		[3]interface{}{"a", 3, base.ValueKindSet},
		[3]interface{}{"a", 1, base.ValueKindSet},
	)
	m := New(base.DefaultCompare, []Source{s})
	stream := NewMvccStream(base.DefaultCompare, m, Options{GCSeqnoWatermark: 3})

	var seqnos []base.SeqNum
	for {
		ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seqnos = append(seqnos, stream.Key().SeqNum)
	}
	if len(seqnos) != 2 || seqnos[0] != 5 || seqnos[1] != 3 {
		t.Fatalf("got seqnos %v, want [5 3]", seqnos)
	}
}

func TestMvccStreamPairsWeakTombstone(t *testing.T) {
	// seqno 5 is a weak tombstone that cancels seqno 3.
	s := mkSource(
		[3]interface{}{"a", 5, base.ValueKindWeakTombstone},
		[3]interface{}{"a", 3, base.ValueKindSet},
	)
	m := New(base.DefaultCompare, []Source{s})
	stream := NewMvccStream(base.DefaultCompare, m, Options{GCSeqnoWatermark: 0})

	ok, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("both the weak tombstone and its predecessor should be dropped, got one survivor: %v", stream.Key())
	}
}

func TestMvccStreamRetainsUnpairedWeakTombstone(t *testing.T) {
	s := mkSource([3]interface{}{"a", 5, base.ValueKindWeakTombstone})
	m := New(base.DefaultCompare, []Source{s})
	stream := NewMvccStream(base.DefaultCompare, m, Options{GCSeqnoWatermark: 0})

	ok, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || stream.Key().Kind != base.ValueKindWeakTombstone {
		t.Fatalf("an unpaired weak tombstone should be retained, got ok=%v key=%v", ok, stream.Key())
	}
}

func TestMvccStreamEvictsTombstonesAtLastLevel(t *testing.T) {
	s := mkSource([3]interface{}{"a", 1, base.ValueKindTombstone})
	m := New(base.DefaultCompare, []Source{s})
	stream := NewMvccStream(base.DefaultCompare, m, Options{GCSeqnoWatermark: 0, EvictTombstones: true})

	ok, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("tombstone should be evicted, got a survivor: %v", stream.Key())
	}
}

func TestMvccStreamKeepsTombstoneWhenNotEvicting(t *testing.T) {
	s := mkSource([3]interface{}{"a", 1, base.ValueKindTombstone})
	m := New(base.DefaultCompare, []Source{s})
	stream := NewMvccStream(base.DefaultCompare, m, Options{GCSeqnoWatermark: 0})

	ok, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || stream.Key().Kind != base.ValueKindTombstone {
		t.Fatalf("tombstone should be preserved outside the last level, got ok=%v key=%v", ok, stream.Key())
	}
}
