// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import (
	"container/heap"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

// maxHeap orders heapItems by descending internal key, the mirror image
// of minHeap, used for the backward half of the merge.
type maxHeap struct {
	cmp   func(a, b []byte) int
	items []heapItem
}

func (h *maxHeap) Len() int { return len(h.items) }
func (h *maxHeap) Less(i, j int) bool {
	return base.Compare(h.cmp, h.items[i].key, h.items[j].key) > 0
}
func (h *maxHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *maxHeap) Push(x interface{}) { h.items = append(h.items, x.(heapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// backMerger is a Merger configured for backward-only iteration, built
// lazily the first time NextBack is called.
type backMerger struct {
	cmp     func(a, b []byte) int
	sources []ReversibleSource
	h       *maxHeap
	cur     int
}

// NextBack steps to the previous item in descending internal-key order,
// the mirror of Next. It requires every source passed to New to
// implement ReversibleSource; reverse positioning (Last/Prev) is seeded
// independently of any forward iteration already performed via Next, so
// mixing Next and NextBack calls on the same Merger is not supported (the
// tree facade uses one direction per call, matching how last_key_value
// and first_key_value are each served by a fresh, single-purpose scan).
func (m *Merger) NextBack() (bool, error) {
	if m.back == nil {
		rs := make([]ReversibleSource, len(m.sources))
		for i, s := range m.sources {
			r, ok := s.(ReversibleSource)
			if !ok {
				return false, errors.New("lsmtree: NextBack requires every merge source to be reversible")
			}
			rs[i] = r
		}
		bm := &backMerger{cmp: m.cmp, sources: rs, h: &maxHeap{cmp: m.cmp}, cur: -1}
		for i, s := range rs {
			ok, err := s.Last()
			if err != nil {
				return false, err
			}
			if ok {
				heap.Push(bm.h, heapItem{src: i, key: s.Key()})
			}
		}
		m.back = bm
	}
	b := m.back
	if b.cur >= 0 {
		s := b.sources[b.cur]
		ok, err := s.Prev()
		if err != nil {
			return false, err
		}
		if ok {
			heap.Push(b.h, heapItem{src: b.cur, key: s.Key()})
		}
		b.cur = -1
	}
	if b.h.Len() == 0 {
		return false, nil
	}
	top := heap.Pop(b.h).(heapItem)
	b.cur = top.src
	return true, nil
}

// BackKey returns the current backward item's internal key; valid only
// after a successful NextBack.
func (m *Merger) BackKey() base.InternalKey { return m.back.sources[m.back.cur].Key() }

// BackValue returns the current backward item's value.
func (m *Merger) BackValue() []byte { return m.back.sources[m.back.cur].Value() }
