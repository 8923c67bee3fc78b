// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmtree

import (
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/manifest"
	"github.com/fjall-rs/lsm-tree-sub003/memtable"
	"github.com/fjall-rs/lsm-tree-sub003/merge"
	"github.com/fjall-rs/lsm-tree-sub003/sstable"
)

// memtableSource adapts memtable.Iterator to merge.ReversibleSource: the
// memtable iterator's Next/Last/Prev return a bare bool, while a merge
// source must be able to report an error (spec §4.8).
type memtableSource struct{ it *memtable.Iterator }

func (s *memtableSource) Next() (bool, error) { return s.it.Next(), nil }
func (s *memtableSource) Last() (bool, error) { return s.it.Last(), nil }
func (s *memtableSource) Prev() (bool, error) { return s.it.Prev(), nil }
func (s *memtableSource) Valid() bool         { return s.it.Valid() }
func (s *memtableSource) Key() base.InternalKey { return s.it.Key() }
func (s *memtableSource) Value() []byte         { return s.it.Value() }

// runIterator walks one run's tables in key order, as a single
// merge.ReversibleSource, seeking into the boundary table when start/end
// narrows the scan (spec §4.9 "Run": tables within a run have disjoint,
// ascending key ranges, so only the first or last filtered table can
// straddle a bound).
type runIterator struct {
	t      *Tree
	tables []*manifest.TableMetadata
	lo, hi []byte

	idx int
	cur *sstable.Iterator
}

// newRunIterator returns a runIterator restricted to tables overlapping
// [lo, hi); an empty bound is unbounded on that side.
func (t *Tree) newRunIterator(tables []*manifest.TableMetadata, lo, hi []byte) *runIterator {
	filtered := make([]*manifest.TableMetadata, 0, len(tables))
	for _, tb := range tables {
		if tb.Overlaps(t.cmp(), lo, hi) {
			filtered = append(filtered, tb)
		}
	}
	return &runIterator{t: t, tables: filtered, lo: lo, hi: hi, idx: -1}
}

func (it *runIterator) openAt(i int) (*sstable.Iterator, error) {
	r, err := it.t.openTable(it.tables[i].TableID)
	if err != nil {
		return nil, err
	}
	return r.NewIterator()
}

func (it *runIterator) advance() (bool, error) {
	for {
		it.idx++
		if it.idx >= len(it.tables) {
			it.cur = nil
			return false, nil
		}
		iter, err := it.openAt(it.idx)
		if err != nil {
			return false, err
		}
		it.cur = iter
		var ok bool
		if it.idx == 0 && len(it.lo) > 0 {
			ok, err = iter.SeekGE(it.lo)
		} else {
			ok, err = iter.First()
		}
		if err != nil {
			return false, err
		}
		if ok {
			return it.checkHi()
		}
	}
}

func (it *runIterator) retreat() (bool, error) {
	for {
		it.idx--
		if it.idx < 0 {
			it.cur = nil
			return false, nil
		}
		iter, err := it.openAt(it.idx)
		if err != nil {
			return false, err
		}
		it.cur = iter
		var ok bool
		if it.idx == len(it.tables)-1 && len(it.hi) > 0 {
			if ok, err = iter.SeekGE(it.hi); err != nil {
				return false, err
			}
			if ok {
				ok, err = iter.Prev()
			} else {
				ok, err = iter.Last()
			}
		} else {
			ok, err = iter.Last()
		}
		if err != nil {
			return false, err
		}
		if ok {
			return it.checkLo()
		}
	}
}

func (it *runIterator) checkHi() (bool, error) {
	if len(it.hi) > 0 && it.t.cmp()(it.cur.Key().UserKey, it.hi) >= 0 {
		it.cur = nil
		return false, nil
	}
	return true, nil
}

func (it *runIterator) checkLo() (bool, error) {
	if len(it.lo) > 0 && it.t.cmp()(it.cur.Key().UserKey, it.lo) < 0 {
		it.cur = nil
		return false, nil
	}
	return true, nil
}

// Next implements merge.Source.
func (it *runIterator) Next() (bool, error) {
	if it.cur != nil {
		ok, err := it.cur.Next()
		if err != nil {
			return false, err
		}
		if ok {
			return it.checkHi()
		}
	}
	return it.advance()
}

// Last implements merge.ReversibleSource.
func (it *runIterator) Last() (bool, error) {
	it.idx = len(it.tables)
	return it.retreat()
}

// Prev implements merge.ReversibleSource.
func (it *runIterator) Prev() (bool, error) {
	if it.cur != nil {
		ok, err := it.cur.Prev()
		if err != nil {
			return false, err
		}
		if ok {
			return it.checkLo()
		}
	}
	return it.retreat()
}

func (it *runIterator) Valid() bool             { return it.cur != nil && it.cur.Valid() }
func (it *runIterator) Key() base.InternalKey   { return it.cur.Key() }
func (it *runIterator) Value() []byte           { return it.cur.Value() }

// rangeSources builds one merge.Source per memtable and per run live in
// sv, each already positioned at (or past) start, for a Range/Prefix
// query or a first/last-key scan (spec §4.14).
func (t *Tree) rangeSources(sv *manifest.SuperVersion, start, end []byte) ([]merge.Source, error) {
	var sources []merge.Source

	handles := append([]manifest.MemtableHandle{sv.ActiveMemtable}, sv.SealedMemtables...)
	for _, h := range handles {
		mt := h.(*memtable.Memtable)
		src := &memtableSource{it: mt.Range(start, end)}
		if _, err := src.Next(); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	for _, level := range sv.Version.Levels {
		for _, run := range level.Runs {
			rit := t.newRunIterator(run.Tables, start, end)
			if _, err := rit.Next(); err != nil {
				return nil, err
			}
			sources = append(sources, rit)
		}
	}
	return sources, nil
}

// RangeIterator yields the newest version of each user key visible at a
// snapshot within a Range or Prefix query's bounds, skipping every
// shadowed older version and every tombstoned key (spec §4.14 "range",
// "prefix").
type RangeIterator struct {
	t           *Tree
	m           *merge.Merger
	snapshotSeq base.SeqNum

	pendingKey  base.InternalKey
	pendingVal  []byte
	havePending bool

	key   []byte
	value []byte
	err   error
}

// Next advances to the next surviving key, returning false at the end of
// the range or on error (check Err to distinguish the two).
func (it *RangeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		var k base.InternalKey
		var raw []byte
		if it.havePending {
			k, raw = it.pendingKey, it.pendingVal
			it.havePending = false
		} else {
			ok, err := it.m.Next()
			if err != nil {
				it.err = err
				return false
			}
			if !ok {
				return false
			}
			k = it.m.Key()
			raw = append([]byte(nil), it.m.Value()...)
		}

		if k.SeqNum >= it.snapshotSeq {
			continue
		}

		userKey := append([]byte(nil), k.UserKey...)
		for {
			ok, err := it.m.Next()
			if err != nil {
				it.err = err
				return false
			}
			if !ok {
				break
			}
			nk := it.m.Key()
			if it.t.cmp()(nk.UserKey, userKey) != 0 {
				it.pendingKey = nk
				it.pendingVal = append([]byte(nil), it.m.Value()...)
				it.havePending = true
				break
			}
		}

		if k.Kind.IsTombstone() {
			continue
		}
		val, err := it.t.decodeTaggedValue(raw)
		if err != nil {
			it.err = err
			return false
		}
		it.key, it.value = userKey, val
		return true
	}
}

// Key returns the current user key.
func (it *RangeIterator) Key() []byte { return it.key }

// Value returns the current value.
func (it *RangeIterator) Value() []byte { return it.value }

// Err returns the first error encountered, if any.
func (it *RangeIterator) Err() error { return it.err }

// Range returns an iterator over [start, end) visible at snapshotSeq; an
// empty start or end is unbounded on that side (spec §4.14 "range").
func (t *Tree) Range(start, end []byte, snapshotSeq base.SeqNum) (*RangeIterator, error) {
	sv := t.manifest.VisibleFor(uint64(snapshotSeq))
	sources, err := t.rangeSources(sv, start, end)
	if err != nil {
		return nil, err
	}
	return &RangeIterator{t: t, m: merge.New(t.cmp(), sources), snapshotSeq: snapshotSeq}, nil
}

// Prefix returns an iterator over every key beginning with prefix,
// visible at snapshotSeq (spec §4.14 "prefix").
func (t *Tree) Prefix(prefix []byte, snapshotSeq base.SeqNum) (*RangeIterator, error) {
	return t.Range(prefix, prefixUpperBound(prefix), snapshotSeq)
}

// prefixUpperBound returns the smallest key that sorts after every key
// beginning with prefix, or nil if prefix is unbounded above (every byte
// is 0xFF).
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// FirstKeyValue returns the smallest live user key visible at
// snapshotSeq (spec §4.14 "first_key_value"). It walks candidate keys in
// ascending order via the merge iterator, resolving each one through Get
// so the answer reuses the same version-reconciliation logic as a point
// read, rather than duplicating it.
func (t *Tree) FirstKeyValue(snapshotSeq base.SeqNum) ([]byte, []byte, bool, error) {
	return t.edgeKeyValue(snapshotSeq, false)
}

// LastKeyValue returns the largest live user key visible at snapshotSeq
// (spec §4.14 "last_key_value").
func (t *Tree) LastKeyValue(snapshotSeq base.SeqNum) ([]byte, []byte, bool, error) {
	return t.edgeKeyValue(snapshotSeq, true)
}

func (t *Tree) edgeKeyValue(snapshotSeq base.SeqNum, backward bool) ([]byte, []byte, bool, error) {
	sv := t.manifest.VisibleFor(uint64(snapshotSeq))
	sources, err := t.rangeSources(sv, nil, nil)
	if err != nil {
		return nil, nil, false, err
	}
	m := merge.New(t.cmp(), sources)

	seen := make(map[string]bool)
	for {
		var ok bool
		var k base.InternalKey
		if backward {
			ok, err = m.NextBack()
			if ok {
				k = m.BackKey()
			}
		} else {
			ok, err = m.Next()
			if ok {
				k = m.Key()
			}
		}
		if err != nil {
			return nil, nil, false, err
		}
		if !ok {
			return nil, nil, false, nil
		}
		userKey := string(k.UserKey)
		if seen[userKey] {
			continue
		}
		seen[userKey] = true
		val, found, gerr := t.Get(k.UserKey, snapshotSeq)
		if gerr != nil {
			return nil, nil, false, gerr
		}
		if found {
			return append([]byte(nil), k.UserKey...), val, true, nil
		}
	}
}
