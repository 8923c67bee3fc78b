// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/fjall-rs/lsm-tree-sub003/internal/base"

// blockList is the ordered list of data block handles in a table,
// resolved once by walking the (possibly partitioned) index, and reused
// by both the seeking Iterator and the sequential Scanner.
func (r *Reader) blockList() ([]KeyedBlockHandle, error) {
	tli, err := r.loadTLI()
	if err != nil {
		return nil, err
	}
	if r.trailer.PartitionedIndex.Size == 0 {
		var out []KeyedBlockHandle
		err := tli.All(func(h KeyedBlockHandle) bool {
			out = append(out, h)
			return true
		})
		return out, err
	}
	var out []KeyedBlockHandle
	err = tli.All(func(leafHandle KeyedBlockHandle) bool {
		leaf, lerr := r.loadIndexBlock(leafHandle.Handle)
		if lerr != nil {
			err = lerr
			return false
		}
		lerr = leaf.All(func(h KeyedBlockHandle) bool {
			out = append(out, h)
			return true
		})
		if lerr != nil {
			err = lerr
			return false
		}
		return true
	})
	return out, err
}

// Iterator walks a table's items in internal-key order, supporting
// seeking and forward iteration (spec §4.2 "Forward iteration").
type Iterator struct {
	r       *Reader
	blocks  []KeyedBlockHandle
	blkIdx  int
	cur     *DataBlockIterator
}

// NewIterator returns a fresh, unpositioned Iterator.
func (r *Reader) NewIterator() (*Iterator, error) {
	blocks, err := r.blockList()
	if err != nil {
		return nil, err
	}
	return &Iterator{r: r, blocks: blocks, blkIdx: -1}, nil
}

// SeekGE positions the iterator at the first item with user key >= key.
func (it *Iterator) SeekGE(key []byte) (bool, error) {
	lo, hi := 0, len(it.blocks)
	for lo < hi {
		mid := (lo + hi) / 2
		if it.r.cmp(it.blocks[mid].EndKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(it.blocks) {
		it.blkIdx = len(it.blocks)
		it.cur = nil
		return false, nil
	}
	if err := it.loadBlock(lo); err != nil {
		return false, err
	}
	for it.cur.SeekToFirst(); it.cur.Valid(); it.cur.Next() {
		if it.r.cmp(it.cur.Key().UserKey, key) >= 0 {
			return true, nil
		}
	}
	return it.advanceBlock()
}

// First positions the iterator at the first item in the table.
func (it *Iterator) First() (bool, error) {
	if len(it.blocks) == 0 {
		return false, nil
	}
	if err := it.loadBlock(0); err != nil {
		return false, err
	}
	ok := it.cur.SeekToFirst()
	return ok, nil
}

func (it *Iterator) loadBlock(i int) error {
	db, err := it.r.loadDataBlock(it.blocks[i].Handle)
	if err != nil {
		return err
	}
	it.blkIdx = i
	it.cur = db.Iterator()
	return nil
}

func (it *Iterator) advanceBlock() (bool, error) {
	for {
		it.blkIdx++
		if it.blkIdx >= len(it.blocks) {
			it.cur = nil
			return false, nil
		}
		if err := it.loadBlock(it.blkIdx); err != nil {
			return false, err
		}
		if it.cur.SeekToFirst() {
			return true, nil
		}
	}
}

// Next advances to the next item, crossing block boundaries as needed.
func (it *Iterator) Next() (bool, error) {
	if it.cur == nil {
		return false, nil
	}
	if it.cur.Next() {
		return true, nil
	}
	return it.advanceBlock()
}

// Last positions the iterator at the last item in the table, so a table
// can be scanned backward (spec §4.2, §4.14 double-ended range reads).
func (it *Iterator) Last() (bool, error) {
	if len(it.blocks) == 0 {
		return false, nil
	}
	if err := it.loadBlock(len(it.blocks) - 1); err != nil {
		return false, err
	}
	return it.cur.SeekToLast(), nil
}

func (it *Iterator) retreatBlock() (bool, error) {
	for {
		it.blkIdx--
		if it.blkIdx < 0 {
			it.cur = nil
			return false, nil
		}
		if err := it.loadBlock(it.blkIdx); err != nil {
			return false, err
		}
		if it.cur.SeekToLast() {
			return true, nil
		}
	}
}

// Prev moves to the item preceding the current one, crossing block
// boundaries as needed.
func (it *Iterator) Prev() (bool, error) {
	if it.cur == nil {
		return false, nil
	}
	if it.cur.Prev() {
		return true, nil
	}
	return it.retreatBlock()
}

// Valid reports whether the iterator is positioned on an item.
func (it *Iterator) Valid() bool { return it.cur != nil && it.cur.Valid() }

// Key returns the current item's internal key.
func (it *Iterator) Key() base.InternalKey { return it.cur.Key() }

// Value returns the current item's value.
func (it *Iterator) Value() []byte { return it.cur.Value() }

// Scanner streams every item of a table in order without consulting the
// index for each key; it is used by compaction inputs, which always read
// a table front to back (spec §4.12 step 3).
type Scanner struct {
	it *Iterator
}

// NewScanner returns a Scanner positioned before the first item.
func (r *Reader) NewScanner() (*Scanner, error) {
	it, err := r.NewIterator()
	if err != nil {
		return nil, err
	}
	return &Scanner{it: it}, nil
}

// Next advances to the next item, returning false at end of table.
func (s *Scanner) Next() (bool, error) {
	if s.it.blkIdx == -1 {
		return s.it.First()
	}
	return s.it.Next()
}

// Valid reports whether the scanner is positioned on an item, so that a
// Scanner satisfies merge.Source directly as a compaction input.
func (s *Scanner) Valid() bool { return s.it.Valid() }

// Key returns the current item's internal key.
func (s *Scanner) Key() base.InternalKey { return s.it.Key() }

// Value returns the current item's value.
func (s *Scanner) Value() []byte { return s.it.Value() }
