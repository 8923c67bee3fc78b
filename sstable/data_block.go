// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
)

// dataBlockSentinel terminates the restart-head item stream (spec §4.2).
// ValueKind only ever uses tags 0-2, so 0xFF is never a legal item tag.
const dataBlockSentinel = 0xFF

// DataBlockWriter builds one data block: a restart-interval-delta-encoded
// stream of internal values, a binary index over restart heads, and an
// optional hash index (spec §4.2, §4.1).
type DataBlockWriter struct {
	RestartInterval int
	HashRatio       float64 // buckets per item; 0 disables the hash index
	Compression     block.Compression
	CompressionLevel uint8

	buf          []byte
	binIdx       block.BinaryIndexBuilder
	headKey      []byte
	curCount     int
	itemCount    uint32
	tombstones   uint32
	weakTombs    uint32
	keysForHash  [][]byte
	restartIdxes []int
	firstKey     []byte
	lastKey      []byte

	lastUncompressedSize int
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Add appends one internal value to the block. Keys must be added in
// ascending internal-key order.
func (w *DataBlockWriter) Add(key base.InternalKey, value []byte) {
	if w.RestartInterval <= 0 {
		w.RestartInterval = 16
	}
	if w.firstKey == nil {
		w.firstKey = append([]byte(nil), key.UserKey...)
	}
	w.lastKey = append(w.lastKey[:0], key.UserKey...)

	isHead := w.curCount == 0
	if isHead {
		w.binIdx.Add(uint32(len(w.buf)))
		w.headKey = append(w.headKey[:0], key.UserKey...)
		w.buf = append(w.buf, byte(key.Kind))
		w.buf = binary.AppendUvarint(w.buf, uint64(key.SeqNum))
		w.buf = binary.AppendUvarint(w.buf, uint64(len(key.UserKey)))
		w.buf = append(w.buf, key.UserKey...)
		if !key.Kind.IsTombstone() {
			w.buf = binary.AppendUvarint(w.buf, uint64(len(value)))
			w.buf = append(w.buf, value...)
		}
	} else {
		shared := sharedPrefixLen(w.headKey, key.UserKey)
		rest := key.UserKey[shared:]
		w.buf = append(w.buf, byte(key.Kind))
		w.buf = binary.AppendUvarint(w.buf, uint64(key.SeqNum))
		w.buf = binary.AppendUvarint(w.buf, uint64(shared))
		w.buf = binary.AppendUvarint(w.buf, uint64(len(rest)))
		w.buf = append(w.buf, rest...)
		if !key.Kind.IsTombstone() {
			w.buf = binary.AppendUvarint(w.buf, uint64(len(value)))
			w.buf = append(w.buf, value...)
		}
	}

	w.keysForHash = append(w.keysForHash, append([]byte(nil), key.UserKey...))
	w.restartIdxes = append(w.restartIdxes, w.binIdx.Len()-1)

	w.itemCount++
	switch key.Kind {
	case base.ValueKindTombstone:
		w.tombstones++
	case base.ValueKindWeakTombstone:
		w.weakTombs++
	}

	w.curCount++
	if w.curCount >= w.RestartInterval {
		w.curCount = 0
	}
}

// ItemCount returns the number of items added so far.
func (w *DataBlockWriter) ItemCount() uint32 { return w.itemCount }

// EstimatedSize estimates the uncompressed size of the block if finished
// now, used by the table writer to decide when to roll over to a new
// block.
func (w *DataBlockWriter) EstimatedSize() int {
	return len(w.buf) + w.binIdx.Len()*4 + block.HeaderSize + block.TrailerSize
}

// FirstKey returns the first key added to this block, or nil if empty.
func (w *DataBlockWriter) FirstKey() []byte { return w.firstKey }

// LastKey returns the last key added to this block, or nil if empty.
func (w *DataBlockWriter) LastKey() []byte { return w.lastKey }

// Finish assembles the block, returning its on-disk bytes.
func (w *DataBlockWriter) Finish(prevBlockOffset uint64) ([]byte, error) {
	if w.itemCount == 0 {
		return nil, errors.AssertionFailedf("lsmtree: finishing empty data block")
	}
	payload := append([]byte(nil), w.buf...)
	payload = append(payload, dataBlockSentinel)

	binOff := uint32(len(payload))
	payload, step := w.binIdx.Finish(payload)
	binLen := uint32(len(payload)) - binOff

	var hashOff, hashLen uint32
	if w.HashRatio > 0 && block.CanIndex(w.binIdx.Len()) {
		buckets := int(float64(w.itemCount) * w.HashRatio)
		if buckets < w.binIdx.Len() {
			buckets = w.binIdx.Len()
		}
		if buckets < 1 {
			buckets = 1
		}
		hb := block.NewHashIndexBuilder(buckets)
		for i, k := range w.keysForHash {
			hb.Insert(k, w.restartIdxes[i])
		}
		hashOff = uint32(len(payload))
		payload = hb.Finish(payload)
		hashLen = uint32(len(payload)) - hashOff
	}

	trailer := block.Trailer{
		ItemCount:         w.itemCount,
		RestartInterval:   uint32(w.RestartInterval),
		BinaryIndexOffset: binOff,
		BinaryIndexLength: binLen,
		BinaryIndexStep:   step,
		HashIndexOffset:   hashOff,
		HashIndexLength:   hashLen,
	}
	// Recorded before compression so the table writer can accumulate the
	// metadata block's UncompressedSize (spec §4.5) separately from the
	// compressed on-disk file offset.
	w.lastUncompressedSize = len(payload) + block.HeaderSize + block.TrailerSize
	return block.Assemble(payload, trailer, w.Compression, w.CompressionLevel, prevBlockOffset)
}

// UncompressedSize returns the uncompressed size of the block most recently
// produced by Finish.
func (w *DataBlockWriter) UncompressedSize() int { return w.lastUncompressedSize }

// Reset clears the writer for reuse building the next block.
func (w *DataBlockWriter) Reset() {
	w.buf = w.buf[:0]
	w.binIdx = block.BinaryIndexBuilder{}
	w.headKey = w.headKey[:0]
	w.curCount = 0
	w.itemCount = 0
	w.tombstones = 0
	w.weakTombs = 0
	w.keysForHash = w.keysForHash[:0]
	w.restartIdxes = w.restartIdxes[:0]
	w.firstKey = nil
	w.lastKey = w.lastKey[:0]
}

// DataBlockReader decodes a data block produced by DataBlockWriter.
type DataBlockReader struct {
	payload []byte
	trailer block.Trailer
	binIdx  block.BinaryIndex
	hashIdx block.HashIndex
}

// NewDataBlockReader parses raw (the on-disk bytes of one block).
func NewDataBlockReader(raw []byte) (*DataBlockReader, error) {
	d, err := block.Disassemble(raw)
	if err != nil {
		return nil, err
	}
	r := &DataBlockReader{payload: d.Payload, trailer: d.Trailer}
	r.binIdx = block.NewBinaryIndex(d.Payload[d.Trailer.BinaryIndexOffset:d.Trailer.BinaryIndexOffset+d.Trailer.BinaryIndexLength], d.Trailer.BinaryIndexStep)
	if d.Trailer.HashIndexLength > 0 {
		r.hashIdx = block.NewHashIndex(d.Payload[d.Trailer.HashIndexOffset : d.Trailer.HashIndexOffset+d.Trailer.HashIndexLength])
	}
	return r, nil
}

// dataItem is one decoded restart-relative item.
type dataItem struct {
	key    base.InternalKey
	value  []byte
	offset uint32
	next   uint32 // offset immediately after this item
}

// decodeAt decodes the item at payload offset off, given the owning
// restart head's key (headKey), or itself if it is the head.
func (r *DataBlockReader) decodeAt(off uint32, headKey []byte, isHead bool) (dataItem, error) {
	p := r.payload
	if int(off) >= len(p) {
		return dataItem{}, errors.New("lsmtree: item offset out of range")
	}
	pos := int(off)
	if pos >= len(p) || p[pos] == dataBlockSentinel {
		return dataItem{}, errors.New("lsmtree: read past last item")
	}
	kind := base.ValueKind(p[pos])
	pos++
	seq, n := binary.Uvarint(p[pos:])
	if n <= 0 {
		return dataItem{}, errors.New("lsmtree: bad seqno varint")
	}
	pos += n

	var key []byte
	if isHead {
		klen, n := binary.Uvarint(p[pos:])
		if n <= 0 {
			return dataItem{}, errors.New("lsmtree: bad key length varint")
		}
		pos += n
		key = p[pos : pos+int(klen)]
		pos += int(klen)
	} else {
		shared, n := binary.Uvarint(p[pos:])
		if n <= 0 {
			return dataItem{}, errors.New("lsmtree: bad shared-prefix varint")
		}
		pos += n
		restLen, n := binary.Uvarint(p[pos:])
		if n <= 0 {
			return dataItem{}, errors.New("lsmtree: bad rest-key varint")
		}
		pos += n
		rest := p[pos : pos+int(restLen)]
		pos += int(restLen)
		key = make([]byte, int(shared)+len(rest))
		copy(key, headKey[:shared])
		copy(key[shared:], rest)
	}

	var value []byte
	if !kind.IsTombstone() {
		vlen, n := binary.Uvarint(p[pos:])
		if n <= 0 {
			return dataItem{}, errors.New("lsmtree: bad value length varint")
		}
		pos += n
		value = p[pos : pos+int(vlen)]
		pos += int(vlen)
	}

	return dataItem{
		key:    base.InternalKey{UserKey: base.UserKey(key), SeqNum: base.SeqNum(seq), Kind: kind},
		value:  value,
		offset: off,
		next:   uint32(pos),
	}, nil
}

// ItemCount returns the number of items in the block.
func (r *DataBlockReader) ItemCount() int { return int(r.trailer.ItemCount) }

// restartIndexForOffset returns the index of the restart run that off
// falls within: the largest i such that binIdx.Get(i) <= off.
func (r *DataBlockReader) restartIndexForOffset(off uint32) int {
	n := r.binIdx.Len()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if r.binIdx.Get(mid) <= off {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// itemsEnd returns the payload offset of the sentinel byte that terminates
// the item stream; items occupy [0, itemsEnd).
func (r *DataBlockReader) itemsEnd() uint32 {
	return r.trailer.BinaryIndexOffset - 1
}

// resolveHead works out which restart run off belongs to and returns the
// head key and isHead flag decodeAt needs, rather than assuming off shares
// whatever run the caller last decoded: a restart run's items are only
// delta-encoded against their own head (spec §4.2), so crossing into the
// next run requires re-resolving it, not reusing the previous one.
func (r *DataBlockReader) resolveHead(off uint32) ([]byte, bool, error) {
	ri := r.restartIndexForOffset(off)
	if ri < 0 {
		return nil, false, errors.New("lsmtree: offset precedes first restart head")
	}
	headOff := r.binIdx.Get(ri)
	if headOff == off {
		return nil, true, nil
	}
	headItem, err := r.decodeAt(headOff, nil, true)
	if err != nil {
		return nil, false, err
	}
	return headItem.key.UserKey, false, nil
}

// Get performs the point-read algorithm from spec §4.2: locate the
// governing restart head (hash index first, binary search as fallback),
// then walk forward applying delta reconstruction until the needle is
// found, exceeded, or the block ends. Among same-key versions (which sort
// newest-first) it returns the first whose seqno < snapshotSeq.
func (r *DataBlockReader) Get(cmp func(a, b []byte) int, needle []byte, snapshotSeq base.SeqNum) (base.InternalKey, []byte, bool, error) {
	startRestart := 0
	if r.hashIdx.BucketCount() > 0 {
		idx, ok, conflict := r.hashIdx.Lookup(needle)
		if !conflict {
			if !ok {
				return base.InternalKey{}, nil, false, nil
			}
			startRestart = idx
		} else {
			startRestart = r.searchBinaryIndex(cmp, needle)
			if startRestart < 0 {
				return base.InternalKey{}, nil, false, nil
			}
		}
	} else {
		startRestart = r.searchBinaryIndex(cmp, needle)
		if startRestart < 0 {
			return base.InternalKey{}, nil, false, nil
		}
	}

	off := r.binIdx.Get(startRestart)
	itemsEnd := r.itemsEnd()
	for {
		head, isHead, herr := r.resolveHead(off)
		if herr != nil {
			return base.InternalKey{}, nil, false, herr
		}
		item, err := r.decodeAt(off, head, isHead)
		if err != nil {
			return base.InternalKey{}, nil, false, err
		}
		c := cmp(item.key.UserKey, needle)
		if c > 0 {
			return base.InternalKey{}, nil, false, nil
		}
		if c == 0 {
			if item.key.SeqNum < snapshotSeq {
				return item.key, item.value, true, nil
			}
			// Walk subsequent versions of the same key looking for one
			// visible at the snapshot; they are ordered newest-first.
			next := item.next
			for next < itemsEnd {
				nhead, nisHead, herr := r.resolveHead(next)
				if herr != nil {
					return base.InternalKey{}, nil, false, herr
				}
				nitem, err := r.decodeAt(next, nhead, nisHead)
				if err != nil {
					return base.InternalKey{}, nil, false, err
				}
				if cmp(nitem.key.UserKey, needle) != 0 {
					break
				}
				if nitem.key.SeqNum < snapshotSeq {
					return nitem.key, nitem.value, true, nil
				}
				next = nitem.next
			}
			return base.InternalKey{}, nil, false, nil
		}
		if item.next >= itemsEnd {
			return base.InternalKey{}, nil, false, nil
		}
		off = item.next
	}
}

func (r *DataBlockReader) searchBinaryIndex(cmp func(a, b []byte) int, needle []byte) int {
	keyAt := func(i int) []byte {
		item, err := r.decodeAt(r.binIdx.Get(i), nil, true)
		if err != nil {
			return nil
		}
		return item.key.UserKey
	}
	i := r.binIdx.Search(needle, keyAt, cmp)
	// A run headed by needle may follow a run holding newer versions of
	// needle, so start from the first run whose head sorts before it.
	for i > 0 && cmp(keyAt(i), needle) == 0 {
		i--
	}
	return i
}

// Iterator returns a forward iterator over all items in internal-key
// order, restartable at any restart head.
func (r *DataBlockReader) Iterator() *DataBlockIterator {
	return &DataBlockIterator{r: r}
}

// DataBlockIterator walks a data block's items in order, forward or
// backward. Items are only linked forward on disk, so Prev and SeekToLast
// re-walk their restart run from its head (spec §4.2, restart runs are
// expected to be short).
type DataBlockIterator struct {
	r    *DataBlockReader
	off  uint32
	done bool
	cur  dataItem
}

// decodeCur positions the iterator at off, resolving which restart run it
// falls in rather than assuming the iterator's previous run.
func (it *DataBlockIterator) decodeCur(off uint32) bool {
	head, isHead, err := it.r.resolveHead(off)
	if err != nil {
		it.done = true
		return false
	}
	item, err := it.r.decodeAt(off, head, isHead)
	if err != nil {
		it.done = true
		return false
	}
	it.off = off
	it.cur = item
	it.done = false
	return true
}

// SeekToFirst positions the iterator at the first item.
func (it *DataBlockIterator) SeekToFirst() bool {
	if it.r.binIdx.Len() == 0 {
		it.done = true
		return false
	}
	return it.decodeCur(it.r.binIdx.Get(0))
}

// SeekToRestart positions the iterator at the i'th restart head.
func (it *DataBlockIterator) SeekToRestart(i int) bool {
	if i < 0 || i >= it.r.binIdx.Len() {
		it.done = true
		return false
	}
	return it.decodeCur(it.r.binIdx.Get(i))
}

// seekToLastInRun positions the iterator at the last item of restart run
// ri by walking it forward from its head.
func (it *DataBlockIterator) seekToLastInRun(ri int) bool {
	off := it.r.binIdx.Get(ri)
	end := it.r.itemsEnd()
	if ri+1 < it.r.binIdx.Len() {
		end = it.r.binIdx.Get(ri + 1)
	}
	if !it.decodeCur(off) {
		return false
	}
	for it.cur.next < end {
		if !it.decodeCur(it.cur.next) {
			return false
		}
	}
	return true
}

// SeekToLast positions the iterator at the last item in the block.
func (it *DataBlockIterator) SeekToLast() bool {
	n := it.r.binIdx.Len()
	if n == 0 {
		it.done = true
		return false
	}
	return it.seekToLastInRun(n - 1)
}

// Key returns the current item's internal key.
func (it *DataBlockIterator) Key() base.InternalKey { return it.cur.key }

// Value returns the current item's value.
func (it *DataBlockIterator) Value() []byte { return it.cur.value }

// Valid reports whether the iterator is positioned on an item.
func (it *DataBlockIterator) Valid() bool { return !it.done }

// Next advances to the next item, returning false at end of block.
func (it *DataBlockIterator) Next() bool {
	if it.done {
		return false
	}
	next := it.cur.next
	if next >= it.r.itemsEnd() {
		it.done = true
		return false
	}
	return it.decodeCur(next)
}

// Prev moves to the item preceding the current one, returning false if the
// current item is already the first in the block.
func (it *DataBlockIterator) Prev() bool {
	if it.done {
		return false
	}
	target := it.off
	ri := it.r.restartIndexForOffset(target)
	if target == it.r.binIdx.Get(ri) {
		if ri == 0 {
			it.done = true
			return false
		}
		return it.seekToLastInRun(ri - 1)
	}
	off := it.r.binIdx.Get(ri)
	for {
		if !it.decodeCur(off) {
			return false
		}
		if it.cur.next == target {
			return true
		}
		off = it.cur.next
	}
}

