// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
)

// IndexBlockWriter builds one index block: a restart-interval-delta-
// encoded stream of keyed block handles, sorted by EndKey (spec §4.3). The
// same codec underlies both leaf index blocks (handle -> data block) and
// top-level index blocks (handle -> index block), and the partitioned
// variant's second-level blocks.
type IndexBlockWriter struct {
	RestartInterval int

	buf       []byte
	binIdx    block.BinaryIndexBuilder
	headKey   []byte
	curCount  int
	itemCount uint32
	// runningOffset/runningSize track the most recently written handle so
	// truncated entries can omit their offset (spec §4.3).
	runningOffset uint64
	runningSize   uint64
	firstKey      []byte
	lastKey       []byte
}

// Add appends one keyed block handle. Handles must be added in ascending
// EndKey order.
func (w *IndexBlockWriter) Add(h KeyedBlockHandle) {
	if w.RestartInterval <= 0 {
		w.RestartInterval = 1
	}
	if w.firstKey == nil {
		w.firstKey = append([]byte(nil), h.EndKey...)
	}
	w.lastKey = append(w.lastKey[:0], h.EndKey...)

	isHead := w.curCount == 0
	if isHead {
		w.binIdx.Add(uint32(len(w.buf)))
		w.headKey = append(w.headKey[:0], h.EndKey...)
		w.buf = binary.AppendUvarint(w.buf, h.Handle.Offset)
		w.buf = binary.AppendUvarint(w.buf, h.Handle.Size)
		w.buf = binary.AppendUvarint(w.buf, uint64(len(h.EndKey)))
		w.buf = append(w.buf, h.EndKey...)
	} else {
		shared := sharedPrefixLen(w.headKey, h.EndKey)
		rest := h.EndKey[shared:]
		w.buf = binary.AppendUvarint(w.buf, h.Handle.Size)
		w.buf = binary.AppendUvarint(w.buf, uint64(shared))
		w.buf = binary.AppendUvarint(w.buf, uint64(len(rest)))
		w.buf = append(w.buf, rest...)
	}
	w.runningOffset = h.Handle.Offset
	w.runningSize = h.Handle.Size

	w.itemCount++
	w.curCount++
	if w.curCount >= w.RestartInterval {
		w.curCount = 0
	}
}

// ItemCount returns the number of handles added so far.
func (w *IndexBlockWriter) ItemCount() uint32 { return w.itemCount }

// EstimatedSize estimates the uncompressed size of the block if finished
// now.
func (w *IndexBlockWriter) EstimatedSize() int {
	return len(w.buf) + w.binIdx.Len()*4 + block.HeaderSize + block.TrailerSize
}

// FirstKey returns the first key added, or nil if empty.
func (w *IndexBlockWriter) FirstKey() []byte { return w.firstKey }

// LastKey returns the last key added, or nil if empty.
func (w *IndexBlockWriter) LastKey() []byte { return w.lastKey }

// Finish assembles the block.
func (w *IndexBlockWriter) Finish() ([]byte, error) {
	if w.itemCount == 0 {
		return nil, errors.AssertionFailedf("lsmtree: finishing empty index block")
	}
	payload := append([]byte(nil), w.buf...)
	binOff := uint32(len(payload))
	payload, step := w.binIdx.Finish(payload)
	binLen := uint32(len(payload)) - binOff

	trailer := block.Trailer{
		ItemCount:         w.itemCount,
		RestartInterval:   uint32(w.RestartInterval),
		BinaryIndexOffset: binOff,
		BinaryIndexLength: binLen,
		BinaryIndexStep:   step,
	}
	// Index blocks are always written uncompressed, whatever compression
	// the table's data blocks use.
	return block.Assemble(payload, trailer, block.CompressionNone, 0, 0)
}

// Reset clears the writer for building the next index block.
func (w *IndexBlockWriter) Reset() {
	w.buf = w.buf[:0]
	w.binIdx = block.BinaryIndexBuilder{}
	w.headKey = w.headKey[:0]
	w.curCount = 0
	w.itemCount = 0
	w.firstKey = nil
	w.lastKey = w.lastKey[:0]
	w.runningOffset = 0
	w.runningSize = 0
}

// IndexBlockReader decodes an index block.
type IndexBlockReader struct {
	payload []byte
	binIdx  block.BinaryIndex
}

// NewIndexBlockReader parses raw.
func NewIndexBlockReader(raw []byte) (*IndexBlockReader, error) {
	d, err := block.Disassemble(raw)
	if err != nil {
		return nil, err
	}
	r := &IndexBlockReader{payload: d.Payload}
	r.binIdx = block.NewBinaryIndex(d.Payload[d.Trailer.BinaryIndexOffset:d.Trailer.BinaryIndexOffset+d.Trailer.BinaryIndexLength], d.Trailer.BinaryIndexStep)
	return r, nil
}

// decodeRun decodes every handle in the restart run starting at the given
// restart index, calling yield for each until it returns false.
func (r *IndexBlockReader) decodeRun(restartIdx int, yield func(KeyedBlockHandle, uint32) bool) error {
	pos := int(r.binIdx.Get(restartIdx))
	end := len(r.payload)
	if restartIdx+1 < r.binIdx.Len() {
		end = int(r.binIdx.Get(restartIdx + 1))
	}
	var headKey []byte
	var runningOffset, runningSize uint64
	first := true
	for pos < end {
		start := pos
		if first {
			off, n := binary.Uvarint(r.payload[pos:])
			if n <= 0 {
				return errors.New("lsmtree: bad index offset varint")
			}
			pos += n
			size, n := binary.Uvarint(r.payload[pos:])
			if n <= 0 {
				return errors.New("lsmtree: bad index size varint")
			}
			pos += n
			klen, n := binary.Uvarint(r.payload[pos:])
			if n <= 0 {
				return errors.New("lsmtree: bad index key length varint")
			}
			pos += n
			key := r.payload[pos : pos+int(klen)]
			pos += int(klen)
			headKey = key
			runningOffset, runningSize = off, size
			first = false
			if !yield(KeyedBlockHandle{EndKey: key, Handle: BlockHandle{Offset: off, Size: size}}, uint32(start)) {
				return nil
			}
			continue
		}
		size, n := binary.Uvarint(r.payload[pos:])
		if n <= 0 {
			return errors.New("lsmtree: bad index size varint")
		}
		pos += n
		shared, n := binary.Uvarint(r.payload[pos:])
		if n <= 0 {
			return errors.New("lsmtree: bad index shared varint")
		}
		pos += n
		restLen, n := binary.Uvarint(r.payload[pos:])
		if n <= 0 {
			return errors.New("lsmtree: bad index rest varint")
		}
		pos += n
		rest := r.payload[pos : pos+int(restLen)]
		pos += int(restLen)
		key := make([]byte, int(shared)+len(rest))
		copy(key, headKey[:shared])
		copy(key[shared:], rest)
		offset := runningOffset + runningSize
		runningOffset, runningSize = offset, size
		if !yield(KeyedBlockHandle{EndKey: key, Handle: BlockHandle{Offset: offset, Size: size}}, uint32(start)) {
			return nil
		}
	}
	return nil
}

// Lookup finds the handle whose EndKey is the smallest key >= needle (the
// handle for the block that may contain needle), using binary search over
// restart heads followed by a linear scan within the matched run.
func (r *IndexBlockReader) Lookup(cmp func(a, b []byte) int, needle []byte) (KeyedBlockHandle, bool, error) {
	n := r.binIdx.Len()
	if n == 0 {
		return KeyedBlockHandle{}, false, nil
	}
	// Find the first restart head whose *run* might contain needle: the
	// largest restart head key <= needle, or 0 if needle is smaller than
	// every restart head's first key.
	keyAt := func(i int) []byte {
		k, err := r.firstKeyOfRun(i)
		if err != nil {
			return nil
		}
		return k
	}
	restart := r.binIdx.Search(needle, keyAt, cmp)
	if restart < 0 {
		restart = 0
	}
	// Several consecutive blocks can end in needle when its versions span
	// block boundaries; start from the first run whose head sorts before it.
	for restart > 0 && cmp(keyAt(restart), needle) == 0 {
		restart--
	}
	var found KeyedBlockHandle
	var ok bool
	var yieldErr error
	for restart < n {
		err := r.decodeRun(restart, func(h KeyedBlockHandle, _ uint32) bool {
			if cmp(h.EndKey, needle) >= 0 {
				found, ok = h, true
				return false
			}
			return true
		})
		if err != nil {
			yieldErr = err
			break
		}
		if ok {
			break
		}
		restart++
	}
	if yieldErr != nil {
		return KeyedBlockHandle{}, false, yieldErr
	}
	return found, ok, nil
}

func (r *IndexBlockReader) firstKeyOfRun(restartIdx int) ([]byte, error) {
	var key []byte
	err := r.decodeRun(restartIdx, func(h KeyedBlockHandle, _ uint32) bool {
		key = h.EndKey
		return false
	})
	return key, err
}

// All iterates every handle in the block in order.
func (r *IndexBlockReader) All(yield func(KeyedBlockHandle) bool) error {
	for i := 0; i < r.binIdx.Len(); i++ {
		cont := true
		err := r.decodeRun(i, func(h KeyedBlockHandle, _ uint32) bool {
			if !yield(h) {
				cont = false
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Len returns the number of handles in the block.
func (r *IndexBlockReader) Len() int {
	n := 0
	r.All(func(KeyedBlockHandle) bool { n++; return true })
	return n
}
