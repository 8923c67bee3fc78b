// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/blob"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/block"
	"github.com/fjall-rs/lsm-tree-sub003/sstable/bloom"
)

// memFile is an in-memory ReadableFile+WritableFile, standing in for the
// (out-of-scope) real filesystem adapter in tests.
type memFile struct {
	bytes.Buffer
}

func (f *memFile) Close() error { return nil }
func (f *memFile) Size() (int64, error) { return int64(f.Len()), nil }
func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	data := f.Bytes()
	if off >= int64(len(data)) {
		return 0, errIO("sstable_test: read past end of file")
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, errIO("sstable_test: short read")
	}
	return n, nil
}

type errIO string

func (e errIO) Error() string { return string(e) }

func buildTable(t *testing.T, opts WriterOptions, items []base.InternalValue) (*memFile, Meta) {
	t.Helper()
	f := &memFile{}
	w := NewWriter(f, opts)
	for _, it := range items {
		if err := w.Add(it.Key, it.Value); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	meta, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return f, meta
}

func kv(key string, seq int, kind base.ValueKind, value string) base.InternalValue {
	return base.InternalValue{
		Key:   base.InternalKey{UserKey: base.UserKey(key), SeqNum: base.SeqNum(seq), Kind: kind},
		Value: EncodeInlineValue([]byte(value)),
	}
}

func TestWriterReaderRoundTripGet(t *testing.T) {
	items := []base.InternalValue{
		kv("a", 1, base.ValueKindSet, "apple"),
		kv("b", 2, base.ValueKindSet, "banana"),
		kv("c", 3, base.ValueKindTombstone, ""),
		kv("d", 1, base.ValueKindSet, "date"),
	}
	f, meta := buildTable(t, WriterOptions{TableID: 7, BlockSize: 1}, items)
	if meta.ItemCount != 4 || meta.UniqueKeyCount != 4 || meta.TombstoneCount != 1 {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	key, val, ok, err := r.Get([]byte("b"), base.SeqNumMax)
	if err != nil || !ok {
		t.Fatalf("Get(b): ok=%v err=%v", ok, err)
	}
	if key.SeqNum != 2 {
		t.Fatalf("got seqno %d, want 2", key.SeqNum)
	}
	dv, err := DecodeValue(val)
	if err != nil || string(dv.Inline) != "banana" {
		t.Fatalf("got value %q, err %v", dv.Inline, err)
	}

	_, _, ok, err = r.Get([]byte("zzz"), base.SeqNumMax)
	if err != nil || ok {
		t.Fatalf("Get(zzz) should miss, ok=%v err=%v", ok, err)
	}
}

func TestWriterReaderMultipleDataBlocks(t *testing.T) {
	var items []base.InternalValue
	for i := 0; i < 200; i++ {
		items = append(items, kv(string(rune('a'+i%26))+string(rune(i)), i, base.ValueKindSet, "v"))
	}
	// BlockSize=1 forces a new data block on nearly every Add, exercising
	// the top-level and partitioned index paths.
	f, _ := buildTable(t, WriterOptions{TableID: 1, BlockSize: 1, IndexBlockSize: 1}, items)
	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	it, err := r.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	ok, err := it.First()
	if err != nil || !ok {
		t.Fatalf("First: ok=%v err=%v", ok, err)
	}
	count := 1
	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != len(items) {
		t.Fatalf("iterated %d items, want %d", count, len(items))
	}
}

func TestScannerStreamsInOrder(t *testing.T) {
	items := []base.InternalValue{
		kv("a", 1, base.ValueKindSet, "1"),
		kv("b", 1, base.ValueKindSet, "2"),
		kv("c", 1, base.ValueKindSet, "3"),
	}
	f, _ := buildTable(t, WriterOptions{TableID: 1}, items)
	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	sc, err := r.NewScanner()
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	var got []string
	for {
		ok, err := sc.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(sc.Key().UserKey))
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFilterAvoidsFalseNegatives(t *testing.T) {
	items := []base.InternalValue{
		kv("present-1", 1, base.ValueKindSet, "x"),
		kv("present-2", 1, base.ValueKindSet, "x"),
	}
	opts := WriterOptions{TableID: 1, FilterPolicy: bloom.DefaultPolicy, ExpectedItemCount: 2}
	f, _ := buildTable(t, opts, items)
	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	for _, k := range []string{"present-1", "present-2"} {
		ok, err := r.MayContain([]byte(k))
		if err != nil || !ok {
			t.Fatalf("MayContain(%s) = %v, %v, want true", k, ok, err)
		}
	}
}

// TestFilterAvoidsDataBlockLoads checks spec §8 S4: a negative filter
// result must short-circuit before any data block is read, so the
// number of data block loads for a batch of absent keys stays close to
// the filter's target false-positive rate rather than one per key.
func TestFilterAvoidsDataBlockLoads(t *testing.T) {
	const n = 2000
	items := make([]base.InternalValue, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, kv(fmt.Sprintf("present-%05d", i), 1, base.ValueKindSet, "x"))
	}
	opts := WriterOptions{
		TableID:           1,
		FilterPolicy:      bloom.Policy{Variant: bloom.FilterTypeStandard, FalsePositiveRate: 0.01},
		ExpectedItemCount: n,
	}
	f, _ := buildTable(t, opts, items)

	var loads int
	loader := func(_ uint64, _ BlockHandle, load func() ([]byte, error)) ([]byte, error) {
		loads++
		return load()
	}
	r, err := NewReader(f, ReaderOptions{Loader: loader, PinFilter: true, PinTLI: true})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	loads = 0 // discount the one-time TLI pin load performed by NewReader itself

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("absent-%05d", i)
		if _, _, ok, err := r.Get([]byte(key), base.SeqNumMax); err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		} else if ok {
			t.Fatalf("Get(%s) unexpectedly reported present", key)
		}
	}

	maxExpected := int(opts.FilterPolicy.FalsePositiveRate*float64(n)) + n/10
	if loads > maxExpected {
		t.Fatalf("data block loads for %d absent keys = %d, want <= %d (filter should have skipped most of them)", n, loads, maxExpected)
	}
}

func TestCompressedBlocksRoundTrip(t *testing.T) {
	items := []base.InternalValue{
		kv("a", 1, base.ValueKindSet, "some reasonably compressible value some reasonably compressible value"),
		kv("b", 1, base.ValueKindSet, "some reasonably compressible value some reasonably compressible value"),
	}
	opts := WriterOptions{TableID: 1, Compression: block.CompressionLZ4}
	f, _ := buildTable(t, opts, items)
	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, val, ok, err := r.Get([]byte("a"), base.SeqNumMax)
	if err != nil || !ok {
		t.Fatalf("Get(a): ok=%v err=%v", ok, err)
	}
	dv, err := DecodeValue(val)
	if err != nil || string(dv.Inline) != "some reasonably compressible value some reasonably compressible value" {
		t.Fatalf("got %q, err %v", dv.Inline, err)
	}
}

func TestBlobReferenceValueRoundTrip(t *testing.T) {
	h := blob.Handle{FileID: 42, OffsetBytes: 100, ValueSize: 9}
	items := []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1}, Value: EncodeIndirectValue(h)},
	}
	f, meta := buildTable(t, WriterOptions{TableID: 1}, items)
	if len(meta.BlobRefs) != 0 {
		t.Fatalf("Writer.Finish should not synthesize blob refs without an explicit AddBlobReference call")
	}
	r, err := NewReader(f, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, val, ok, err := r.Get([]byte("a"), base.SeqNumMax)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	dv, err := DecodeValue(val)
	if err != nil || dv.Ref == nil || *dv.Ref != h {
		t.Fatalf("got %+v, err %v", dv.Ref, err)
	}
}

func TestMultiWriterRotatesOnTargetSize(t *testing.T) {
	var created []*memFile
	factory := func() (uint64, WritableFile, error) {
		f := &memFile{}
		created = append(created, f)
		return uint64(len(created)), f, nil
	}
	mw := NewMultiWriter(factory, WriterOptions{BlockSize: 1}, 32)
	for i := 0; i < 50; i++ {
		kvv := kv(string(rune('a'+i%26))+string(rune(i)), i, base.ValueKindSet, "some value bytes")
		if err := mw.Add(kvv.Key, kvv.Value); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	metas, err := mw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(metas) < 2 {
		t.Fatalf("expected multiple rotated outputs, got %d", len(metas))
	}
	for i, m := range metas {
		if m.TableID != uint64(i+1) {
			t.Fatalf("output %d has table id %d, want %d", i, m.TableID, i+1)
		}
	}
}

func TestDecodeTrailerRejectsBadMagic(t *testing.T) {
	raw := make([]byte, TrailerSize)
	_, err := DecodeTrailer(raw)
	if err == nil {
		t.Fatalf("a zeroed trailer has no magic and should fail to decode")
	}
}
