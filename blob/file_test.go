// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blob

import (
	"bytes"
	"testing"
)

type memFile struct {
	bytes.Buffer
}

func (f *memFile) Close() error { return nil }

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	b := f.Bytes()
	if off >= int64(len(b)) {
		return 0, errRead("blob read past eof")
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, errRead("short read")
	}
	return n, nil
}

func (f *memFile) Size() (int64, error) { return int64(f.Len()), nil }

type errRead string

func (e errRead) Error() string { return string(e) }

func TestBlobFileWriteAndRead(t *testing.T) {
	mf := &memFile{}
	w := NewFileWriter(7, mf)

	h1, err := w.AddValue([]byte("k1"), []byte("hello world"))
	if err != nil {
		t.Fatalf("AddValue: %v", err)
	}
	h2, err := w.AddValue([]byte("k2"), bytes.Repeat([]byte("x"), 1000))
	if err != nil {
		t.Fatalf("AddValue: %v", err)
	}

	stats, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stats.ItemCount != 2 {
		t.Fatalf("ItemCount = %d, want 2", stats.ItemCount)
	}
	if stats.ValueBytes != uint64(len("hello world")+1000) {
		t.Fatalf("ValueBytes = %d", stats.ValueBytes)
	}

	r := NewFileReader(7, mf)
	v1, err := r.Get(h1)
	if err != nil {
		t.Fatalf("Get(h1): %v", err)
	}
	if string(v1) != "hello world" {
		t.Fatalf("Get(h1) = %q", v1)
	}
	v2, err := r.Get(h2)
	if err != nil {
		t.Fatalf("Get(h2): %v", err)
	}
	if len(v2) != 1000 {
		t.Fatalf("Get(h2) len = %d, want 1000", len(v2))
	}
}

func TestBlobFileReaderRejectsWrongFileID(t *testing.T) {
	mf := &memFile{}
	w := NewFileWriter(1, mf)
	h, err := w.AddValue([]byte("k"), []byte("v"))
	if err != nil {
		t.Fatalf("AddValue: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewFileReader(2, mf)
	if _, err := r.Get(h); err == nil {
		t.Fatalf("expected an error resolving a handle for a different file id")
	}
}

func TestBlobFileDetectsCorruption(t *testing.T) {
	mf := &memFile{}
	w := NewFileWriter(1, mf)
	h, err := w.AddValue([]byte("k"), []byte("value"))
	if err != nil {
		t.Fatalf("AddValue: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw := mf.Bytes()
	raw[len(raw)-1] ^= 0xff // flip a byte inside the trailing checksum

	r := NewFileReader(1, mf)
	if _, err := r.Get(h); err == nil {
		t.Fatalf("expected corruption to be detected")
	}
}
