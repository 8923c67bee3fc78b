// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wal

import (
	"path/filepath"
	"testing"

	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

func TestAppendAndReplayPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000001.wal")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []base.InternalValue{
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 1, Kind: base.ValueKindSet}, Value: []byte("1")},
		{Key: base.InternalKey{UserKey: base.UserKey("b"), SeqNum: 2, Kind: base.ValueKindSet}, Value: []byte("2")},
		{Key: base.InternalKey{UserKey: base.UserKey("a"), SeqNum: 3, Kind: base.ValueKindTombstone}},
	}
	for _, v := range want {
		if err := w.Append(v); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []base.InternalValue
	err = Replay(path, func(v base.InternalValue) error {
		got = append(got, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i].Key.UserKey) != string(want[i].Key.UserKey) ||
			got[i].Key.SeqNum != want[i].Key.SeqNum ||
			got[i].Key.Kind != want[i].Key.Kind ||
			string(got[i].Value) != string(want[i].Value) {
			t.Fatalf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.wal")
	called := false
	err := Replay(path, func(base.InternalValue) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Replay of a missing file should be a no-op, got %v", err)
	}
	if called {
		t.Fatalf("fn should never be called for a missing file")
	}
}
