// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package wal is an example-only write-ahead log: one JSON object per
// line, fsynced on every append. It exists only so the tree facade has a
// real collaborator to recover a memtable's writes from after a crash; a
// production write-ahead log (group commit, binary framing, torn-write
// detection) is explicitly out of scope (spec §1).
package wal

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/internal/base"
)

// record is the on-disk JSON shape of one logged write.
type record struct {
	UserKey string `json:"k"`
	SeqNum  uint64 `json:"s"`
	Kind    uint8  `json:"t"`
	Value   string `json:"v,omitempty"`
}

// Writer appends InternalValues to a JSONL file, fsyncing after every
// write so a crash loses at most the in-flight append.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

// Create opens path for a fresh write-ahead log, truncating any existing
// content.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtree/wal: create %s", path)
	}
	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry and fsyncs before returning, so the caller may
// treat the write as durable once Append returns nil.
func (w *Writer) Append(v base.InternalValue) error {
	rec := record{
		UserKey: string(v.Key.UserKey),
		SeqNum:  uint64(v.Key.SeqNum),
		Kind:    uint8(v.Key.Kind),
		Value:   string(v.Value),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "lsmtree/wal: encode record")
	}
	if _, err := w.w.Write(raw); err != nil {
		return errors.Wrap(err, "lsmtree/wal: write record")
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "lsmtree/wal: write record")
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "lsmtree/wal: flush")
	}
	if err := w.f.Sync(); err != nil {
		return errors.Wrap(err, "lsmtree/wal: sync")
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Replay reads every record from path in order, calling fn for each. It is
// used at recovery to rebuild a memtable from its write-ahead log.
func Replay(path string, fn func(base.InternalValue) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "lsmtree/wal: open %s", path)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lsmtree/wal: decode record")
		}
		v := base.InternalValue{
			Key: base.InternalKey{
				UserKey: base.UserKey(rec.UserKey),
				SeqNum:  base.SeqNum(rec.SeqNum),
				Kind:    base.ValueKind(rec.Kind),
			},
			Value: []byte(rec.Value),
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}
