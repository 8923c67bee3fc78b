// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/fjall-rs/lsm-tree-sub003/internal/base"

// FileFactory creates the next output file for a MultiWriter, returning
// the table id it was assigned and a writer for its bytes.
type FileFactory func() (tableID uint64, w WritableFile, err error)

// WritableFile is the minimal sink a table writer needs, closed once the
// table is finished.
type WritableFile interface {
	Write(p []byte) (int, error)
	Close() error
}

// MultiWriter wraps a Writer and rotates to a new output file whenever the
// current file exceeds a target size, producing a sorted run of tables
// (spec §4.5).
type MultiWriter struct {
	opts          WriterOptions
	factory       FileFactory
	targetSize    uint64
	cur           *Writer
	curFile       WritableFile
	finishedMetas []Meta

	closed bool
}

// NewMultiWriter creates a MultiWriter. targetSize is the number of bytes
// already written to the current file at which the next Add rotates to a
// new file.
func NewMultiWriter(factory FileFactory, opts WriterOptions, targetSize uint64) *MultiWriter {
	if targetSize == 0 {
		targetSize = 64 << 20
	}
	return &MultiWriter{opts: opts, factory: factory, targetSize: targetSize}
}

func (m *MultiWriter) rotate() error {
	if m.cur != nil {
		if err := m.finishCurrent(); err != nil {
			return err
		}
	}
	id, f, err := m.factory()
	if err != nil {
		return err
	}
	opts := m.opts
	opts.TableID = id
	m.curFile = f
	m.cur = NewWriter(f, opts)
	return nil
}

func (m *MultiWriter) finishCurrent() error {
	meta, err := m.cur.Finish()
	if err != nil {
		m.curFile.Close()
		return err
	}
	if err := m.curFile.Close(); err != nil {
		return err
	}
	m.finishedMetas = append(m.finishedMetas, meta)
	m.cur = nil
	m.curFile = nil
	return nil
}

// Add appends one internal value, rotating to a new output file first if
// the current file has grown past the target size and already holds at
// least one item.
func (m *MultiWriter) Add(key base.InternalKey, value []byte) error {
	if m.cur == nil {
		if err := m.rotate(); err != nil {
			return err
		}
	} else if m.cur.itemCount > 0 && m.cur.off >= m.targetSize {
		if err := m.rotate(); err != nil {
			return err
		}
	}
	return m.cur.Add(key, value)
}

// AddBlobReference forwards to the current output's writer.
func (m *MultiWriter) AddBlobReference(blobFileID uint64, bytes uint64) {
	if m.cur != nil {
		m.cur.AddBlobReference(blobFileID, bytes)
	}
}

// Finish closes the current output (if it has any items) and returns the
// metadata of every table produced.
func (m *MultiWriter) Finish() ([]Meta, error) {
	if m.closed {
		return m.finishedMetas, nil
	}
	m.closed = true
	if m.cur != nil && m.cur.itemCount > 0 {
		if err := m.finishCurrent(); err != nil {
			return nil, err
		}
	} else if m.cur != nil {
		m.curFile.Close()
		m.cur = nil
	}
	return m.finishedMetas, nil
}
