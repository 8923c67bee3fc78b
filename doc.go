// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package lsmtree is the tree facade: an embeddable, MVCC, log-structured
// merge tree assembled from the memtable, sstable, manifest, compaction,
// merge, blob, cache, fs, and wal packages (spec §4.14). Tree is the only
// exported entry point; everything else in this module is a collaborator
// it wires together.
package lsmtree

// Logger receives diagnostics that are not returned as errors: currently,
// failures to remove obsolete table and blob files after a compaction.
// Compaction errors themselves are returned to the caller. The
// zero-value noopLogger is used when Options.Logger is nil. The standard
// library's *log.Logger has no Infof/Errorf methods, so it needs a small
// adapter to satisfy this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
