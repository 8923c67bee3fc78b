// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/fjall-rs/lsm-tree-sub003/blob"
)

// encodeVersionSkeleton serializes the structural part of a version that
// is not reconstructible by re-opening table/blob files: the level/run/
// table-id topology, the live blob-file set, and the fragmentation map
// (spec §4.9: "tables (level count; for each level, run count; for each
// run, ordered table-ids), blob_files (ordered blob-file ids),
// blob_gc_stats (fragmentation map)").
//
// Per-table metadata (key range, counts, checksums) is not duplicated
// here; it is recovered by opening each referenced table file and reading
// its own metadata block, per the recovery procedure in spec §4.9.
func encodeVersionSkeleton(v *Version) []byte {
	buf := make([]byte, 0, 256)

	// tables section
	buf = binary.AppendUvarint(buf, uint64(len(v.Levels)))
	for _, l := range v.Levels {
		buf = binary.AppendUvarint(buf, uint64(len(l.Runs)))
		for _, r := range l.Runs {
			buf = binary.AppendUvarint(buf, uint64(len(r.Tables)))
			for _, t := range r.Tables {
				buf = binary.AppendUvarint(buf, t.TableID)
			}
		}
	}

	// blob_files section
	ids := v.Fragmentation.FileIDs()
	buf = binary.AppendUvarint(buf, uint64(len(v.BlobFiles)))
	for id, info := range v.BlobFiles {
		buf = binary.AppendUvarint(buf, id)
		buf = binary.AppendUvarint(buf, info.TotalBytes)
		buf = binary.AppendUvarint(buf, info.TotalItems)
		buf = binary.AppendUvarint(buf, info.CreationTime)
		buf = binary.AppendUvarint(buf, info.ChecksumLo)
		buf = binary.AppendUvarint(buf, info.ChecksumHi)
	}

	// blob_gc_stats section
	buf = binary.AppendUvarint(buf, uint64(len(ids)))
	for _, id := range ids {
		f := v.Fragmentation.Get(id)
		buf = binary.AppendUvarint(buf, id)
		buf = binary.AppendUvarint(buf, f.StaleItems)
		buf = binary.AppendUvarint(buf, f.StaleBytes)
	}

	return buf
}

// decodeVersionSkeleton parses a version file's payload, returning a
// Version whose TableMetadata entries carry only TableID: the caller
// (Recover) is responsible for filling in the rest by opening each
// table's own metadata block.
func decodeVersionSkeleton(data []byte) (*Version, error) {
	pos := 0
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return 0, errors.New("lsmtree: truncated version file")
		}
		pos += n
		return v, nil
	}

	v := &Version{
		BlobFiles:     make(map[uint64]BlobFileInfo),
		Fragmentation: blob.NewFragmentationMap(),
	}

	numLevels, err := readUvarint()
	if err != nil {
		return nil, err
	}
	v.Levels = make([]Level, numLevels)
	for li := range v.Levels {
		numRuns, err := readUvarint()
		if err != nil {
			return nil, err
		}
		v.Levels[li].Runs = make([]Run, numRuns)
		for ri := range v.Levels[li].Runs {
			numTables, err := readUvarint()
			if err != nil {
				return nil, err
			}
			tables := make([]*TableMetadata, numTables)
			for ti := range tables {
				id, err := readUvarint()
				if err != nil {
					return nil, err
				}
				tables[ti] = &TableMetadata{TableID: id}
			}
			v.Levels[li].Runs[ri] = Run{Tables: tables}
		}
	}

	numBlobFiles, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numBlobFiles; i++ {
		id, err := readUvarint()
		if err != nil {
			return nil, err
		}
		var info BlobFileInfo
		info.FileID = id
		if info.TotalBytes, err = readUvarint(); err != nil {
			return nil, err
		}
		if info.TotalItems, err = readUvarint(); err != nil {
			return nil, err
		}
		if info.CreationTime, err = readUvarint(); err != nil {
			return nil, err
		}
		if info.ChecksumLo, err = readUvarint(); err != nil {
			return nil, err
		}
		if info.ChecksumHi, err = readUvarint(); err != nil {
			return nil, err
		}
		v.BlobFiles[id] = info
	}

	numGC, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numGC; i++ {
		id, err := readUvarint()
		if err != nil {
			return nil, err
		}
		items, err := readUvarint()
		if err != nil {
			return nil, err
		}
		bytesVal, err := readUvarint()
		if err != nil {
			return nil, err
		}
		v.Fragmentation.Register(id)
		v.Fragmentation.AddStaleBatch(id, items, bytesVal)
	}

	return v, nil
}

// currentPointerSize is the fixed 8-byte little-endian version id stored
// in the current file (spec §4.9, "an 8-byte little-endian value").
const currentPointerSize = 8

func encodeCurrentPointer(versionID uint64) []byte {
	buf := make([]byte, currentPointerSize)
	binary.LittleEndian.PutUint64(buf, versionID)
	return buf
}

func decodeCurrentPointer(data []byte) (uint64, error) {
	if len(data) != currentPointerSize {
		return 0, errors.New("lsmtree: malformed current pointer file")
	}
	return binary.LittleEndian.Uint64(data), nil
}
