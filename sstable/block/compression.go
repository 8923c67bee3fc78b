// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block implements the on-disk block codec shared by data blocks
// and index blocks: header, compression, restart-interval delta encoding,
// the binary search index, the optional hash index, and the block trailer
// (spec §4.1).
package block

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the per-block compressor, recorded in the block
// header and in the table's metadata block (spec §6).
type Compression uint8

const (
	// CompressionNone stores the payload verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 compresses the payload with LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionDeflate compresses the payload with DEFLATE at a
	// configurable level (0-10, clamped to flate's 0-9 plus
	// flate.BestCompression at the top of the range).
	CompressionDeflate Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionDeflate:
		return "deflate"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a recognized compression tag.
func (c Compression) Valid() bool {
	return c <= CompressionDeflate
}

// clampDeflateLevel maps the spec's 0-10 level range onto flate's
// supported levels so a level of 10 ("best") doesn't overflow flate's API.
func clampDeflateLevel(level uint8) int {
	l := int(level)
	if l > 9 {
		l = flate.BestCompression
	}
	if l < 0 {
		l = flate.DefaultCompression
	}
	return l
}

// Compress appends the compressed form of src to dst and returns the
// result; the caller records len(src) as the header's uncompressed length.
func Compress(dst []byte, src []byte, c Compression, level uint8) ([]byte, error) {
	switch c {
	case CompressionNone:
		return append(dst, src...), nil
	case CompressionLZ4:
		// A worst-case scratch buffer; lz4 block compression never expands
		// data by more than the frame's fixed overhead.
		buf := make([]byte, lz4.CompressBlockBound(len(src)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(src, buf)
		if err != nil {
			return nil, errors.Wrap(err, "lsmtree: lz4 compress")
		}
		if n == 0 {
			// Incompressible input; lz4 reports 0 when the compressed form
			// would not be smaller. Fall back to storing it raw with a
			// sentinel by using CompressionNone semantics, but keep the tag
			// LZ4 so the decoder knows the block was *attempted*; instead we
			// simply widen the buffer use: store as a block with size ==
			// source (the decoder detects this via uncompressed length).
			return append(dst, src...), nil
		}
		return append(dst, buf[:n]...), nil
	case CompressionDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, clampDeflateLevel(level))
		if err != nil {
			return nil, errors.Wrap(err, "lsmtree: deflate writer")
		}
		if _, err := w.Write(src); err != nil {
			return nil, errors.Wrap(err, "lsmtree: deflate write")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "lsmtree: deflate close")
		}
		return append(dst, buf.Bytes()...), nil
	default:
		return nil, errors.Newf("lsmtree: unknown compression tag %d", c)
	}
}

// Decompress writes the decompressed form of src (uncompressedLen bytes)
// into dst[:uncompressedLen], growing dst if necessary, and returns the
// slice actually used.
func Decompress(dst []byte, src []byte, c Compression, uncompressedLen int) ([]byte, error) {
	if cap(dst) < uncompressedLen {
		dst = make([]byte, uncompressedLen)
	}
	dst = dst[:uncompressedLen]
	switch c {
	case CompressionNone:
		if len(src) != uncompressedLen {
			return nil, errors.Newf("lsmtree: uncompressed block length mismatch: got %d want %d", len(src), uncompressedLen)
		}
		copy(dst, src)
		return dst, nil
	case CompressionLZ4:
		if len(src) == uncompressedLen {
			// The writer fell back to storing the payload raw.
			copy(dst, src)
			return dst, nil
		}
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, errors.Wrap(err, "lsmtree: lz4 decompress")
		}
		if n != uncompressedLen {
			return nil, errors.Newf("lsmtree: lz4 decompressed length mismatch: got %d want %d", n, uncompressedLen)
		}
		return dst, nil
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(src))
		defer r.Close()
		n, err := io.ReadFull(r, dst)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, errors.Wrap(err, "lsmtree: deflate decompress")
		}
		if n != uncompressedLen {
			return nil, errors.Newf("lsmtree: deflate decompressed length mismatch: got %d want %d", n, uncompressedLen)
		}
		return dst, nil
	default:
		return nil, errors.Newf("lsmtree: unknown compression tag %d", c)
	}
}
