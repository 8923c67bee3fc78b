// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import "github.com/cockroachdb/errors"

// Assemble packs an already-built uncompressed payload (item stream plus
// binary/hash indices) and its trailer into one on-disk block: header,
// compressed payload, trailer. Headers and trailers are never compressed
// (spec §4.1); the checksum is computed over the uncompressed payload.
func Assemble(payload []byte, trailer Trailer, compression Compression, level uint8, prevOffset uint64) ([]byte, error) {
	compressed, err := Compress(nil, payload, compression, level)
	if err != nil {
		return nil, err
	}
	h := Header{
		Compression:         compression,
		CompressionLevel:    level,
		Checksum:            Checksum64(payload),
		PreviousBlockOffset: prevOffset,
		DataLength:          uint32(len(compressed)),
		UncompressedLength:  uint32(len(payload)),
	}
	out := make([]byte, HeaderSize, HeaderSize+len(compressed)+TrailerSize)
	h.Encode(out[:HeaderSize])
	out = append(out, compressed...)
	trailerBytes := make([]byte, TrailerSize)
	trailer.Encode(trailerBytes)
	out = append(out, trailerBytes...)
	return out, nil
}

// Disassembled is the result of parsing one on-disk block.
type Disassembled struct {
	Header  Header
	Payload []byte
	Trailer Trailer
}

// Disassemble parses and decompresses raw into its header, decompressed
// payload, and trailer, verifying the payload checksum.
func Disassemble(raw []byte) (Disassembled, error) {
	if len(raw) < HeaderSize+TrailerSize {
		return Disassembled{}, errors.New("lsmtree: block too small")
	}
	h, err := DecodeHeader(raw[:HeaderSize])
	if err != nil {
		return Disassembled{}, err
	}
	end := HeaderSize + int(h.DataLength)
	if end+TrailerSize > len(raw) {
		return Disassembled{}, errors.New("lsmtree: truncated block payload")
	}
	compressed := raw[HeaderSize:end]
	trailer, err := DecodeTrailer(raw[end:])
	if err != nil {
		return Disassembled{}, err
	}
	payload, err := Decompress(nil, compressed, h.Compression, int(h.UncompressedLength))
	if err != nil {
		return Disassembled{}, err
	}
	if Checksum64(payload) != h.Checksum {
		return Disassembled{}, errors.WithStack(&checksumMismatchError{})
	}
	return Disassembled{Header: h, Payload: payload, Trailer: trailer}, nil
}

type checksumMismatchError struct{}

func (*checksumMismatchError) Error() string { return "lsmtree: block checksum mismatch" }
