// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package gzipfile implements the fixed-width header and gzip-wrapped body
// format used for compressed stage files on backup/restore.
package gzipfile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// MagicWrite is the magic value this package always writes.
	MagicWrite uint32 = 0x544D5341 // "ASMT"

	// magicLegacySwap is accepted on read for historical-bug tolerance: an
	// earlier writer byte-swapped the magic on some platforms.
	magicLegacySwap uint32 = 0x41534D54 // "TMSA"

	// Version is the only header version this package produces or accepts.
	Version uint32 = 1

	// HeaderSize is the fixed on-disk size of Header in bytes.
	HeaderSize = 4 + 4 + 8 + 4
)

// Header is the fixed little-endian preamble written at offset 0 of every
// compressed stage file, ahead of the gzip stream itself.
type Header struct {
	Magic   uint32
	Version uint32
	Segsz   uint64 // uncompressed segment size in bytes
	CRC32   uint32 // CRC32 (IEEE) of the uncompressed stream
}

// magicAccepted reports whether m is a magic value this package will read.
func magicAccepted(m uint32) bool {
	return m == MagicWrite || m == magicLegacySwap
}

// WriteHeader serializes h to w in the fixed wire layout.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Segsz)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	_, err := w.Write(buf[:])
	return errors.Wrap(err, "write compressed-file header")
}

// ReadHeader parses a Header from r and validates the magic and version.
// It does not validate Segsz against any expected value; callers that know
// the expected segment size should do that themselves.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, errors.Wrap(err, "read compressed-file header")
	}

	h := Header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		Segsz:   binary.LittleEndian.Uint64(buf[8:16]),
		CRC32:   binary.LittleEndian.Uint32(buf[16:20]),
	}

	if !magicAccepted(h.Magic) {
		return Header{}, errors.Errorf("compressed-file header: bad magic %#08x", h.Magic)
	}
	if h.Version != Version {
		return Header{}, errors.Errorf("compressed-file header: unsupported version %d", h.Version)
	}

	return h, nil
}
