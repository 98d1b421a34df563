// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package gzipfile

import (
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ChunkSize is the buffer size used when copying whole segments through the
// compressor/decompressor.
const ChunkSize = 1 << 20 // 1 MiB

// Writer streams a raw byte stream through gzip compression while writing
// the fixed Header at the front of the file. The header is written twice:
// once as a placeholder before any data, and again with final values once
// the stream length and checksum are known — the destination must support
// seeking back to offset 0.
type Writer struct {
	dst     io.WriteSeeker
	gz      *gzip.Writer
	crc     hash.Hash32
	written uint64
	closed  bool
}

// NewWriter reserves space for the header at the current position of dst
// (which must be offset 0) and returns a Writer ready to accept the raw,
// uncompressed segment bytes.
func NewWriter(dst io.WriteSeeker) (*Writer, error) {
	if err := WriteHeader(dst, Header{Magic: MagicWrite, Version: Version}); err != nil {
		return nil, errors.Wrap(err, "reserve compressed-file header")
	}

	gz, err := gzip.NewWriterLevel(dst, gzip.BestSpeed)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip writer")
	}

	return &Writer{
		dst: dst,
		gz:  gz,
		crc: crc32.NewIEEE(),
	}, nil
}

// Write compresses p and folds it into the running CRC32 of the
// uncompressed stream. Callers should feed data in chunks of roughly
// ChunkSize, as the compressed-write primitive does.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.crc.Write(p)
	if err != nil {
		return n, err
	}
	if n, err = w.gz.Write(p); err != nil {
		return n, errors.Wrap(err, "compress segment data")
	}
	w.written += uint64(n)
	return n, nil
}

// Close finishes the gzip stream and rewrites the header at offset 0 with
// the final uncompressed size and CRC32. It returns the header actually
// written.
func (w *Writer) Close() (Header, error) {
	if w.closed {
		return Header{}, errors.New("gzipfile: Writer already closed")
	}
	w.closed = true

	if err := w.gz.Close(); err != nil {
		return Header{}, errors.Wrap(err, "flush gzip stream")
	}

	h := Header{
		Magic:   MagicWrite,
		Version: Version,
		Segsz:   w.written,
		CRC32:   w.crc.Sum32(),
	}

	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return Header{}, errors.Wrap(err, "rewind to rewrite header")
	}
	if err := WriteHeader(w.dst, h); err != nil {
		return Header{}, errors.Wrap(err, "rewrite final header")
	}

	return h, nil
}

// Reader validates the fixed header and exposes the inflated byte stream
// that follows it.
type Reader struct {
	Header Header
	gz     *gzip.Reader
	crc    hash.Hash32
}

// NewReader reads and validates the header from src, then prepares the
// inflator for the gzip stream that follows.
func NewReader(src io.Reader) (*Reader, error) {
	h, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, errors.Wrap(err, "open gzip stream")
	}

	return &Reader{
		Header: h,
		gz:     gz,
		crc:    crc32.NewIEEE(),
	}, nil
}

// Read inflates the next chunk of the segment and folds it into the
// running CRC32 so ReadCRC32 is accurate once the stream is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.gz.Read(p)
	if n > 0 {
		r.crc.Write(p[:n])
	}
	return n, err
}

// ReadCRC32 returns the CRC32 of the bytes read so far.
func (r *Reader) ReadCRC32() uint32 {
	return r.crc.Sum32()
}

// Close releases the inflator. It does not close the underlying src.
func (r *Reader) Close() error {
	return r.gz.Close()
}

// DecompressPrefix decompresses at most maxInflated bytes of src's gzip
// stream, without consuming the rest, and returns the inflated prefix. It
// is used for data-file namespace-name extraction, where the directory
// scan cannot afford to inflate the whole segment per candidate file.
func DecompressPrefix(src io.Reader, maxInflated int) ([]byte, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, maxInflated)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrap(err, "inflate leading chunk")
	}
	return buf[:n], nil
}
