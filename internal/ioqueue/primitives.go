// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package ioqueue

import (
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/aerospike/asmt/internal/gzipfile"
)

// rawWrite writes the whole segment to d.File at offset 0, computes its
// CRC32, and sets the file's ownership and mode to the source segment's.
// fsync is best-effort, matching the original tool's "ignore return code"
// policy for the final flush.
func rawWrite(d *Descriptor) error {
	if _, err := d.File.WriteAt(d.Mem, 0); err != nil {
		return errors.Wrap(err, "write segment data")
	}
	d.CRC32 = crc32.ChecksumIEEE(d.Mem)

	if err := d.File.Chown(int(d.UID), int(d.GID)); err != nil {
		return errors.Wrap(err, "set destination file ownership")
	}
	// unix.Fchmod, not os.File.Chmod: Go's os.FileMode remaps setuid/setgid/
	// sticky onto its own high bits and syscallMode() only translates those
	// plus Perm() back out, silently dropping any raw bit at 0o1000/0o2000/
	// 0o4000. d.Mode is the raw shm_perm.mode value and must be copied
	// verbatim.
	if err := unix.Fchmod(int(d.File.Fd()), d.Mode); err != nil {
		return errors.Wrap(err, "set destination file mode")
	}

	_ = d.File.Sync()
	return nil
}

// rawRead reads the whole segment from d.File into d.Mem, computes its
// CRC32, and applies the stored (uid, gid, mode) to the segment's
// permission structure via the caller-supplied setPerm.
func rawRead(d *Descriptor, setPerm func(shmid int, uid, gid, mode uint32) error) error {
	if _, err := d.File.ReadAt(d.Mem, 0); err != nil {
		return errors.Wrap(err, "read segment data")
	}
	d.CRC32 = crc32.ChecksumIEEE(d.Mem)

	if err := setPerm(d.ShmID, d.UID, d.GID, d.Mode); err != nil {
		return errors.Wrap(err, "restore segment permissions")
	}
	return nil
}

// compressedWrite streams d.Mem through gzip in fixed chunks, then rewrites
// the header with the final segsz/CRC32 once the stream is known.
func compressedWrite(d *Descriptor) error {
	w, err := gzipfile.NewWriter(d.File)
	if err != nil {
		return errors.Wrap(err, "open compressed destination")
	}

	for off := 0; off < len(d.Mem); off += gzipfile.ChunkSize {
		end := off + gzipfile.ChunkSize
		if end > len(d.Mem) {
			end = len(d.Mem)
		}
		if _, err := w.Write(d.Mem[off:end]); err != nil {
			return errors.Wrap(err, "compress segment chunk")
		}
	}

	h, err := w.Close()
	if err != nil {
		return errors.Wrap(err, "finalize compressed stream")
	}
	d.CRC32 = h.CRC32

	if err := d.File.Chown(int(d.UID), int(d.GID)); err != nil {
		return errors.Wrap(err, "set destination file ownership")
	}
	if err := unix.Fchmod(int(d.File.Fd()), d.Mode); err != nil {
		return errors.Wrap(err, "set destination file mode")
	}

	_ = d.File.Sync()
	return nil
}

// compressedRead validates the header against the expected segment size,
// then inflates the stream into d.Mem.
func compressedRead(d *Descriptor, setPerm func(shmid int, uid, gid, mode uint32) error) error {
	r, err := gzipfile.NewReader(d.File)
	if err != nil {
		return errors.Wrap(err, "open compressed source")
	}
	defer r.Close()

	if int64(r.Header.Segsz) != d.ExpectSegsz {
		return errors.Errorf("compressed source declares segsz %d, expected %d", r.Header.Segsz, d.ExpectSegsz)
	}

	if _, err := io.ReadFull(r, d.Mem); err != nil {
		return errors.Wrap(err, "inflate segment data")
	}
	d.CRC32 = r.ReadCRC32()

	if err := setPerm(d.ShmID, d.UID, d.GID, d.Mode); err != nil {
		return errors.Wrap(err, "restore segment permissions")
	}
	return nil
}
