// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ioqueue implements the fixed-width worker pool that moves
// segments between shared memory and files: the I/O Scheduler.
package ioqueue

import (
	"os"

	"github.com/aerospike/asmt/internal/key"
)

// Descriptor is one unit of I/O work: copy one segment's bytes between a
// shared-memory attachment and a file, in one of four modes (raw/compressed
// × read/write).
type Descriptor struct {
	Key       key.Key
	Write     bool // true: memory -> file; false: file -> memory
	Compressed bool

	File *os.File
	Mem  []byte // the attached segment; len(Mem) is the segment size

	ShmID      int
	UID, GID   uint32
	Mode       uint32
	ExpectSegsz int64 // restore-side compressed reads validate against this

	// CRC32 is filled in by the I/O primitive once this descriptor's
	// transfer completes. It is computed on every transfer, whether or not
	// CRC cross-checking was requested.
	CRC32 uint32
}

// BytesTransferred is the quantity this descriptor contributes toward the
// Scheduler's decile progress accounting.
func (d *Descriptor) BytesTransferred() int64 {
	return int64(len(d.Mem))
}
