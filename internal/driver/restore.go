// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"os"

	"github.com/pkg/errors"

	"github.com/aerospike/asmt/internal/group"
	"github.com/aerospike/asmt/internal/ioqueue"
	"github.com/aerospike/asmt/internal/segfile"
	"github.com/aerospike/asmt/internal/segment"
)

// Restore executes one validated group's restore pass: create each member's
// shared-memory segment exclusively, attach it read-write, open its source
// file, submit the transfer to the I/O Scheduler, optionally cross-check
// CRCs, and either commit the new segments or destroy them on any failure.
func Restore(g group.Group[segfile.File], opts Options) error {
	members := g.OrderedMembers()
	if len(members) == 0 {
		return nil
	}

	if opts.Analyze {
		for _, line := range AnalyzeRestore(g, opts) {
			logAnalyzeLine(line)
		}
		return nil
	}

	guard := NewGuard()
	defer guard.Release()

	descs := make([]*ioqueue.Descriptor, 0, len(members))
	for _, m := range members {
		d, err := prepareRestoreDescriptor(m, guard)
		if err != nil {
			return errors.Wrapf(err, "prepare restore descriptor for key %08x", m.Raw)
		}
		descs = append(descs, d)
	}

	sched := ioqueue.NewScheduler(descs, opts.Verbose)
	if err := sched.Run(opts.MaxParallelism); err != nil {
		return errors.Wrapf(err, "namespace-id %d restore", g.NamespaceID)
	}

	if opts.ComputeCRC32 {
		if err := crossCheckRestore(members, descs); err != nil {
			return errors.Wrapf(err, "namespace-id %d restore CRC cross-check", g.NamespaceID)
		}
	}

	guard.Commit()
	return nil
}

// prepareRestoreDescriptor creates m's destination segment exclusively,
// attaches it read-write, and opens its source file read-only, per
// SPEC_FULL.md §4.5 step 1.
func prepareRestoreDescriptor(m segfile.File, guard *Guard) (*ioqueue.Descriptor, error) {
	shmid, err := segment.CreateExclusive(m.Key.Encode(), m.Segsz, m.Mode)
	if err != nil {
		return nil, errors.Wrapf(err, "create segment for key %08x", m.Raw)
	}
	guard.TrackCreatedSegment(shmid)

	mem, err := segment.AttachReadWrite(shmid)
	if err != nil {
		return nil, errors.Wrapf(err, "attach shmid %d read-write", shmid)
	}
	guard.TrackAttached(mem)

	fh, err := os.Open(m.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open source file %q", m.Path)
	}
	guard.TrackFile(fh)

	return &ioqueue.Descriptor{
		Key:         m.Key,
		Write:       false,
		Compressed:  m.Compressed,
		File:        fh,
		Mem:         mem,
		ShmID:       shmid,
		UID:         m.UID,
		GID:         m.GID,
		Mode:        m.Mode,
		ExpectSegsz: m.Segsz,
	}, nil
}

// AnalyzeRestore returns the planned-operation lines SPEC_FULL.md §4.5's
// analyze mode prints in place of performing any I/O.
func AnalyzeRestore(g group.Group[segfile.File], opts Options) []string {
	var lines []string
	for _, m := range g.OrderedMembers() {
		lines = append(lines, analyzeLine("restore", m.Key.Encode(), m.Segsz, m.Path, m.Compressed, opts.ComputeCRC32))
	}
	return lines
}
