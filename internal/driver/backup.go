// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/aerospike/asmt/internal/group"
	"github.com/aerospike/asmt/internal/ioqueue"
	"github.com/aerospike/asmt/internal/segment"
)

// Backup executes one validated group's backup pass: attach every member
// read-only, create its destination file exclusively, submit the transfer
// to the I/O Scheduler, optionally cross-check CRCs, and either commit the
// new files or remove them on any failure.
func Backup(g group.Group[segment.Segment], opts Options) error {
	members := g.OrderedMembers()
	if len(members) == 0 {
		return nil
	}

	if opts.Analyze {
		for _, line := range AnalyzeBackup(g, opts) {
			logAnalyzeLine(line)
		}
		return nil
	}

	guard := NewGuard()
	defer guard.Release()

	descs := make([]*ioqueue.Descriptor, 0, len(members))
	for _, m := range members {
		d, err := prepareBackupDescriptor(m, opts, guard)
		if err != nil {
			return errors.Wrapf(err, "prepare backup descriptor for key %08x", m.Raw)
		}
		descs = append(descs, d)
	}

	sched := ioqueue.NewScheduler(descs, opts.Verbose)
	if err := sched.Run(opts.MaxParallelism); err != nil {
		return errors.Wrapf(err, "namespace-id %d backup", g.NamespaceID)
	}

	if opts.ComputeCRC32 {
		if err := crossCheckBackup(members, descs); err != nil {
			return errors.Wrapf(err, "namespace-id %d backup CRC cross-check", g.NamespaceID)
		}
	}

	guard.Commit()
	return nil
}

// prepareBackupDescriptor attaches m read-only and creates its destination
// file with O_EXCL, preallocating the raw case, per SPEC_FULL.md §4.5 step 1.
func prepareBackupDescriptor(m segment.Segment, opts Options, guard *Guard) (*ioqueue.Descriptor, error) {
	mem, err := segment.AttachReadOnly(m.ShmID)
	if err != nil {
		return nil, errors.Wrapf(err, "attach shmid %d read-only", m.ShmID)
	}
	guard.TrackAttached(mem)

	compressed := opts.Compress && compressible(m.Key)
	path := filePath(opts.Dir, m.Key, compressed)

	fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "create destination file %q", path)
	}
	guard.TrackFile(fh)
	guard.TrackCreatedFile(path)

	if !compressed {
		if err := unix.Fallocate(int(fh.Fd()), 0, 0, m.Size); err != nil {
			return nil, errors.Wrapf(err, "preallocate %q", path)
		}
	}

	return &ioqueue.Descriptor{
		Key:        m.Key,
		Write:      true,
		Compressed: compressed,
		File:       fh,
		Mem:        mem,
		UID:        m.UID,
		GID:        m.GID,
		Mode:       m.Mode,
	}, nil
}

// AnalyzeBackup returns the planned-operation lines SPEC_FULL.md §4.5's
// analyze mode prints in place of performing any I/O.
func AnalyzeBackup(g group.Group[segment.Segment], opts Options) []string {
	var lines []string
	for _, m := range g.OrderedMembers() {
		compressed := opts.Compress && compressible(m.Key)
		path := filePath(opts.Dir, m.Key, compressed)
		lines = append(lines, analyzeLine("backup", m.Key.Encode(), m.Size, path, compressed, opts.ComputeCRC32))
	}
	return lines
}
