// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"context"
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aerospike/asmt/internal/gzipfile"
	"github.com/aerospike/asmt/internal/ioqueue"
	"github.com/aerospike/asmt/internal/segfile"
	"github.com/aerospike/asmt/internal/segment"
)

// crossCheckBackup recomputes each destination file's CRC32 by re-reading it
// from disk and compares it against the CRC32 the scheduler recorded during
// the transfer (SPEC_FULL.md §4.5 step 3). Members are read-only here; the
// checks share no state, so they fan out to one goroutine per descriptor
// gated by a semaphore. Once one mismatch or read failure is found, the
// errgroup context stops goroutines still waiting for a semaphore slot; a
// check that is already running completes.
func crossCheckBackup(members []segment.Segment, descs []*ioqueue.Descriptor) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sem := semaphore.NewWeighted(crossCheckWeight(len(descs)))
	eg, ctx := errgroup.WithContext(ctx)

	for i := range descs {
		i := i
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			d := descs[i]
			got, err := rereadFileCRC32(d.File.Name(), d.Compressed)
			if err != nil {
				return errors.Wrapf(err, "re-read key %08x", members[i].Raw)
			}
			if got != d.CRC32 {
				return errors.Errorf("key %08x: destination CRC32 %08x does not match transferred CRC32 %08x",
					members[i].Raw, got, d.CRC32)
			}
			return nil
		})
	}

	return eg.Wait()
}

// crossCheckRestore recomputes each restored segment's CRC32 by attaching it
// again and compares it against the CRC32 recorded during the transfer.
func crossCheckRestore(members []segfile.File, descs []*ioqueue.Descriptor) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sem := semaphore.NewWeighted(crossCheckWeight(len(descs)))
	eg, ctx := errgroup.WithContext(ctx)

	for i := range descs {
		i := i
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			d := descs[i]
			data, err := segment.ReadBody(d.ShmID, 0, len(d.Mem))
			if err != nil {
				return errors.Wrapf(err, "re-read key %08x", members[i].Raw)
			}
			got := crc32.ChecksumIEEE(data)
			if got != d.CRC32 {
				return errors.Errorf("key %08x: restored segment CRC32 %08x does not match transferred CRC32 %08x",
					members[i].Raw, got, d.CRC32)
			}
			return nil
		})
	}

	return eg.Wait()
}

// rereadFileCRC32 computes the CRC32 of path's decoded contents independent
// of whichever descriptor just wrote it: a plain read for raw files, a full
// decompress for compressed ones.
func rereadFileCRC32(path string, compressed bool) (uint32, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	h := crc32.NewIEEE()

	if !compressed {
		if _, err := io.Copy(h, fh); err != nil {
			return 0, err
		}
		return h.Sum32(), nil
	}

	r, err := gzipfile.NewReader(fh)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// crossCheckWeight sizes the cross-check semaphore at one slot per
// descriptor (at least 1), so every check may run at once; it adds no
// tunable of its own.
func crossCheckWeight(n int) int64 {
	if n < 1 {
		return 1
	}
	return int64(n)
}
