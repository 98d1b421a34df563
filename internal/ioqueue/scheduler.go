// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package ioqueue

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aerospike/asmt/internal/segment"
)

// Scheduler is the fixed-width worker pool of SPEC_FULL.md §4.4: a bounded
// number of goroutines drain an ordered descriptor vector, claiming the
// next index under a shared mutex and performing the I/O outside it.
type Scheduler struct {
	descriptors []*Descriptor
	verbose     bool

	mu               sync.Mutex
	next             int
	ok               bool
	totalTransferred uint64
	totalToTransfer  uint64
	decile           uint32
}

// NewScheduler prepares a Scheduler over descriptors, which must already be
// in the fixed descriptor-vector order the Operation Driver builds.
func NewScheduler(descriptors []*Descriptor, verbose bool) *Scheduler {
	var total uint64
	for _, d := range descriptors {
		total += uint64(d.BytesTransferred())
	}
	return &Scheduler{
		descriptors:     descriptors,
		verbose:         verbose,
		ok:              true,
		totalToTransfer: total,
	}
}

// Run spawns min(len(descriptors), maxParallelism, runtime.NumCPU())
// workers (at least one) and blocks until
// every descriptor has been claimed and either completed or abandoned
// because an earlier one failed. It returns the first error encountered, or
// nil if every descriptor transferred successfully.
func (s *Scheduler) Run(maxParallelism int) error {
	if len(s.descriptors) == 0 {
		return nil
	}

	n := maxParallelism
	if n > len(s.descriptors) {
		n = len(s.descriptors)
	}
	if cpus := runtime.NumCPU(); n > cpus {
		n = cpus
	}
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	errs := make([]error, len(s.descriptors))

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(errs)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) worker(errs []error) {
	for {
		idx, ok := s.claim()
		if !ok {
			return
		}

		d := s.descriptors[idx]
		err := s.runOne(d)

		s.mu.Lock()
		if err != nil {
			errs[idx] = err
			s.ok = false
		} else {
			s.totalTransferred += uint64(d.BytesTransferred())
			s.reportProgressLocked()
		}
		s.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// claim atomically checks the ok-flag and returns the next descriptor
// index, mirroring the original's "lock, check ok, claim, unlock" sequence.
func (s *Scheduler) claim() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok || s.next >= len(s.descriptors) {
		return 0, false
	}
	idx := s.next
	s.next++
	return idx, true
}

func (s *Scheduler) runOne(d *Descriptor) error {
	setPerm := segment.SetPerm

	switch {
	case d.Write && !d.Compressed:
		return rawWrite(d)
	case d.Write && d.Compressed:
		return compressedWrite(d)
	case !d.Write && !d.Compressed:
		return rawRead(d, setPerm)
	default:
		return compressedRead(d, setPerm)
	}
}

// reportProgressLocked logs a decile progress line; caller holds s.mu, so
// this is the only place output happens under the lock, matching
// SPEC_FULL.md §5's serialization requirement.
func (s *Scheduler) reportProgressLocked() {
	if !s.verbose || s.totalToTransfer == 0 {
		return
	}

	decile := uint32((s.totalTransferred * 10) / s.totalToTransfer)
	if decile == s.decile {
		return
	}
	s.decile = decile

	logrus.Infof("transferred %d%% of data", decile*10)
}
