// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aerospike/asmt/internal/segment"
)

// Guard is the scoped resource guard SPEC_FULL.md §5/§9 describes in place
// of the original tool's step-counter unwinding: every open file and every
// shared-memory attachment made while preparing a group's descriptors is
// tracked here, and Release always closes/detaches them. If the group's
// operation never reaches Commit, Release also undoes whatever this
// invocation created — new files on backup, new segments on restore — so a
// failed pass leaves the destination exactly as it found it.
type Guard struct {
	mu sync.Mutex

	files         []*os.File
	attached      [][]byte
	createdFiles  []string
	createdShmIDs []int

	committed bool
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TrackFile registers f to be closed by Release, regardless of outcome.
func (g *Guard) TrackFile(f *os.File) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files = append(g.files, f)
}

// TrackAttached registers mem to be detached by Release, regardless of
// outcome.
func (g *Guard) TrackAttached(mem []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attached = append(g.attached, mem)
}

// TrackCreatedFile registers path as a file this invocation created; Release
// removes it unless Commit was called first.
func (g *Guard) TrackCreatedFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdFiles = append(g.createdFiles, path)
}

// TrackCreatedSegment registers shmid as a segment this invocation created;
// Release destroys it unless Commit was called first.
func (g *Guard) TrackCreatedSegment(shmid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdShmIDs = append(g.createdShmIDs, shmid)
}

// Commit marks the operation as successful: Release will leave created
// files/segments in place instead of undoing them.
func (g *Guard) Commit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.committed = true
}

// Release closes every tracked file and detaches every tracked attachment
// unconditionally, then — only if Commit was never called — removes every
// tracked created file and destroys every tracked created segment. It is
// always safe to call, and is meant to run under defer in Backup/Restore.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.files {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warnf("close %q", f.Name())
		}
	}

	for _, mem := range g.attached {
		if err := segment.Detach(mem); err != nil {
			logrus.WithError(err).Warn("detach shared-memory segment")
		}
	}

	if g.committed {
		return
	}

	for _, path := range g.createdFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("remove %q during cleanup", path)
		}
	}

	for _, shmid := range g.createdShmIDs {
		if err := segment.Remove(shmid); err != nil {
			logrus.WithError(err).Warnf("destroy shmid %d during cleanup", shmid)
		}
	}
}
