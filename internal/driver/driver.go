// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package driver implements the Operation Driver: it turns a validated
// namespace group into a prepared descriptor vector, hands it to the I/O
// Scheduler, cross-checks CRCs when asked, and guarantees cleanup-purity on
// any failure.
package driver

import (
	"fmt"
	"path/filepath"

	"github.com/aerospike/asmt/internal/key"
)

// Options carries the CLI-level settings that shape one backup or restore
// pass (SPEC_FULL.md §6).
type Options struct {
	Dir            string
	MaxParallelism int
	ComputeCRC32   bool
	Compress       bool // -z; backup only
	Analyze        bool // -a
	Verbose        bool
}

// fileName builds the destination file name for k, applying the ".gz" suffix
// only when compressed is true. fileName does not look at the role itself:
// base and meta segments are never compressed because callers pass false
// for them (see compressible).
func fileName(k key.Key, compressed bool) string {
	name := fmt.Sprintf("%08X.dat", k.Encode())
	if compressed {
		name += ".gz"
	}
	return name
}

// filePath joins dir and the file name for k.
func filePath(dir string, k key.Key, compressed bool) string {
	return filepath.Join(dir, fileName(k, compressed))
}

// compressible reports whether a member with this role is eligible for
// gzip compression on backup: base and meta segments (role 0 under
// PRIMARY/SECONDARY) are always written raw, per SPEC_FULL.md §6.
func compressible(k key.Key) bool {
	return !k.IsBase()
}
