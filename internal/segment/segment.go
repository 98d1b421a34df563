// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package segment enumerates System V shared-memory segments belonging to
// the Aerospike key range, classifies them via internal/key, and exposes the
// sorted, filtered Segment records the Grouper/Validator consumes.
package segment

import (
	"hash/crc32"
	"sort"

	"github.com/pkg/errors"

	"github.com/aerospike/asmt/internal/key"
)

const (
	namespaceOffsetBase = 1024 // base segment: namespace name offset
	namespaceOffsetData = 12   // data segment: namespace name offset
	namespaceLen        = 32
)

// Segment describes one live shared-memory segment that passed key
// classification.
type Segment struct {
	Key   key.Key
	Raw   uint32 // the original 32-bit key, for display/filenames
	ShmID int
	UID   uint32
	GID   uint32
	Mode  uint32
	NAtt  uint64 // attach count
	Size  int64

	NamespaceName string // populated for base and data segments only
	CRC32         uint32 // valid only if requested
}

// GroupKey and GroupNamespaceName satisfy internal/group.Member.
func (s Segment) GroupKey() key.Key           { return s.Key }
func (s Segment) GroupNamespaceName() string { return s.NamespaceName }

// Filter narrows enumeration to a specific instance (required) and,
// optionally, a set of namespace names.
type Filter struct {
	Instance       uint8
	NamespaceNames map[string]bool // nil/empty means "any"
	ComputeCRC32   bool
}

func (f Filter) namespaceAllowed(name string) bool {
	if len(f.NamespaceNames) == 0 {
		return true
	}
	return f.NamespaceNames[name]
}

// List enumerates every Aerospike shared-memory segment on the host,
// classifies it, applies Filter, and returns the result sorted ascending by
// raw key. Stat errors on individual table indices are holes and are
// skipped; only an enumeration-level error (failing to learn the table
// bound) is fatal, and then no segments are returned. A nil error with an
// empty slice means nothing matched.
func List(f Filter) ([]Segment, error) {
	maxIdx, err := shmMaxIndex()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate shared-memory segments")
	}

	var segs []Segment

	for idx := 0; idx <= maxIdx; idx++ {
		seg, ok, statErr := statOne(idx, f)
		if statErr != nil {
			// Individual stat failures (holes in the table, permission
			// denied on a foreign segment, etc.) are not fatal.
			continue
		}
		if !ok {
			continue
		}
		segs = append(segs, seg)
	}

	sortByKey(segs)

	return segs, nil
}

// ExistingKeys enumerates every Aerospike-shaped key currently present in
// shared memory, regardless of instance, namespace, or attach count. The
// Operation Driver's restore-sanity check (SPEC_FULL.md §4.3 "no shared
// memory segment currently exists with any key in the group") uses this,
// since a live collision is disqualifying no matter who holds the segment.
func ExistingKeys() (map[uint32]bool, error) {
	maxIdx, err := shmMaxIndex()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate shared-memory segments")
	}

	keys := make(map[uint32]bool)
	for idx := 0; idx <= maxIdx; idx++ {
		_, desc, err := shmStatByIndex(idx)
		if err != nil {
			continue
		}
		raw := uint32(int32(desc.Perm.Key))
		if _, err := key.Decode(raw); err != nil {
			continue
		}
		keys[raw] = true
	}
	return keys, nil
}

// statOne inspects the segment at kernel table index idx. ok is false if the
// segment exists but was filtered out (wrong class, attached, wrong
// instance/namespace); err is non-nil for a failed stat or a failed
// read-only attach.
func statOne(idx int, f Filter) (Segment, bool, error) {
	shmid, desc, err := shmStatByIndex(idx)
	if err != nil {
		return Segment{}, false, err
	}

	raw := uint32(int32(desc.Perm.Key))

	k, err := key.Decode(raw)
	if err != nil {
		// Not an Aerospike-shaped key; not an error, just not ours.
		return Segment{}, false, nil
	}

	if desc.Nattch != 0 {
		// Attach-count semantics (SPEC_FULL.md §9): any non-zero attach
		// count silently excludes the segment from candidacy.
		return Segment{}, false, nil
	}

	if k.Instance != f.Instance {
		return Segment{}, false, nil
	}

	seg := Segment{
		Key:   k,
		Raw:   raw,
		ShmID: shmid,
		UID:   desc.Perm.Uid,
		GID:   desc.Perm.Gid,
		Mode:  desc.Perm.Mode,
		NAtt:  desc.Nattch,
		Size:  int64(desc.Segsz),
	}

	needsNamespaceName := k.Class != key.Secondary && k.IsBase() || k.Class == key.Data
	needsRead := needsNamespaceName || f.ComputeCRC32

	if needsRead {
		data, attachErr := shmAttachReadOnly(shmid)
		if attachErr != nil {
			return Segment{}, false, attachErr
		}
		defer shmDetach(data)

		if needsNamespaceName {
			seg.NamespaceName = readNamespaceName(data, k)
		}

		if f.ComputeCRC32 {
			seg.CRC32 = crc32.ChecksumIEEE(data)
		}
	}

	if k.Class == key.Primary && k.IsBase() && !f.namespaceAllowed(seg.NamespaceName) {
		return Segment{}, false, nil
	}
	if k.Class == key.Data && !f.namespaceAllowed(seg.NamespaceName) {
		return Segment{}, false, nil
	}

	return seg, true, nil
}

// ReadBody attaches the segment read-only, copies out the byte range
// [off, off+n), and detaches. It is used by the Grouper/Validator to read
// version, shutdown-status, and arena-count fields from live memory.
func ReadBody(shmid int, off int64, n int) ([]byte, error) {
	data, err := shmAttachReadOnly(shmid)
	if err != nil {
		return nil, err
	}
	defer shmDetach(data)

	if off < 0 || off+int64(n) > int64(len(data)) {
		return nil, errors.Errorf("shmid %d: requested range [%d,%d) exceeds segment size %d", shmid, off, off+int64(n), len(data))
	}

	out := make([]byte, n)
	copy(out, data[off:off+int64(n)])
	return out, nil
}

// readNamespaceName copies the fixed-length, NUL-padded namespace name out
// of an attached segment body at the role-dependent offset described in
// SPEC_FULL.md §6.
func readNamespaceName(data []byte, k key.Key) string {
	off := namespaceOffsetBase
	if k.Class == key.Data {
		off = namespaceOffsetData
	}
	if off+namespaceLen > len(data) {
		return ""
	}
	return nulTerminated(data[off : off+namespaceLen])
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func sortByKey(segs []Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Raw < segs[j].Raw })
}
