// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package group

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/aerospike/asmt/internal/key"
)

const (
	offVersion        = 0
	offShutdownStatus = 4
	offPrimaryArena   = 2152
	offSecondaryArena = 20

	lenU32 = 4
)

// BodyReader reads a byte range out of a group member's body — live memory
// on backup, file contents on restore.
type BodyReader[M Member] func(m M, off int64, n int) ([]byte, error)

// ValidateBackup applies the backup-side sanity checks of SPEC_FULL.md §4.3
// to an assembled group: version window, clean shutdown, and arena-count
// agreement between the base/meta records and the stages actually found.
func ValidateBackup[M Member](g Group[M], cfg Config, read BodyReader[M]) error {
	if !g.HasBase {
		// Orphan data-stage groups have no base to sanity-check.
		return nil
	}

	version, err := readU32(read, g.Base, offVersion)
	if err != nil {
		return errors.Wrap(err, "read base version")
	}
	if version < cfg.VersionMin || version > cfg.VersionMax {
		return errors.Errorf("namespace-id %d: base version %d outside compatibility window [%d,%d]",
			g.NamespaceID, version, cfg.VersionMin, cfg.VersionMax)
	}

	status, err := readU32(read, g.Base, offShutdownStatus)
	if err != nil {
		return errors.Wrap(err, "read base shutdown-status")
	}
	if status != 1 {
		return errors.Errorf("namespace-id %d: base shutdown-status %d, server did not shut down cleanly", g.NamespaceID, status)
	}

	primaryArena, err := readU32(read, g.Base, offPrimaryArena)
	if err != nil {
		return errors.Wrap(err, "read base primary-arena count")
	}
	if int(primaryArena) != len(g.PrimaryStages) {
		return errors.Errorf("namespace-id %d: base declares %d primary arenas, found %d primary stages",
			g.NamespaceID, primaryArena, len(g.PrimaryStages))
	}

	if g.HasMeta {
		secondaryArena, err := readU32(read, g.Meta, offSecondaryArena)
		if err != nil {
			return errors.Wrap(err, "read meta secondary-arena count")
		}
		if int(secondaryArena) != len(g.SecondaryStages) {
			return errors.Errorf("namespace-id %d: meta declares %d secondary arenas, found %d secondary stages",
				g.NamespaceID, secondaryArena, len(g.SecondaryStages))
		}
	}

	return nil
}

// ValidateRestore applies the restore-side sanity checks: base file version
// window and arena-count agreement with the primary stage files present.
// Collision checking against live shared memory is the caller's
// responsibility (it needs a segment.List call, which this package must not
// depend on to avoid an import cycle with internal/segment's own group
// usage).
func ValidateRestore[M Member](g Group[M], cfg Config, read BodyReader[M]) error {
	if !g.HasBase {
		return nil
	}

	version, err := readU32(read, g.Base, offVersion)
	if err != nil {
		return errors.Wrap(err, "read base-file version")
	}
	if version < cfg.VersionMin || version > cfg.VersionMax {
		return errors.Errorf("namespace-id %d: base-file version %d outside compatibility window [%d,%d]",
			g.NamespaceID, version, cfg.VersionMin, cfg.VersionMax)
	}

	primaryArena, err := readU32(read, g.Base, offPrimaryArena)
	if err != nil {
		return errors.Wrap(err, "read base-file primary-arena count")
	}
	if int(primaryArena) != len(g.PrimaryStages) {
		return errors.Errorf("namespace-id %d: base file declares %d primary arenas, found %d primary stage files",
			g.NamespaceID, primaryArena, len(g.PrimaryStages))
	}

	return nil
}

// CheckDestinationCollisionFree returns an error if any key in g already
// appears among existingKeys, or, for a group with a base, if any existing
// key carries g's instance and namespace-id — the backup-side
// destination-collision check.
func CheckDestinationCollisionFree[M Member](g Group[M], existingKeys map[uint32]bool) error {
	for _, k := range g.AllKeys() {
		if existingKeys[k.Encode()] {
			return errors.Errorf("key %08x already exists at the destination", k.Encode())
		}
	}
	if g.HasBase {
		for raw := range existingKeys {
			k, err := key.Decode(raw)
			if err != nil {
				continue
			}
			if k.Instance == g.Instance && k.NamespaceID == g.NamespaceID {
				return errors.Errorf("key %08x at the destination belongs to instance %d namespace-id %d",
					raw, g.Instance, g.NamespaceID)
			}
		}
	}
	return nil
}

// CheckNoLiveCollision returns an error if any key in g already appears
// among liveKeys — the restore-side no-existing-segment check.
func CheckNoLiveCollision[M Member](g Group[M], liveKeys map[uint32]bool) error {
	for _, k := range g.AllKeys() {
		if liveKeys[k.Encode()] {
			return errors.Errorf("key %08x already exists in shared memory", k.Encode())
		}
	}
	return nil
}

// AllKeys returns every member key in the group, in descriptor-build order
// (SPEC_FULL.md §4.5 step 1): base, tree-index, primary stages, meta,
// secondary stages, data stages.
func (g Group[M]) AllKeys() []key.Key {
	var keys []key.Key
	if g.HasBase {
		keys = append(keys, g.Base.GroupKey())
	}
	if g.HasTreeIndex {
		keys = append(keys, g.TreeIndex.GroupKey())
	}
	for _, m := range g.PrimaryStages {
		keys = append(keys, m.GroupKey())
	}
	if g.HasMeta {
		keys = append(keys, g.Meta.GroupKey())
	}
	for _, m := range g.SecondaryStages {
		keys = append(keys, m.GroupKey())
	}
	for _, m := range g.DataStages {
		keys = append(keys, m.GroupKey())
	}
	return keys
}

// OrderedMembers returns every member in g in the same fixed order as
// AllKeys, but as the members themselves rather than just their keys — the
// Operation Driver builds its descriptor vector by mapping this slice
// directly to one ioqueue.Descriptor per member.
func (g Group[M]) OrderedMembers() []M {
	var members []M
	if g.HasBase {
		members = append(members, g.Base)
	}
	if g.HasTreeIndex {
		members = append(members, g.TreeIndex)
	}
	members = append(members, g.PrimaryStages...)
	if g.HasMeta {
		members = append(members, g.Meta)
	}
	members = append(members, g.SecondaryStages...)
	members = append(members, g.DataStages...)
	return members
}

func readU32[M Member](read BodyReader[M], m M, off int64) (uint32, error) {
	buf, err := read(m, off, lenU32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}
