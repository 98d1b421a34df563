// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package key implements the bidirectional mapping between a 32-bit
// Aerospike shared-memory key and its decoded (class, instance, namespace,
// role) tuple. No other package may crack key bits itself; everything goes
// through Decode/Encode.
package key

import "github.com/pkg/errors"

// Class identifies which family of index a segment belongs to.
type Class uint8

const (
	Primary   Class = 0xAE
	Secondary Class = 0xA2
	Data      Class = 0xAD
)

func (c Class) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// Role identifies a segment's position within its namespace group.
type Role int

const (
	RoleBaseOrMeta Role = iota // role 0 under PRIMARY (base) or SECONDARY (meta); never under DATA
	RoleTreeIndex              // role 1, PRIMARY only
	RoleStage                  // role >= 0x100 under PRIMARY/SECONDARY; role in [0,0x8FF]\{1} under DATA
)

const (
	instanceShift = 20
	nsidShift     = 12

	MinInstance = 0
	MaxInstance = 15

	MinNamespaceID = 1
	MaxNamespaceID = 32

	StageBase          = 0x100
	StageMaxPrimarySec = 0x8FF
	StageMaxData       = 0x8FF
)

// Key is the fully decoded form of a 32-bit Aerospike shared-memory key.
type Key struct {
	Class       Class
	Instance    uint8
	NamespaceID uint8
	Role        Role
	Stage       uint16 // valid only when Role == RoleStage
}

// IsBase reports whether this key names a base (PRIMARY) or meta (SECONDARY)
// segment — the root of a namespace group for its class. DATA has no base of
// its own; every DATA key is a stage, including stage ordinal 0.
func (k Key) IsBase() bool {
	return k.Role == RoleBaseOrMeta
}

// Decode cracks a raw 32-bit key into its component fields, validating every
// field against the ranges in SPEC_FULL.md §3/§4.1.
func Decode(raw uint32) (Key, error) {
	class := Class(raw >> 24)
	switch class {
	case Primary, Secondary, Data:
	default:
		return Key{}, errors.Errorf("key %08x: unrecognized class byte %#02x", raw, uint8(class))
	}

	instance := uint8((raw >> instanceShift) & 0xF)
	if instance > MaxInstance {
		return Key{}, errors.Errorf("key %08x: instance %d out of range [%d,%d]", raw, instance, MinInstance, MaxInstance)
	}

	nsid := uint8((raw >> nsidShift) & 0xFF)
	if nsid < MinNamespaceID || nsid > MaxNamespaceID {
		return Key{}, errors.Errorf("key %08x: namespace-id %d out of range [%d,%d]", raw, nsid, MinNamespaceID, MaxNamespaceID)
	}

	role := uint16(raw & 0xFFF)

	k := Key{Class: class, Instance: instance, NamespaceID: nsid}

	// DATA has no base/meta slot of its own: role 0 under DATA is stage
	// ordinal 0, and the valid stage range is the much wider [0, 0x8FF]
	// rather than [0x100, 0x8FF]. Role 1 stays reserved for PRIMARY's
	// tree-index and is never a legal DATA stage ordinal.
	if class == Data {
		if role == 1 {
			return Key{}, errors.Errorf("key %08x: role 1 (tree-index) is not valid under DATA", raw)
		}
		if role > StageMaxData {
			return Key{}, errors.Errorf("key %08x: data stage ordinal %#x out of range [0,%#x]", raw, role, StageMaxData)
		}
		k.Role = RoleStage
		k.Stage = role
		return k, nil
	}

	switch {
	case role == 0:
		k.Role = RoleBaseOrMeta
	case role == 1:
		if class != Primary {
			return Key{}, errors.Errorf("key %08x: tree-index role only valid under PRIMARY, got %s", raw, class)
		}
		k.Role = RoleTreeIndex
	case role >= StageBase:
		k.Role = RoleStage
		k.Stage = role
		if role > StageMaxPrimarySec {
			return Key{}, errors.Errorf("key %08x: stage ordinal %#x out of range [%#x,%#x]", raw, role, StageBase, StageMaxPrimarySec)
		}
	default:
		return Key{}, errors.Errorf("key %08x: role %#x is neither base/meta (0), tree-index (1), nor a stage (>=0x100)", raw, role)
	}

	return k, nil
}

// Encode produces the canonical 32-bit key for k. Encode is the exact
// inverse of Decode: Decode(k.Encode()) == k for every legal k.
func (k Key) Encode() uint32 {
	var role uint32
	switch k.Role {
	case RoleBaseOrMeta:
		role = 0
	case RoleTreeIndex:
		role = 1
	case RoleStage:
		role = uint32(k.Stage)
	}

	return uint32(k.Class)<<24 |
		uint32(k.Instance)<<instanceShift |
		uint32(k.NamespaceID)<<nsidShift |
		role
}
