// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package segment

// CreateExclusive creates a new segment for rawKey with the given size and
// permission bits, failing if one already exists. Used by the restore-side
// Operation Driver when preparing descriptors.
func CreateExclusive(rawKey uint32, size int64, mode uint32) (int, error) {
	return shmCreateExclusive(rawKey, size, mode)
}

// AttachReadWrite attaches an existing segment for writing (restore).
func AttachReadWrite(shmid int) ([]byte, error) {
	return shmAttachReadWrite(shmid)
}

// AttachReadOnly attaches an existing segment read-only (backup).
func AttachReadOnly(shmid int) ([]byte, error) {
	return shmAttachReadOnly(shmid)
}

// Detach releases a previously attached segment.
func Detach(mem []byte) error {
	return shmDetach(mem)
}

// Remove destroys a segment, used during restore-failure cleanup to undo a
// CreateExclusive that this invocation performed.
func Remove(shmid int) error {
	return shmRemove(shmid)
}

// SetPerm applies the recorded (uid, gid, mode) to a freshly restored
// segment's permission structure.
func SetPerm(shmid int, uid, gid, mode uint32) error {
	return shmSetPerm(shmid, uid, gid, mode)
}
