//go:build linux

// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package segment

import (
	"golang.org/x/sys/unix"

	"github.com/pkg/errors"
)

// shmMaxIndex returns the current upper bound (inclusive) on shared-memory
// table indices, mirroring asmt.c's `shmctl(0, SHM_INFO, &dummy)` call. The
// original reuses a `struct shmid_ds` buffer for a `SHM_INFO` query whose
// real payload (`struct shm_info`) is smaller; this does the same with
// unix.SysvShmDesc, which the kernel never overruns.
func shmMaxIndex() (int, error) {
	var dummy unix.SysvShmDesc
	max, err := unix.SysvShmCtl(0, unix.SHM_INFO, &dummy)
	if err != nil {
		return 0, errors.Wrap(err, "shmctl SHM_INFO")
	}
	return max, nil
}

// shmStatByIndex stats the shared-memory segment at kernel table index idx,
// mirroring asmt.c's `shmctl(idx, SHM_STAT, &ds)`. It returns the kernel-
// assigned shmid (the call's return value) and the descriptor.
func shmStatByIndex(idx int) (shmid int, desc unix.SysvShmDesc, err error) {
	shmid, err = unix.SysvShmCtl(idx, unix.SHM_STAT, &desc)
	if err != nil {
		return 0, unix.SysvShmDesc{}, err
	}
	return shmid, desc, nil
}

// shmAttachReadOnly attaches shmid read-only, returning a byte slice backed
// by the mapped segment. Callers must call shmDetach when done.
func shmAttachReadOnly(shmid int) ([]byte, error) {
	data, err := unix.SysvShmAttach(shmid, 0, unix.SHM_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "shmat(%d, SHM_RDONLY)", shmid)
	}
	return data, nil
}

// shmAttachReadWrite attaches shmid read-write.
func shmAttachReadWrite(shmid int) ([]byte, error) {
	data, err := unix.SysvShmAttach(shmid, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "shmat(%d)", shmid)
	}
	return data, nil
}

// shmDetach detaches a previously attached segment. Errors are reported,
// never panicked on — callers in cleanup paths should log and continue.
func shmDetach(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.SysvShmDetach(data)
}

// shmCreateExclusive creates a new segment with the given key and size,
// failing if one already exists, like asmt.c's
// `shmget(key, segsz, IPC_CREAT|IPC_EXCL|0666)` but with the caller's mode
// bits in place of the fixed 0666.
func shmCreateExclusive(shmKey uint32, size int64, mode uint32) (int, error) {
	id, err := unix.SysvShmGet(int(int32(shmKey)), int(size), unix.IPC_CREAT|unix.IPC_EXCL|int(mode))
	if err != nil {
		return 0, err
	}
	return id, nil
}

// shmRemove destroys the segment with the given shmid (IPC_RMID), used both
// during restore cleanup-on-failure and never otherwise — this tool never
// removes a segment on a success path.
func shmRemove(shmid int) error {
	var desc unix.SysvShmDesc
	_, err := unix.SysvShmCtl(shmid, unix.IPC_RMID, &desc)
	return err
}

// shmSetPerm applies the stored (uid, gid, mode) to a segment's permission
// structure, via IPC_SET, mirroring the restore-side permission restore
// described in SPEC_FULL.md §6.
func shmSetPerm(shmid int, uid, gid uint32, mode uint32) error {
	desc := unix.SysvShmDesc{
		Perm: unix.SysvIpcPerm{
			Uid:  uid,
			Gid:  gid,
			Mode: mode,
		},
	}
	_, err := unix.SysvShmCtl(shmid, unix.IPC_SET, &desc)
	return err
}
