// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package group

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/asmt/internal/key"
)

type fakeMember struct {
	K  key.Key
	NS string
}

func (m fakeMember) GroupKey() key.Key          { return m.K }
func (m fakeMember) GroupNamespaceName() string { return m.NS }

func primaryStage(inst, nsid uint8, ord uint16) fakeMember {
	return fakeMember{K: key.Key{Class: key.Primary, Instance: inst, NamespaceID: nsid, Role: key.RoleStage, Stage: ord}}
}

func secondaryStage(inst, nsid uint8, ord uint16) fakeMember {
	return fakeMember{K: key.Key{Class: key.Secondary, Instance: inst, NamespaceID: nsid, Role: key.RoleStage, Stage: ord}}
}

func dataStage(inst uint8, ns string, ord uint16) fakeMember {
	return fakeMember{K: key.Key{Class: key.Data, Instance: inst, Role: key.RoleStage, Stage: ord}, NS: ns}
}

func wellFormedMembers(inst, nsid uint8, ns string) []fakeMember {
	return []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: inst, NamespaceID: nsid, Role: key.RoleBaseOrMeta}, NS: ns},
		{K: key.Key{Class: key.Primary, Instance: inst, NamespaceID: nsid, Role: key.RoleTreeIndex}},
		primaryStage(inst, nsid, key.StageBase),
		primaryStage(inst, nsid, key.StageBase+1),
		{K: key.Key{Class: key.Secondary, Instance: inst, NamespaceID: nsid, Role: key.RoleBaseOrMeta}},
		secondaryStage(inst, nsid, key.StageBase),
		dataStage(inst, ns, 0),
		dataStage(inst, ns, 1),
	}
}

func TestBuildWellFormedGroup(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")

	groups, err := Build(members)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.True(t, g.HasBase)
	assert.True(t, g.HasTreeIndex)
	assert.True(t, g.HasMeta)
	assert.Equal(t, "test", g.NamespaceName)
	assert.Len(t, g.PrimaryStages, 2)
	assert.Len(t, g.SecondaryStages, 1)
	assert.Len(t, g.DataStages, 2)
}

func TestBuildOrphanDataPath(t *testing.T) {
	members := []fakeMember{
		dataStage(0, "orphan", 0),
		dataStage(0, "orphan", 1),
	}

	groups, err := Build(members)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.False(t, groups[0].HasBase)
	assert.Equal(t, "orphan", groups[0].NamespaceName)
	assert.Len(t, groups[0].DataStages, 2)
}

func TestBuildDiscardsBucketWithNoBase(t *testing.T) {
	// Mirrors what segment.List/segfile.List produce when a caller's -n
	// filter excludes a namespace's base record but the filter never
	// touches that namespace's treex/stage/meta records (only base/data
	// records are name-filtered). Such a bucket must vanish entirely, not
	// surface as a Group with HasBase=false and populated stages.
	members := []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 2, Role: key.RoleTreeIndex}},
		primaryStage(0, 2, key.StageBase),
		{K: key.Key{Class: key.Secondary, Instance: 0, NamespaceID: 2, Role: key.RoleBaseOrMeta}},
		secondaryStage(0, 2, key.StageBase),
	}

	groups, err := Build(members)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestBuildKeepsRequestedGroupAlongsideDiscardedBucket(t *testing.T) {
	members := wellFormedMembers(0, 1, "foo")
	members = append(members,
		fakeMember{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 2, Role: key.RoleTreeIndex}},
		primaryStage(0, 2, key.StageBase),
	)

	groups, err := Build(members)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, uint8(1), groups[0].NamespaceID)
	assert.Equal(t, "foo", groups[0].NamespaceName)
}

func TestBuildRejectsMultipleBases(t *testing.T) {
	members := []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta}},
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta}},
	}
	_, err := Build(members)
	assert.Error(t, err)
}

func TestBuildKeepsWellFormedGroupAlongsideMalformedBucket(t *testing.T) {
	// Namespace-id 1 is well-formed; namespace-id 2 has two base records,
	// an assembleOne structural failure. Build must report that failure
	// without losing namespace-id 1's group (SPEC_FULL.md §7, Kind-3).
	members := wellFormedMembers(0, 1, "foo")
	members = append(members,
		fakeMember{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 2, Role: key.RoleBaseOrMeta}},
		fakeMember{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 2, Role: key.RoleBaseOrMeta}},
	)

	groups, err := Build(members)
	require.Error(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, uint8(1), groups[0].NamespaceID)
	assert.Equal(t, "foo", groups[0].NamespaceName)

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	assert.Len(t, joined.Unwrap(), 1)
}

func TestBuildRejectsMissingTreeIndex(t *testing.T) {
	members := []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta}},
		primaryStage(0, 1, key.StageBase),
	}
	_, err := Build(members)
	assert.Error(t, err)
}

func TestBuildRejectsNonContiguousPrimaryStages(t *testing.T) {
	members := []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta}},
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleTreeIndex}},
		primaryStage(0, 1, key.StageBase),
		primaryStage(0, 1, key.StageBase+2), // gap at +1
	}
	_, err := Build(members)
	assert.Error(t, err)
}

func TestBuildRejectsSecondaryStagesWithoutMeta(t *testing.T) {
	members := []fakeMember{
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta}},
		{K: key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleTreeIndex}},
		primaryStage(0, 1, key.StageBase),
		secondaryStage(0, 1, key.StageBase),
	}
	_, err := Build(members)
	assert.Error(t, err)
}

func u32Body(fields map[int64]uint32) func(fakeMember, int64, int) ([]byte, error) {
	return func(_ fakeMember, off int64, n int) ([]byte, error) {
		buf := make([]byte, n)
		binary.LittleEndian.PutUint32(buf, fields[off])
		return buf, nil
	}
}

func TestValidateBackupAcceptsWellFormedGroup(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	read := u32Body(map[int64]uint32{
		offVersion:        11,
		offShutdownStatus: 1,
		offPrimaryArena:   2,
		offSecondaryArena: 1,
	})

	err = ValidateBackup(groups[0], DefaultConfig, read)
	assert.NoError(t, err)
}

func TestValidateBackupRejectsVersionOutsideWindow(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	read := u32Body(map[int64]uint32{
		offVersion:        99,
		offShutdownStatus: 1,
		offPrimaryArena:   2,
		offSecondaryArena: 1,
	})

	err = ValidateBackup(groups[0], DefaultConfig, read)
	assert.Error(t, err)
}

func TestValidateBackupRejectsUncleanShutdown(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	read := u32Body(map[int64]uint32{
		offVersion:        11,
		offShutdownStatus: 0,
		offPrimaryArena:   2,
		offSecondaryArena: 1,
	})

	err = ValidateBackup(groups[0], DefaultConfig, read)
	assert.Error(t, err)
}

func TestValidateBackupRejectsArenaMismatch(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	read := u32Body(map[int64]uint32{
		offVersion:        11,
		offShutdownStatus: 1,
		offPrimaryArena:   5,
		offSecondaryArena: 1,
	})

	err = ValidateBackup(groups[0], DefaultConfig, read)
	assert.Error(t, err)
}

func TestAllKeysOrdering(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	keys := groups[0].AllKeys()
	require.Len(t, keys, 8)
	assert.True(t, keys[0].IsBase() && keys[0].Class == key.Primary)
	assert.Equal(t, key.RoleTreeIndex, keys[1].Role)
}

func TestOrderedMembersMatchesAllKeys(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	keys := groups[0].AllKeys()
	ordered := groups[0].OrderedMembers()
	require.Len(t, ordered, len(keys))
	for i, m := range ordered {
		assert.Equal(t, keys[i], m.GroupKey())
	}
}

func TestCollisionChecks(t *testing.T) {
	members := wellFormedMembers(0, 1, "test")
	groups, err := Build(members)
	require.NoError(t, err)

	existing := map[uint32]bool{groups[0].Base.GroupKey().Encode(): true}
	assert.Error(t, CheckDestinationCollisionFree(groups[0], existing))
	assert.NoError(t, CheckDestinationCollisionFree(groups[0], map[uint32]bool{}))
	assert.Error(t, CheckNoLiveCollision(groups[0], existing))
}
