// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aerospike/asmt/internal/key"
)

func TestFilterNamespaceAllowed(t *testing.T) {
	f := Filter{}
	assert.True(t, f.namespaceAllowed("anything"))

	f = Filter{NamespaceNames: map[string]bool{"test": true}}
	assert.True(t, f.namespaceAllowed("test"))
	assert.False(t, f.namespaceAllowed("other"))
}

func TestNulTerminated(t *testing.T) {
	assert.Equal(t, "test", nulTerminated([]byte("test\x00\x00\x00")))
	assert.Equal(t, "test", nulTerminated([]byte("test")))
	assert.Equal(t, "", nulTerminated([]byte{0, 0, 0}))
}

func TestReadNamespaceNameOffsets(t *testing.T) {
	base := make([]byte, namespaceOffsetBase+namespaceLen)
	copy(base[namespaceOffsetBase:], "bar\x00")
	got := readNamespaceName(base, key.Key{Class: key.Primary, Role: key.RoleBaseOrMeta})
	assert.Equal(t, "bar", got)

	data := make([]byte, namespaceOffsetData+namespaceLen)
	copy(data[namespaceOffsetData:], "foo\x00")
	got = readNamespaceName(data, key.Key{Class: key.Data, Role: key.RoleBaseOrMeta})
	assert.Equal(t, "foo", got)
}

func TestReadNamespaceNameTooShortReturnsEmpty(t *testing.T) {
	short := make([]byte, 4)
	got := readNamespaceName(short, key.Key{Class: key.Data, Role: key.RoleBaseOrMeta})
	assert.Equal(t, "", got)
}

func TestSortByKeyAscending(t *testing.T) {
	segs := []Segment{
		{Raw: 0xAE201010},
		{Raw: 0xAE101010},
		{Raw: 0xAE101000},
	}
	sortByKey(segs)
	assert.Equal(t, uint32(0xAE101000), segs[0].Raw)
	assert.Equal(t, uint32(0xAE101010), segs[1].Raw)
	assert.Equal(t, uint32(0xAE201010), segs[2].Raw)
}
