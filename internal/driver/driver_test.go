// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/asmt/internal/gzipfile"
	"github.com/aerospike/asmt/internal/key"
)

func TestFileNameAppendsGzSuffixOnlyWhenCompressed(t *testing.T) {
	k := key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleStage, Stage: key.StageBase}
	assert.Equal(t, "AE001100.dat", fileName(k, false))
	assert.Equal(t, "AE001100.dat.gz", fileName(k, true))
}

func TestCompressibleExcludesBaseAndMeta(t *testing.T) {
	base := key.Key{Class: key.Primary, Role: key.RoleBaseOrMeta}
	meta := key.Key{Class: key.Secondary, Role: key.RoleBaseOrMeta}
	stage := key.Key{Class: key.Primary, Role: key.RoleStage, Stage: key.StageBase}

	assert.False(t, compressible(base))
	assert.False(t, compressible(meta))
	assert.True(t, compressible(stage))
}

func TestGuardReleaseRemovesCreatedFilesOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dat")
	fh, err := os.Create(path)
	require.NoError(t, err)

	g := NewGuard()
	g.TrackFile(fh)
	g.TrackCreatedFile(path)
	g.Release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestGuardReleaseKeepsCreatedFilesAfterCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dat")
	fh, err := os.Create(path)
	require.NoError(t, err)

	g := NewGuard()
	g.TrackFile(fh)
	g.TrackCreatedFile(path)
	g.Commit()
	g.Release()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestGuardReleaseClosesFilesRegardlessOfCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dat")
	fh, err := os.Create(path)
	require.NoError(t, err)

	g := NewGuard()
	g.TrackFile(fh)
	g.Commit()
	g.Release()

	assert.Error(t, fh.Close()) // already closed by Release
}

func TestAnalyzeLineFormat(t *testing.T) {
	line := analyzeLine("backup", 0xAE100100, 4096, "/dest/AE100100.dat", false, true)
	assert.Contains(t, line, "backup")
	assert.Contains(t, line, "ae100100")
	assert.Contains(t, line, "codec=raw")
	assert.Contains(t, line, "crc=true")
}

func TestRereadFileCRC32Raw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dat")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	got, err := rereadFileCRC32(path, false)
	require.NoError(t, err)
	assert.NotZero(t, got)
}

func TestRereadFileCRC32Compressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dat.gz")

	fh, err := os.Create(path)
	require.NoError(t, err)
	w, err := gzipfile.NewWriter(fh)
	require.NoError(t, err)
	payload := []byte("hello compressed world")
	_, err = w.Write(payload)
	require.NoError(t, err)
	h, err := w.Close()
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	got, err := rereadFileCRC32(path, true)
	require.NoError(t, err)
	assert.Equal(t, h.CRC32, got)
}

func TestCrossCheckWeightAtLeastOne(t *testing.T) {
	assert.Equal(t, int64(1), crossCheckWeight(0))
	assert.Equal(t, int64(3), crossCheckWeight(3))
}
