// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseValidArgs() *Args {
	return &Args{
		Backup:      true,
		Instance:    0,
		Names:       "test, other",
		Dir:         "/tmp/asmt",
		Parallelism: 4,
	}
}

func TestNamespaceNamesSplitsAndTrims(t *testing.T) {
	a := &Args{Names: "test, other,, third"}
	assert.Equal(t, []string{"test", "other", "third"}, a.NamespaceNames())
}

func TestValidateAcceptsWellFormedArgs(t *testing.T) {
	assert.NoError(t, baseValidArgs().Validate())
}

func TestValidateRejectsBothBackupAndRestore(t *testing.T) {
	a := baseValidArgs()
	a.Restore = true
	assert.Error(t, a.Validate())
}

func TestValidateRejectsNeitherBackupNorRestore(t *testing.T) {
	a := baseValidArgs()
	a.Backup = false
	assert.Error(t, a.Validate())
}

func TestValidateRejectsInstanceOutOfRange(t *testing.T) {
	a := baseValidArgs()
	a.Instance = 16
	assert.Error(t, a.Validate())
}

func TestValidateRejectsParallelismOutOfRange(t *testing.T) {
	a := baseValidArgs()
	a.Parallelism = 0
	assert.Error(t, a.Validate())

	a.Parallelism = 1025
	assert.Error(t, a.Validate())
}

func TestValidateRejectsEmptyNames(t *testing.T) {
	a := baseValidArgs()
	a.Names = " , ,"
	assert.Error(t, a.Validate())
}

func TestValidateRejectsEmptyPath(t *testing.T) {
	a := baseValidArgs()
	a.Dir = ""
	assert.Error(t, a.Validate())
}
