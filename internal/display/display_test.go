// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aerospike/asmt/internal/key"
	"github.com/aerospike/asmt/internal/segfile"
	"github.com/aerospike/asmt/internal/segment"
)

func TestSegmentsRendersKeyAndNamespace(t *testing.T) {
	var buf bytes.Buffer
	Segments(&buf, []segment.Segment{
		{
			Key:           key.Key{Class: key.Primary, Instance: 0, NamespaceID: 1, Role: key.RoleBaseOrMeta},
			Raw:           0xAE001000,
			NamespaceName: "test",
			Size:          4096,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "AE001000")
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "primary")
}

func TestFilesRendersCompressionFlag(t *testing.T) {
	var buf bytes.Buffer
	Files(&buf, []segfile.File{
		{
			Key:        key.Key{Class: key.Data, Instance: 0, Role: key.RoleStage, Stage: 0},
			Raw:        0xAD000000,
			Compressed: true,
			Segsz:      8192,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "AD000000")
	assert.Contains(t, out, "true")
}
