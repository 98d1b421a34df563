// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package display renders the verbose (-v) segment/file inventory tables,
// replacing the original tool's hand-rolled draw_table/strfmt_width column
// layout with a real table-rendering library.
package display

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/aerospike/asmt/internal/segfile"
	"github.com/aerospike/asmt/internal/segment"
)

// Segments renders one row per segment: key, class, instance, namespace-id,
// namespace name, size, and ownership — the same columns
// asmt.c's display_segments prints.
func Segments(w io.Writer, segs []segment.Segment) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"key", "class", "inst", "ns-id", "namespace", "size", "uid", "gid", "mode"})

	for _, s := range segs {
		table.Append([]string{
			fmt.Sprintf("%08X", s.Raw),
			s.Key.Class.String(),
			fmt.Sprintf("%d", s.Key.Instance),
			fmt.Sprintf("%d", s.Key.NamespaceID),
			s.NamespaceName,
			fmt.Sprintf("%d", s.Size),
			fmt.Sprintf("%d", s.UID),
			fmt.Sprintf("%d", s.GID),
			fmt.Sprintf("%#o", s.Mode),
		})
	}

	table.Render()
}

// Files renders one row per destination file: key, class, instance,
// namespace name, compression, and size — the original's display_files.
func Files(w io.Writer, files []segfile.File) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"key", "class", "inst", "namespace", "compressed", "on-disk size", "segment size"})

	for _, f := range files {
		table.Append([]string{
			fmt.Sprintf("%08X", f.Raw),
			f.Key.Class.String(),
			fmt.Sprintf("%d", f.Key.Instance),
			f.NamespaceName,
			fmt.Sprintf("%t", f.Compressed),
			fmt.Sprintf("%d", f.Size),
			fmt.Sprintf("%d", f.Segsz),
		})
	}

	table.Render()
}
