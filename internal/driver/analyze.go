// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

package driver

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// analyzeLine renders one planned I/O operation as the shell-like line
// analyze mode prints instead of performing it. The line names a single
// member's transfer; it is not an asmt command line and is not executable.
func analyzeLine(op string, rawKey uint32, size int64, path string, compressed, crc bool) string {
	codec := "raw"
	if compressed {
		codec = "gzip"
	}
	return fmt.Sprintf("asmt-io %s --key=%08x --size=%d --codec=%s --crc=%t --path=%s",
		op, rawKey, size, codec, crc, path)
}

func logAnalyzeLine(line string) {
	logrus.Info(line)
}
