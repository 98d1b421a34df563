// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package logging configures the process-wide logrus logger.
package logging

import "github.com/sirupsen/logrus"

// SetUp parses logLevel and installs it as the active level, along with the
// full-timestamp text formatter used throughout the CLI's log lines.
func SetUp(logLevel string) error {
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
