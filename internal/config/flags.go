// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config defines the CLI surface (SPEC_FULL.md §6): one Args struct
// populated directly by urfave/cli flag destinations, plus a Validate pass
// that enforces the range and requiredness rules a flag library alone can't
// express.
package config

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const (
	MinInstance = 0
	MaxInstance = 15

	MinParallelism = 1
	MaxParallelism = 1024
)

// Args holds the parsed value of every asmt flag.
type Args struct {
	Analyze      bool
	Backup       bool
	Restore      bool
	ComputeCRC32 bool
	Instance     int
	Names        string
	Dir          string
	Parallelism  int
	Verbose      bool
	Gzip         bool
}

// LogLevel returns the logrus level name for this invocation: -v raises it
// to debug, otherwise it stays at info.
func (a *Args) LogLevel() string {
	if a.Verbose {
		return "debug"
	}
	return "info"
}

// NamespaceNames splits the comma-separated -n value into its parts,
// dropping empty entries produced by stray commas.
func (a *Args) NamespaceNames() []string {
	var names []string
	for _, n := range strings.Split(a.Names, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// BuildFlags returns the cli.Flag set wired to write directly into args.
func BuildFlags(args *Args) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "analyze",
			Aliases:     []string{"a"},
			Usage:       "print the planned operation instead of performing it",
			Destination: &args.Analyze,
		},
		&cli.BoolFlag{
			Name:        "backup",
			Aliases:     []string{"b"},
			Usage:       "back up shared-memory segments to files",
			Destination: &args.Backup,
		},
		&cli.BoolFlag{
			Name:        "restore",
			Aliases:     []string{"r"},
			Usage:       "restore shared-memory segments from files",
			Destination: &args.Restore,
		},
		&cli.BoolFlag{
			Name:        "crc",
			Aliases:     []string{"c"},
			Usage:       "compute and cross-check CRC32 on both sides",
			Destination: &args.ComputeCRC32,
		},
		&cli.IntFlag{
			Name:        "instance",
			Aliases:     []string{"i"},
			Value:       0,
			Usage:       "filter by instance number [0,15]",
			Destination: &args.Instance,
		},
		&cli.StringFlag{
			Name:        "names",
			Aliases:     []string{"n"},
			Required:    true,
			Usage:       "comma-separated list of namespace names",
			Destination: &args.Names,
		},
		&cli.StringFlag{
			Name:        "path",
			Aliases:     []string{"p"},
			Required:    true,
			Usage:       "directory holding (or to hold) the stage files",
			Destination: &args.Dir,
		},
		&cli.IntFlag{
			Name:        "parallelism",
			Aliases:     []string{"t"},
			Value:       runtime.NumCPU(),
			Usage:       "parallelism bound [1,1024]",
			Destination: &args.Parallelism,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "verbose output",
			Destination: &args.Verbose,
		},
		&cli.BoolFlag{
			Name:        "gzip",
			Aliases:     []string{"z"},
			Usage:       "gzip the stage files on backup (ignored on restore)",
			Destination: &args.Gzip,
		},
	}
}

// NewFlags returns a fresh Args and its bound flag set.
func NewFlags() (*Args, []cli.Flag) {
	args := &Args{}
	return args, BuildFlags(args)
}

// Validate enforces the rules a flag library cannot express on its own:
// exactly one of backup/restore, range checks, and at-least-one namespace
// name.
func (a *Args) Validate() error {
	if a.Backup == a.Restore {
		return errors.New("exactly one of --backup/-b or --restore/-r is required")
	}
	if a.Instance < MinInstance || a.Instance > MaxInstance {
		return errors.Errorf("--instance %d out of range [%d,%d]", a.Instance, MinInstance, MaxInstance)
	}
	if a.Parallelism < MinParallelism || a.Parallelism > MaxParallelism {
		return errors.Errorf("--parallelism %d out of range [%d,%d]", a.Parallelism, MinParallelism, MaxParallelism)
	}
	if len(a.NamespaceNames()) == 0 {
		return errors.New("--names must list at least one namespace name")
	}
	if a.Dir == "" {
		return errors.New("--path is required")
	}
	return nil
}
