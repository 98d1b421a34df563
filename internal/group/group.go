// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package group assembles a sorted sequence of records — shared-memory
// segments on backup, on-disk files on restore — into namespace groups and
// validates each one for structural completeness before the Operation
// Driver is allowed to touch it.
package group

import (
	stderrors "errors"
	"sort"

	"github.com/pkg/errors"

	"github.com/aerospike/asmt/internal/key"
)

// Member is the minimal view the Grouper needs of a Segment or File record.
// internal/segment.Segment and internal/segfile.File both satisfy it.
type Member interface {
	GroupKey() key.Key
	GroupNamespaceName() string
}

// Group is one assembled, structurally-validated namespace group. Each
// field is nil/empty when that role is absent, per SPEC_FULL.md §3.
type Group[M Member] struct {
	Instance      uint8
	NamespaceID   uint8
	NamespaceName string

	Base           M
	HasBase        bool
	TreeIndex      M
	HasTreeIndex   bool
	PrimaryStages  []M
	Meta           M
	HasMeta        bool
	SecondaryStages []M
	DataStages     []M
}

// Config bounds the version-compatibility window the Grouper enforces.
// SPEC_FULL.md §4.3 requires this be a configurable pair, not a constant.
type Config struct {
	VersionMin uint32
	VersionMax uint32
}

// DefaultConfig matches the compatibility window named in SPEC_FULL.md §4.3.
var DefaultConfig = Config{VersionMin: 10, VersionMax: 12}

// Build assembles members (already sorted ascending by key, as Inventory
// guarantees) into groups, one per distinct (instance, namespace-id) base
// record encountered, plus any orphan data-stage sets. It does not perform
// backup/restore sanity checks — see ValidateBackup/ValidateRestore.
//
// A structural failure in one (instance, namespace-id) bucket (multiple
// bases, missing tree-index, non-contiguous stages, secondary stages with
// no meta) is a Kind-3 validation failure (SPEC_FULL.md §7): it fails that
// one candidate group but must not prevent the caller from trying the next
// namespace. Build therefore never aborts the whole call on a bad bucket —
// it skips it, folds its error into the returned error via errors.Join, and
// still returns every other bucket's successfully-assembled group. Callers
// that need to report per-namespace failures should log the returned error
// (it unwraps to one error per failed bucket) and otherwise proceed with the
// returned groups exactly as if Build had succeeded outright.
func Build[M Member](members []M) ([]Group[M], error) {
	byInstanceNS := make(map[[2]uint8][]M)
	var dataByInstanceName = make(map[uint8]map[string][]M)

	for _, m := range members {
		k := m.GroupKey()
		if k.Class == key.Data {
			if dataByInstanceName[k.Instance] == nil {
				dataByInstanceName[k.Instance] = make(map[string][]M)
			}
			name := m.GroupNamespaceName()
			dataByInstanceName[k.Instance][name] = append(dataByInstanceName[k.Instance][name], m)
			continue
		}
		bucket := [2]uint8{k.Instance, k.NamespaceID}
		byInstanceNS[bucket] = append(byInstanceNS[bucket], m)
	}

	type instanceName struct {
		instance uint8
		name     string
	}

	var groups []Group[M]
	var buildErrs []error
	handledData := make(map[instanceName]bool)

	for bucket, members := range byInstanceNS {
		g, err := assembleOne(bucket[0], bucket[1], members)
		if err != nil {
			buildErrs = append(buildErrs, err)
			continue
		}

		if !g.HasBase {
			// No (filtered-in) base record for this instance/namespace-id:
			// assembly is only ever triggered by encountering a base
			// record (SPEC_FULL.md §4.3). Any treex/stage/meta members
			// that landed in this bucket belong to a namespace the caller
			// filtered out by name — segment.List/segfile.List only apply
			// the name filter to base/data records, so those stray
			// non-base members pass straight through the filter and must
			// not be turned into a group of their own.
			continue
		}

		if stages, ok := dataByInstanceName[g.Instance][g.NamespaceName]; ok {
			g.DataStages = stages
			handledData[instanceName{g.Instance, g.NamespaceName}] = true
		}

		groups = append(groups, g)
	}

	// Orphan data path: a namespace name with data stages but no base.
	for inst, byName := range dataByInstanceName {
		for name, stages := range byName {
			if handledData[instanceName{inst, name}] {
				continue
			}
			groups = append(groups, Group[M]{
				Instance:      inst,
				NamespaceName: name,
				DataStages:    stages,
			})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Instance != groups[j].Instance {
			return groups[i].Instance < groups[j].Instance
		}
		return groups[i].NamespaceID < groups[j].NamespaceID
	})

	return groups, stderrors.Join(buildErrs...)
}

// assembleOne runs the per-group algorithm of SPEC_FULL.md §4.3 over the
// members sharing one (instance, namespace-id).
func assembleOne[M Member](instance, nsid uint8, members []M) (Group[M], error) {
	g := Group[M]{Instance: instance, NamespaceID: nsid}

	var bases, treex, meta []M
	for _, m := range members {
		k := m.GroupKey()
		switch {
		case k.Class == key.Primary && k.IsBase():
			bases = append(bases, m)
		case k.Class == key.Primary && k.Role == key.RoleTreeIndex:
			treex = append(treex, m)
		case k.Class == key.Secondary && k.IsBase():
			meta = append(meta, m)
		case k.Class == key.Primary && k.Role == key.RoleStage:
			g.PrimaryStages = append(g.PrimaryStages, m)
		case k.Class == key.Secondary && k.Role == key.RoleStage:
			g.SecondaryStages = append(g.SecondaryStages, m)
		}
	}

	if len(bases) == 1 {
		g.Base = bases[0]
		g.HasBase = true
		g.NamespaceName = bases[0].GroupNamespaceName()
	} else if len(bases) > 1 {
		return Group[M]{}, errors.Errorf("instance %d namespace-id %d: %d base records, expected exactly one", instance, nsid, len(bases))
	}

	if !g.HasBase {
		// No base: this bucket is degenerate (orphan primary stages/meta
		// with no root). The caller's orphan-data handling is separate;
		// this case is reported so the caller can decide whether it's an
		// error or simply nothing to do.
		return g, nil
	}

	if len(treex) != 1 {
		return Group[M]{}, errors.Errorf("namespace-id %d: %d tree-index records, expected exactly one", nsid, len(treex))
	}
	g.TreeIndex = treex[0]
	g.HasTreeIndex = true

	if err := requireContiguousStages(g.PrimaryStages, nsid, "primary"); err != nil {
		return Group[M]{}, err
	}

	if len(meta) == 1 {
		g.Meta = meta[0]
		g.HasMeta = true
		if err := requireContiguousStages(g.SecondaryStages, nsid, "secondary"); err != nil {
			return Group[M]{}, err
		}
	} else if len(meta) > 1 {
		return Group[M]{}, errors.Errorf("namespace-id %d: %d meta records, expected zero or one", nsid, len(meta))
	} else if len(g.SecondaryStages) > 0 {
		return Group[M]{}, errors.Errorf("namespace-id %d: secondary stages present with no meta record", nsid)
	}

	return g, nil
}

// requireContiguousStages sorts stages by ordinal and checks that they form
// the contiguous set 0x100..0x100+N-1, per the well-formedness rule in
// SPEC_FULL.md §3.
func requireContiguousStages[M Member](stages []M, nsid uint8, role string) error {
	if len(stages) == 0 {
		return errors.Errorf("namespace-id %d: no %s stages found", nsid, role)
	}

	sort.Slice(stages, func(i, j int) bool {
		return stages[i].GroupKey().Stage < stages[j].GroupKey().Stage
	})

	for i, m := range stages {
		want := key.StageBase + uint16(i)
		if m.GroupKey().Stage != want {
			return errors.Errorf("namespace-id %d: %s stage ordinals not contiguous from %#x: got %#x at position %d",
				nsid, role, key.StageBase, m.GroupKey().Stage, i)
		}
	}

	return nil
}
