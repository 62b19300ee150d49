// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"sort"

	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/typeforest"
)

// bbVersion is one compiled specialization of a backward-jump target.
type bbVersion struct {
	bbID       int
	ctx        *typeforest.Context
	tier1Start host.Tier1PC
}

// backwardJumpTable tracks, for every backward-jump target in a
// function, a bounded ring of the BB versions compiled for it so far.
// Mirrors Python/tier2.c's per-target version array: bounded, not a
// growable cache, because an unbounded table would let a pathological
// function force unbounded native-code growth.
type backwardJumpTable struct {
	maxVersions int
	targets     []host.Tier1PC // sorted, deduped
	versions    [][]bbVersion  // versions[i] belongs to targets[i]
}

func newBackwardJumpTable(maxVersions int) *backwardJumpTable {
	return &backwardJumpTable{maxVersions: maxVersions}
}

func (t *backwardJumpTable) setTargets(targets []host.Tier1PC) {
	dedup := make(map[host.Tier1PC]bool, len(targets))
	uniq := make([]host.Tier1PC, 0, len(targets))
	for _, pc := range targets {
		if !dedup[pc] {
			dedup[pc] = true
			uniq = append(uniq, pc)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	t.targets = uniq
	t.versions = make([][]bbVersion, len(uniq))
}

func (t *backwardJumpTable) indexOf(pc host.Tier1PC) (int, bool) {
	i := sort.Search(len(t.targets), func(i int) bool { return t.targets[i] >= pc })
	if i < len(t.targets) && t.targets[i] == pc {
		return i, true
	}
	return 0, false
}

func (t *backwardJumpTable) register(targetIdx, bbID int, ctx *typeforest.Context, tier1Start host.Tier1PC) error {
	if len(t.versions[targetIdx]) >= t.maxVersions {
		return VersionExhaustionError{TargetOffset: int(t.targets[targetIdx])}
	}
	t.versions[targetIdx] = append(t.versions[targetIdx], bbVersion{
		bbID: bbID, ctx: ctx, tier1Start: tier1Start,
	})
	return nil
}

func (t *backwardJumpTable) best(targetIdx int, ctx *typeforest.Context) (bbID int, diff int, found bool) {
	minDiff := typeforest.DiffIncompatible
	bestID := -1
	for _, v := range t.versions[targetIdx] {
		d := typeforest.Diff(ctx, v.ctx)
		if d < minDiff {
			minDiff = d
			bestID = v.bbID
		}
	}
	if bestID < 0 {
		return 0, typeforest.DiffIncompatible, false
	}
	return bestID, minDiff, true
}
