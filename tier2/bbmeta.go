// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/typeforest"
)

// Metadata describes one published basic block: where its tier-1 source
// ended, where its tier-2 code begins, and the type context it was built
// under.
type Metadata struct {
	ID         int
	Tier1End   host.Tier1PC
	Tier2Start CodeRef
	Ctx        *typeforest.Context

	// UnitCount is how many CodeUnits this BB published, so a consumer
	// walking space.Next from Tier2Start knows where to stop without
	// needing a sentinel terminator unit.
	UnitCount int

	// successors holds the CodeRef of each placeholder branch this BB
	// emitted that still needs a direct target — filled in by the
	// builder, consumed by the lazy linker.
	successors []pendingBranch
}

// pendingBranch is one not-yet-linked control-transfer slot inside a
// published BB: a CodeRef to the BB_BRANCH unit (or BB_TEST_* family),
// the tier-1 PC its target side corresponds to, and the type context the
// successor must be built under.
type pendingBranch struct {
	site       CodeRef
	slot       int // which cache word of the unit at site this edge owns
	tier1Start host.Tier1PC
	onSide     Side
	ctx        *typeforest.Context
}

// Side distinguishes a branch's "taken" outcome from its
// "fall-through"/"not-taken" outcome, since BB_BRANCH's single cache word
// can only name one successor at a time (see specops.EncodeBranchCache)
// and each is linked independently, on demand.
type Side uint8

const (
	SideFallThrough Side = iota
	SideTaken
	// SideBackward marks the loop edge a lowered JUMP_BACKWARD leaves
	// behind, kept distinct from SideFallThrough so findPending never
	// confuses a loop edge with an ordinary fall-through one. The
	// JUMP_BACKWARD_QUICK unit the builder emits where a scan reaches a
	// backward-jump target carries a SideFallThrough edge instead.
	SideBackward
)

// Registry owns every published Metadata plus the backward-jump version
// table. IDs are dense and monotonically increasing, matching the slice
// index into metas.
type Registry struct {
	metas []*Metadata
	bj    *backwardJumpTable
}

// NewRegistry returns an empty Registry whose backward-jump version ring
// holds up to maxVersions entries per target (MAX_BB_VERSIONS, default
// 10 per Python/tier2.c:15).
func NewRegistry(maxVersions int) *Registry {
	if maxVersions <= 0 {
		maxVersions = 10
	}
	return &Registry{bj: newBackwardJumpTable(maxVersions)}
}

// NextID reports the ID the next Publish call will assign.
func (r *Registry) NextID() int { return len(r.metas) }

// Publish records m, which must have been built with ID == r.NextID().
func (r *Registry) Publish(m *Metadata) {
	if m.ID != len(r.metas) {
		panic("tier2: Metadata published out of order")
	}
	r.metas = append(r.metas, m)
}

// Get returns the Metadata for id.
func (r *Registry) Get(id int) *Metadata { return r.metas[id] }

// SetBackwardTargets installs the function's backward-jump target set,
// discovered once by the host when the function was loaded.
func (r *Registry) SetBackwardTargets(targets []host.Tier1PC) {
	r.bj.setTargets(targets)
}

// IsBackwardTarget reports whether pc is one of the function's known
// backward-jump targets, and its dense index into the version table.
func (r *Registry) IsBackwardTarget(pc host.Tier1PC) (idx int, ok bool) {
	return r.bj.indexOf(pc)
}

// RegisterVersion installs a newly-built BB as a version of the
// backward-jump target at targetIdx. Returns VersionExhaustionError if
// the ring is already full.
func (r *Registry) RegisterVersion(targetIdx, bbID int, ctx *typeforest.Context, tier1Start host.Tier1PC) error {
	return r.bj.register(targetIdx, bbID, ctx, tier1Start)
}

// Best returns the version at targetIdx whose stored context has the
// smallest typeforest.Diff against ctx, or found=false if no registered
// version is compatible with ctx (including when none is registered).
func (r *Registry) Best(targetIdx int, ctx *typeforest.Context) (bbID int, diff int, found bool) {
	return r.bj.best(targetIdx, ctx)
}
