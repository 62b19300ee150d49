// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/typeforest"
)

// Linker resolves the pendingBranch placeholders a Builder leaves behind
// into real links between published BBs. Every terminator a Builder
// emits — a branch, a type guard, or a backward-jump-target boundary —
// ends its BB without recursing into the successor; Linker is what
// builds that successor later, on demand, and patches the cache word
// that ties the two BBs together. Nothing here runs eagerly: a BB whose
// successor is never reached at runtime never gets built.
type Linker struct {
	builder *Builder
	space   *BBSpace
	reg     *Registry
}

// NewLinker returns a Linker sharing builder's BBSpace and Registry.
func NewLinker(builder *Builder, space *BBSpace, reg *Registry) *Linker {
	return &Linker{builder: builder, space: space, reg: reg}
}

// findPending locates meta's placeholder successor on the given side. A
// published BB has at most one pendingBranch per side, since it has
// exactly one terminator.
func findPending(meta *Metadata, side Side) (pendingBranch, bool) {
	for _, p := range meta.successors {
		if p.onSide == side {
			return p, true
		}
	}
	return pendingBranch{}, false
}

// resolvePending turns a pendingBranch's BB-relative site into a real
// CodeRef. Publish lays every unit of a BB out contiguously in one
// segment, so the site's width-offset from the BB's own start, added to
// the BB's now-known Tier2Start.Offset, lands on the exact unit —
// Segment never changes between the two.
func resolvePending(meta *Metadata, p pendingBranch) CodeRef {
	return CodeRef{
		Segment: meta.Tier2Start.Segment,
		Offset:  meta.Tier2Start.Offset + p.site.Offset,
	}
}

// isGuardSite reports whether the unit at ref is one of the type-guard
// opcodes, which EncodeBranchCache flags distinctly from an ordinary
// branch so the interpreter loop knows to re-dispatch through the guard
// rather than jump straight into the target BB's first unit.
func (l *Linker) isGuardSite(ref CodeRef) bool {
	op := l.space.At(ref).Op
	return op == specops.OpCheckInt || op == specops.OpCheckFloat
}

// GenerateNextBB builds (and publishes) the BB that continues meta on
// side, under the type context the Builder already computed for that
// side when it built meta. It does not patch any cache word — callers
// combine it with RewriteForwardJump/RewriteBackwardJump once the new
// BB's ID is known.
func (l *Linker) GenerateNextBB(meta *Metadata, side Side) (*Metadata, error) {
	p, ok := findPending(meta, side)
	if !ok {
		return nil, ErrNotEligible
	}
	return l.builder.Build(p.tier1Start, p.ctx)
}

// RewriteForwardJump patches meta's placeholder on side to point at
// target, an ordinary (non-loop) successor link.
func (l *Linker) RewriteForwardJump(meta *Metadata, side Side, target *Metadata) {
	p, ok := findPending(meta, side)
	if !ok {
		return
	}
	ref := resolvePending(meta, p)
	l.space.PatchCache(ref, p.slot, specops.EncodeBranchCache(target.ID, l.isGuardSite(ref)))
}

// LocateJumpBackwardsBB resolves meta's loop edge: reuse the registered
// version of the target header whose stored starting context has the
// smallest Diff against the edge's context, as long as that Diff is not
// DiffIncompatible, or else build and register a fresh one.
// reused reports which case happened, for callers that only want to
// patch the cache word on a genuinely new build.
func (l *Linker) LocateJumpBackwardsBB(meta *Metadata) (target *Metadata, reused bool, err error) {
	p, ok := findPending(meta, SideBackward)
	if !ok {
		return nil, false, ErrNotEligible
	}
	idx, ok := l.reg.IsBackwardTarget(p.tier1Start)
	if !ok {
		return nil, false, ErrNotEligible
	}
	if bbID, diff, found := l.reg.Best(idx, p.ctx); found && diff < typeforest.DiffIncompatible {
		return l.reg.Get(bbID), true, nil
	}
	newMeta, err := l.builder.Build(p.tier1Start, p.ctx)
	if err != nil {
		return nil, false, err
	}
	if err := l.reg.RegisterVersion(idx, newMeta.ID, p.ctx, p.tier1Start); err != nil {
		return nil, false, err
	}
	return newMeta, false, nil
}

// RewriteBackwardJump patches meta's loop-edge cache word to point at
// target, which LocateJumpBackwardsBB has already resolved (reused or
// freshly built). Loop edges are never flagged as type-guard sites.
func (l *Linker) RewriteBackwardJump(meta *Metadata, target *Metadata) {
	p, ok := findPending(meta, SideBackward)
	if !ok {
		return
	}
	ref := resolvePending(meta, p)
	l.space.PatchCache(ref, p.slot, specops.EncodeBranchCache(target.ID, false))
}
