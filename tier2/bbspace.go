// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import "github.com/go-interpreter/tier2/specops"

// CodeUnit is one emitted tier-2 instruction plus any inline-cache words
// that immediately follow it in the issued stream (e.g. BB_BRANCH's
// branch-target cache, FOR_ITER's existing cache slot).
type CodeUnit struct {
	Op    specops.Op
	Arg   uint32
	Cache []uint16
}

// width reports how many CodeUnit slots u and its cache occupy. Inline
// caches are modeled as dedicated zero-op filler units rather than
// packed bits, so that CodeRef arithmetic stays index-based instead of
// byte-offset-based.
func (u CodeUnit) width() int { return 1 + len(u.Cache) }

// CodeRef is a stable coordinate into a BBSpace: which chained segment,
// and the offset of a CodeUnit within it. A CodeRef handed out by Emit
// remains valid for the BBSpace's entire lifetime — segments are
// appended to, never reallocated or compacted — which is the property a
// published BB's Tier2Start pointer depends on.
type CodeRef struct {
	Segment int
	Offset  int
}

// defaultSegmentSize is the bump-allocator chunk size, reused from
// wagon's exec/internal/compile.MMapAllocator chunking algorithm
// (minAllocSize there sizes a mmap'd byte region; here it sizes a plain
// []CodeUnit segment, since specialized bytecode needs no executable
// page — only the native stencil output in package stencil does).
const defaultSegmentSize = 4096

// BBSpace is the chained-segment bump allocator basic blocks are emitted
// into. Unlike a single growable slice, a BBSpace never moves code that
// has already been published: once a BB's first CodeRef is handed to a
// caller, it stays valid no matter how much more gets emitted later, in
// this segment or the next.
type BBSpace struct {
	segSize  int
	segments [][]CodeUnit
}

// NewBBSpace returns a BBSpace whose segments are segSize CodeUnits each
// (before any single oversized BB forces a larger one). segSize <= 0
// selects defaultSegmentSize.
func NewBBSpace(segSize int) *BBSpace {
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}
	return &BBSpace{
		segSize:  segSize,
		segments: [][]CodeUnit{make([]CodeUnit, 0, segSize)},
	}
}

// WaterLevel returns the coordinate the next Emit will land at.
func (s *BBSpace) WaterLevel() CodeRef {
	last := len(s.segments) - 1
	return CodeRef{Segment: last, Offset: len(s.segments[last])}
}

// Reserve ensures the current segment has room for n more CodeUnit slots
// without a BB's run splitting across segments. Builders call this once,
// up front, with an upper bound on the BB they are about to emit.
func (s *BBSpace) Reserve(n int) {
	if n > s.segSize {
		// A single BB legitimately exceeds the default chunk size on
		// rare, large traces; grow to fit rather than ever splitting a
		// BB's codeunits across two segments. Mirrors MMapAllocator's
		// oversized-request fallback to a dedicated mapping.
		s.segSize = n
	}
	last := len(s.segments) - 1
	if len(s.segments[last])+n > cap(s.segments[last]) {
		s.segments = append(s.segments, make([]CodeUnit, 0, s.segSize))
	}
}

// Emit appends one CodeUnit (and its cache slots) to the current segment
// and returns the coordinate of its first slot.
func (s *BBSpace) Emit(u CodeUnit) CodeRef {
	s.Reserve(u.width())
	last := len(s.segments) - 1
	ref := CodeRef{Segment: last, Offset: len(s.segments[last])}
	s.segments[last] = append(s.segments[last], u)
	s.segments[last] = append(s.segments[last], make([]CodeUnit, len(u.Cache))...)
	return ref
}

// Publish reserves room for an entire basic block's units in a single
// segment and appends them atomically, mirroring wagon's
// MMapAllocator.AllocateExec(code []byte): the builder assembles a BB
// into a local slice first and hands the whole thing to Publish once,
// rather than risking a mid-BB segment rollover from piecemeal Emit
// calls. Returns the CodeRef of the first unit.
func (s *BBSpace) Publish(units []CodeUnit) CodeRef {
	total := 0
	for _, u := range units {
		total += u.width()
	}
	s.Reserve(total)
	last := len(s.segments) - 1
	ref := CodeRef{Segment: last, Offset: len(s.segments[last])}
	for _, u := range units {
		s.segments[last] = append(s.segments[last], u)
		s.segments[last] = append(s.segments[last], make([]CodeUnit, len(u.Cache))...)
	}
	return ref
}

// At dereferences a CodeRef.
func (s *BBSpace) At(ref CodeRef) CodeUnit {
	return s.segments[ref.Segment][ref.Offset]
}

// Patch overwrites the Op/Arg of an already-emitted CodeUnit in place,
// without touching its cache slots — used by the lazy linker to turn a
// placeholder branch into a direct jump once both successors exist. The
// unit's width never changes, so no other CodeRef is invalidated.
func (s *BBSpace) Patch(ref CodeRef, op specops.Op, arg uint32) {
	s.segments[ref.Segment][ref.Offset].Op = op
	s.segments[ref.Segment][ref.Offset].Arg = arg
}

// PatchCache overwrites one cache word of an already-emitted CodeUnit.
func (s *BBSpace) PatchCache(ref CodeRef, slot int, word uint16) {
	s.segments[ref.Segment][ref.Offset].Cache[slot] = word
}

// Next returns the coordinate immediately following ref's unit (past its
// cache slots). Only meaningful within a single BB's contiguous run,
// which Reserve/Emit guarantee never splits across segments.
func (s *BBSpace) Next(ref CodeRef) CodeRef {
	u := s.At(ref)
	return CodeRef{Segment: ref.Segment, Offset: ref.Offset + u.width()}
}
