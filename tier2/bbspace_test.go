// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"testing"

	"github.com/go-interpreter/tier2/specops"
)

func TestBBSpaceEmitAndAt(t *testing.T) {
	s := NewBBSpace(8)
	ref := s.Emit(CodeUnit{Op: specops.OpLoadFast, Arg: 1})
	got := s.At(ref)
	if got.Op != specops.OpLoadFast || got.Arg != 1 {
		t.Fatalf("At(ref) = %+v, want {Op: OpLoadFast, Arg: 1}", got)
	}
}

func TestBBSpaceNextSkipsCacheSlots(t *testing.T) {
	s := NewBBSpace(8)
	ref := s.Emit(CodeUnit{Op: specops.OpPopJumpIfFalse, Cache: make([]uint16, 2)})
	s.Emit(CodeUnit{Op: specops.OpReturnValue})
	next := s.Next(ref)
	if next.Offset != ref.Offset+3 {
		t.Fatalf("Next offset = %d, want %d", next.Offset, ref.Offset+3)
	}
	if got := s.At(next).Op; got != specops.OpReturnValue {
		t.Fatalf("At(Next(ref)).Op = %v, want OpReturnValue", got)
	}
}

func TestBBSpacePatchPreservesCache(t *testing.T) {
	s := NewBBSpace(8)
	ref := s.Emit(CodeUnit{Op: specops.OpPopJumpIfFalse, Cache: []uint16{7, 9}})
	s.Patch(ref, specops.OpJumpBackward, 3)
	got := s.At(ref)
	if got.Op != specops.OpJumpBackward || got.Arg != 3 {
		t.Fatalf("At(ref) after Patch = %+v, want {Op: OpJumpBackward, Arg: 3}", got)
	}
	if got.Cache[0] != 7 || got.Cache[1] != 9 {
		t.Fatalf("Patch disturbed cache slots: got %v, want [7 9]", got.Cache)
	}
}

func TestBBSpacePatchCache(t *testing.T) {
	s := NewBBSpace(8)
	ref := s.Emit(CodeUnit{Op: specops.OpPopJumpIfFalse, Cache: make([]uint16, 1)})
	s.PatchCache(ref, 0, 42)
	if got := s.At(ref).Cache[0]; got != 42 {
		t.Fatalf("Cache[0] = %d, want 42", got)
	}
}

func TestBBSpacePublishIsContiguous(t *testing.T) {
	s := NewBBSpace(8)
	units := []CodeUnit{
		{Op: specops.OpLoadFast, Arg: 0},
		{Op: specops.OpLoadConst, Arg: 1},
		{Op: specops.OpReturnValue},
	}
	ref := s.Publish(units)
	cur := ref
	for i, want := range units {
		got := s.At(cur)
		if got.Op != want.Op || got.Arg != want.Arg {
			t.Fatalf("unit %d = %+v, want %+v", i, got, want)
		}
		cur = s.Next(cur)
	}
}

func TestBBSpaceGrowsNewSegmentWhenFull(t *testing.T) {
	s := NewBBSpace(2)
	first := s.Emit(CodeUnit{Op: specops.OpLoadFast})
	s.Emit(CodeUnit{Op: specops.OpLoadFast})
	// third unit must roll over into a new segment rather than corrupt
	// the first segment's already-handed-out CodeRef.
	third := s.Emit(CodeUnit{Op: specops.OpReturnValue})
	if third.Segment == first.Segment {
		t.Fatalf("third unit landed in the same segment as the first; want a rollover")
	}
	if got := s.At(first).Op; got != specops.OpLoadFast {
		t.Fatalf("first CodeRef was invalidated by the rollover: At(first) = %v", got)
	}
}

func TestBBSpaceReserveGrowsSegmentSizeForOversizedBB(t *testing.T) {
	s := NewBBSpace(2)
	units := make([]CodeUnit, 5)
	for i := range units {
		units[i] = CodeUnit{Op: specops.OpLoadFast, Arg: uint32(i)}
	}
	ref := s.Publish(units)
	cur := ref
	for i := range units {
		if got := s.At(cur).Arg; got != uint32(i) {
			t.Fatalf("unit %d Arg = %d, want %d", i, got, i)
		}
		cur = s.Next(cur)
	}
}
