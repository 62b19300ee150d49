// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2_test

import (
	"testing"

	"github.com/go-interpreter/tier2"
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/hostvm"
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/stencil"
	"github.com/go-interpreter/tier2/typeforest"
)

// unitsOf walks meta's published codeunits end to end, for assertions
// that need to inspect more than just the first or last one.
func unitsOf(e *tier2.Engine, fn host.Code, meta *tier2.Metadata) []tier2.CodeUnit {
	out := make([]tier2.CodeUnit, 0, meta.UnitCount)
	ref := meta.Tier2Start
	for i := 0; i < meta.UnitCount; i++ {
		out = append(out, e.Unit(fn, ref))
		ref = e.NextRef(fn, ref)
	}
	return out
}

func warmUntilReady(t *testing.T, e *tier2.Engine, fn host.Code, pc host.Tier1PC) *tier2.Metadata {
	t.Helper()
	for i := 0; i < 16; i++ {
		if meta, ok := e.Warmup(fn, pc); ok {
			return meta
		}
	}
	t.Fatal("function never reached tier-2 within 16 warmup calls")
	return nil
}

// TestScenario_GuardLadderTargetsTheOperandThatTripped is grounded on
// tier2.c's infer_BINARY_OP: a BINARY_OP between one unknown operand and
// one already-known one must guard and refine whichever operand is
// actually unknown, not always the right-hand one. n+10, with n an
// unknown parameter and 10 a known boxed-int constant, puts the unknown
// operand on the left (deeper stack slot, depth 1) -- the exact shape
// that used to crash RefineNegative before the guard depth was threaded
// through correctly.
func TestScenario_GuardLadderTargetsTheOperandThatTripped(t *testing.T) {
	consts := hostvm.NewConsts()
	ten := consts.AddInt(10)
	instrs := []host.Instr{
		{Op: specops.OpResume},
		{Op: specops.OpLoadFast, Arg: 0},
		{Op: specops.OpLoadConst, Arg: ten},
		{Op: specops.OpBinaryOp, Arg: uint32(specops.BinAdd)},
		{Op: specops.OpReturnValue},
	}
	fn := hostvm.NewFunction(instrs, consts, 1, 3)
	fn.SetBackwardJumpTargets(hostvm.ScanBackwardJumpTargets(instrs))

	e := tier2.NewEngine()
	entry := warmUntilReady(t, e, fn, 0)

	units := unitsOf(e, fn, entry)
	guard := units[len(units)-1]
	if guard.Op != specops.OpCheckFloat {
		t.Fatalf("entry BB's terminator = %v, want OpCheckFloat", guard.Op)
	}
	if guard.Arg != 1 {
		t.Fatalf("guard Arg = %d, want 1 (the unknown left operand's stack depth, not the known right one)", guard.Arg)
	}

	// Failure successor: left is now refined to exclude float, which the
	// ladder's second pass must read back off depth 1 again, not depth 0
	// (a concretely-typed right operand) -- that mistake is exactly what
	// used to make RefineNegative panic.
	failBB, err := e.GenerateNextBB(fn, entry, tier2.SideTaken)
	if err != nil {
		t.Fatalf("GenerateNextBB(SideTaken) = %v, want nil (this used to panic in RefineNegative)", err)
	}
	failUnits := unitsOf(e, fn, failBB)
	if failUnits[0].Op != specops.OpCheckInt {
		t.Fatalf("fail successor's first unit = %v, want OpCheckInt (second-level guard on the still-unknown left operand)", failUnits[0].Op)
	}
	if failUnits[0].Arg != 1 {
		t.Fatalf("fail successor's guard Arg = %d, want 1", failUnits[0].Arg)
	}

	// Success successor: left narrows to boxed float, but the right
	// operand is still a concrete boxed int, so the two concrete types
	// mismatch and the ladder must fall back to the generic BINARY_OP --
	// not BINARY_OP_ADD_INT_REST, which would silently mistreat a float.
	passBB, err := e.GenerateNextBB(fn, entry, tier2.SideFallThrough)
	if err != nil {
		t.Fatalf("GenerateNextBB(SideFallThrough) = %v, want nil", err)
	}
	passUnits := unitsOf(e, fn, passBB)
	if passUnits[0].Op != specops.OpBinaryOp {
		t.Fatalf("pass successor's first unit = %v, want the generic OpBinaryOp", passUnits[0].Op)
	}
}

// loopWithGuardlessBody builds a minimal counting loop whose body never
// touches BINARY_OP, so the backward-jump edge under test is reached
// without also exercising the guard ladder: OpResume; a header at pc=1
// that tests the loop variable and either falls through to the body or
// exits; a body that re-stores the same local and jumps back to the
// header.
func loopWithGuardlessBody() *hostvm.Function {
	const v = 0
	consts := hostvm.NewConsts()
	instrs := []host.Instr{
		/*0*/ {Op: specops.OpResume},
		/*1*/ {Op: specops.OpLoadFast, Arg: v},
		/*2*/ {Op: specops.OpPopJumpIfFalse, Arg: 6},
		/*3*/ {Op: specops.OpLoadFast, Arg: v},
		/*4*/ {Op: specops.OpStoreFast, Arg: v},
		/*5*/ {Op: specops.OpJumpBackward, Arg: 1},
		/*6*/ {Op: specops.OpLoadFast, Arg: v},
		/*7*/ {Op: specops.OpReturnValue},
	}
	fn := hostvm.NewFunction(instrs, consts, 1, 2)
	fn.SetBackwardJumpTargets(hostvm.ScanBackwardJumpTargets(instrs))
	return fn
}

// TestScenario_BackwardJumpReusesCompatibleHeaderVersion is grounded on
// tier2.c's loop-header versioning: LocateJumpBackwardsBB must build and
// register a fresh header version the first time a loop edge is taken,
// then reuse that version (rather than building another) the next time
// it is taken under a context that is still compatible, even if not
// byte-identical -- only an incompatible context (diff == INT_MAX)
// forces a new version.
func TestScenario_BackwardJumpReusesCompatibleHeaderVersion(t *testing.T) {
	fn := loopWithGuardlessBody()

	space := tier2.NewBBSpace(4096)
	reg := tier2.NewRegistry(10)
	reg.SetBackwardTargets(fn.Bytecode().BackwardJumpTargets())
	builder := tier2.NewBuilder(fn, space, reg)
	linker := tier2.NewLinker(builder, space, reg)

	ctx := typeforest.Init(fn.NumLocals(), fn.MaxStack())
	entry, err := builder.Build(0, ctx)
	if err != nil {
		t.Fatalf("Build(entry) = %v", err)
	}

	// entry ends the instant it reaches the loop header's PC (1), with a
	// fall-through placeholder into the header itself.
	header, err := linker.GenerateNextBB(entry, tier2.SideFallThrough)
	if err != nil {
		t.Fatalf("GenerateNextBB(header) = %v", err)
	}

	// header's POP_JUMP_IF_FALSE fall-through side is the loop body.
	body, err := linker.GenerateNextBB(header, tier2.SideFallThrough)
	if err != nil {
		t.Fatalf("GenerateNextBB(body) = %v", err)
	}

	first, reused, err := linker.LocateJumpBackwardsBB(body)
	if err != nil {
		t.Fatalf("LocateJumpBackwardsBB (first) = %v", err)
	}
	if reused {
		t.Fatal("first arrival at a loop edge reported reused=true; nothing was registered yet")
	}

	again, reused, err := linker.LocateJumpBackwardsBB(body)
	if err != nil {
		t.Fatalf("LocateJumpBackwardsBB (second) = %v", err)
	}
	if !reused {
		t.Fatal("second arrival under an identical (diff==0) context reported reused=false")
	}
	if again.ID != first.ID {
		t.Fatalf("reused version ID = %d, want %d", again.ID, first.ID)
	}
}

// TestScenario_GenericReboxWhenBothNumericKindsAreExcluded drives the
// ladder one step past TestScenario_GuardLadderTargetsTheOperandThatTripped:
// once an operand's negative set has had both float and int variants
// ruled out (as happens after two successive failed guards against the
// same slot), the ladder's only remaining move is OutcomeGenericRebox,
// regardless of which depth triggered the exclusion.
func TestScenario_GenericReboxWhenBothNumericKindsAreExcluded(t *testing.T) {
	ctx := typeforest.Init(1, 2)
	left := ctx.Push(typeforest.RootNeg(typeforest.NegBoxedFloat | typeforest.NegUnboxedFloat | typeforest.NegBoxedInt | typeforest.NegSmallInt))
	right := ctx.Push(typeforest.RootPos(typeforest.TypeBoxedIntID))

	outcome, _ := typeforest.InferBinaryOp(ctx, left, right)
	if outcome != typeforest.OutcomeGenericRebox {
		t.Fatalf("InferBinaryOp outcome = %v, want OutcomeGenericRebox once both numeric kinds are excluded", outcome)
	}
}

// TestScenario_SwapAliasesTheOtherLocal exercises SWAP's Propagate case
// directly: after swapping the top two stack slots, each must alias the
// local the other one aliased before the swap, not just exchange some
// opaque internal value.
func TestScenario_SwapAliasesTheOtherLocal(t *testing.T) {
	ctx := typeforest.Init(2, 2)
	ctx.Push(typeforest.AliasNode(ctx.Local(0)))
	ctx.Push(typeforest.AliasNode(ctx.Local(1)))

	if err := typeforest.Propagate(specops.OpSwap, 2, ctx, nil); err != nil {
		t.Fatalf("Propagate(OpSwap) = %v", err)
	}

	if !ctx.SameTree(ctx.At(0), ctx.Local(0)) {
		t.Fatal("after SWAP 2, the top of stack should alias local 0 (what the bottom slot aliased before the swap)")
	}
	if !ctx.SameTree(ctx.At(1), ctx.Local(1)) {
		t.Fatal("after SWAP 2, the second slot should alias local 1 (what the top aliased before the swap)")
	}
}

// TestScenario_ForbiddenOpcodeStaysCheapOnRepeat covers both halves of
// engine.go's ineligibility path: a function containing a forbidden
// opcode never reaches tier-2, and once that verdict is recorded it
// stays recorded -- repeat Warmup calls do not re-run the eligibility
// scan or ever flip to true.
func TestScenario_ForbiddenOpcodeStaysCheapOnRepeat(t *testing.T) {
	consts := hostvm.NewConsts()
	instrs := []host.Instr{
		{Op: specops.OpYieldValue},
		{Op: specops.OpReturnValue},
	}
	fn := hostvm.NewFunction(instrs, consts, 0, 2)

	e := tier2.NewEngine()
	for i := 0; i < 16; i++ {
		if _, ok := e.Warmup(fn, 0); ok {
			t.Fatal("Warmup reported tier-2 ready for a function containing a forbidden opcode")
		}
	}
	if _, ok := fn.Tier2Handle(); !ok {
		t.Fatal("an ineligible function should still record a Tier2Handle so later calls skip the scan")
	}
	if _, ok := e.Warmup(fn, 0); ok {
		t.Fatal("Warmup flipped to ready on a later call for an already-ineligible function")
	}
}

// TestScenario_StencilInvokeAndCloseTwice covers the copy-and-patch
// allocator's round trip: a compiled stencil has a non-zero entry, running
// it returns the value the trace computes, and Close succeeds both times
// it is called -- a second Close is a safe no-op rather than a
// double-unmap.
func TestScenario_StencilInvokeAndCloseTwice(t *testing.T) {
	alloc := &stencil.Allocator{}

	ops := []stencil.TraceOp{
		{Op: stencil.OpLoadConstInt, Arg: 7},
		{Op: stencil.OpLoadConstInt, Arg: 35},
		{Op: stencil.OpAddInt},
		{Op: stencil.OpReturn},
	}
	s, err := stencil.Compile(alloc, ops)
	if err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if s.Entry() == 0 {
		t.Fatal("Compile() returned a zero entry address")
	}

	stack := make([]uint64, 0, 4)
	locals := make([]uint64, 0)
	if got, want := s.Invoke(&stack, &locals), uint64(42); got != want {
		t.Fatalf("Invoke() = %d, want %d", got, want)
	}

	if err := alloc.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := alloc.Close(); err != nil {
		t.Fatalf("second Close() = %v, want nil (must be a safe no-op)", err)
	}
}
