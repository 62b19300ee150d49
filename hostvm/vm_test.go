// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import (
	"testing"

	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/specops"
)

// addTen builds a function computing n+10 through a single generic
// BINARY_OP, the simplest program the specialization ladder can narrow.
func addTen() *Function {
	consts := NewConsts()
	ten := consts.AddInt(10)
	instrs := []host.Instr{
		{Op: specops.OpResume},
		{Op: specops.OpLoadFast, Arg: 0},
		{Op: specops.OpLoadConst, Arg: ten},
		{Op: specops.OpBinaryOp, Arg: uint32(specops.BinAdd)},
		{Op: specops.OpReturnValue},
	}
	fn := NewFunction(instrs, consts, 1, 3)
	fn.SetBackwardJumpTargets(ScanBackwardJumpTargets(instrs))
	return fn
}

// sumRemaining builds a counting loop summing remaining down to zero,
// using POP_JUMP_IF_FALSE's truthiness test on the counter itself as the
// loop condition since this instruction set has no dedicated compare op.
func sumRemaining() *Function {
	const (
		remaining = 0
		acc       = 1
	)
	consts := NewConsts()
	zero := consts.AddInt(0)
	one := consts.AddInt(1)
	instrs := []host.Instr{
		/*0*/ {Op: specops.OpResume},
		/*1*/ {Op: specops.OpLoadConst, Arg: zero},
		/*2*/ {Op: specops.OpStoreFast, Arg: acc},
		/*3*/ {Op: specops.OpLoadFast, Arg: remaining},
		/*4*/ {Op: specops.OpPopJumpIfFalse, Arg: 14},
		/*5*/ {Op: specops.OpLoadFast, Arg: acc},
		/*6*/ {Op: specops.OpLoadFast, Arg: remaining},
		/*7*/ {Op: specops.OpBinaryOp, Arg: uint32(specops.BinAdd)},
		/*8*/ {Op: specops.OpStoreFast, Arg: acc},
		/*9*/ {Op: specops.OpLoadFast, Arg: remaining},
		/*10*/ {Op: specops.OpLoadConst, Arg: one},
		/*11*/ {Op: specops.OpBinaryOp, Arg: uint32(specops.BinSubtract)},
		/*12*/ {Op: specops.OpStoreFast, Arg: remaining},
		/*13*/ {Op: specops.OpJumpBackward, Arg: 3},
		/*14*/ {Op: specops.OpLoadFast, Arg: acc},
		/*15*/ {Op: specops.OpReturnValue},
	}
	fn := NewFunction(instrs, consts, 2, 4)
	fn.SetBackwardJumpTargets(ScanBackwardJumpTargets(instrs))
	return fn
}

func gaussSum(n int64) int64 {
	var total int64
	for i := int64(0); i <= n; i++ {
		total += i
	}
	return total
}

func TestRunAddTenSingleCall(t *testing.T) {
	vm := NewVM()
	fn := addTen()
	defer vm.Close(fn)

	got, err := vm.Run(fn, []host.Value{{Typ: host.TypeBoxedInt, I: 5}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.I != 15 {
		t.Fatalf("Run() = %d, want 15", got.I)
	}
}

// TestRunAddTenAcrossWarmup calls Run far past the warmup threshold so
// the function both enters tier-2 and, once the guard ladder has seen
// enough int arguments, gets lowered to a native stencil -- every call
// must keep returning the same tier-1-equivalent result regardless of
// which tier actually executed it.
func TestRunAddTenAcrossWarmup(t *testing.T) {
	vm := NewVM()
	fn := addTen()
	defer vm.Close(fn)

	for i := 0; i < 20; i++ {
		got, err := vm.Run(fn, []host.Value{{Typ: host.TypeBoxedInt, I: int64(i)}})
		if err != nil {
			t.Fatalf("Run() call %d error = %v", i, err)
		}
		want := int64(i) + 10
		if got.I != want {
			t.Fatalf("Run() call %d = %d, want %d", i, got.I, want)
		}
	}
}

func TestRunSumRemainingSingleCall(t *testing.T) {
	vm := NewVM()
	fn := sumRemaining()
	defer vm.Close(fn)

	got, err := vm.Run(fn, []host.Value{{Typ: host.TypeBoxedInt, I: 6}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := gaussSum(6); got.I != want {
		t.Fatalf("Run() = %d, want %d", got.I, want)
	}
}

// TestRunSumRemainingDrivesOSR runs a loop long enough that the engine
// should complete warmup and hand off to tier-2 mid-frame at
// JUMP_BACKWARD, inside a single Run call, and then keeps calling Run
// again afterwards to exercise the lazily-linked BB graph that earlier
// call already built.
func TestRunSumRemainingDrivesOSR(t *testing.T) {
	vm := NewVM()
	fn := sumRemaining()
	defer vm.Close(fn)

	for i, n := range []int64{40, 1, 0, 7, 100} {
		got, err := vm.Run(fn, []host.Value{{Typ: host.TypeBoxedInt, I: n}})
		if err != nil {
			t.Fatalf("Run() call %d (n=%d) error = %v", i, n, err)
		}
		if want := gaussSum(n); got.I != want {
			t.Fatalf("Run() call %d (n=%d) = %d, want %d", i, n, got.I, want)
		}
	}
}

func TestVMCloseIsSafeWithoutTier2State(t *testing.T) {
	vm := NewVM()
	fn := addTen()
	if err := vm.Close(fn); err != nil {
		t.Fatalf("Close() on a never-warmed-up function = %v, want nil", err)
	}
}
