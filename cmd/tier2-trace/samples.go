// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/hostvm"
	"github.com/go-interpreter/tier2/specops"
)

// sampleFunc builds a sample function parameterized by n, returning the
// assembled Function and the args Run should call it with.
type sampleFunc func(n int64) (*hostvm.Function, []host.Value)

var samples = map[string]sampleFunc{
	"add-guarded": addGuarded,
	"sum-loop":    sumLoop,
}

// addGuarded computes n+10 through a single generic BINARY_OP, letting
// the engine's specialization ladder narrow it to the int-rest path
// after enough warmup iterations see an int argument.
func addGuarded(n int64) (*hostvm.Function, []host.Value) {
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
	return fn, []host.Value{{Typ: host.TypeBoxedInt, I: n}}
}

// sumLoop sums n down to 1 via a hand-assembled counting loop. This opcode
// set has no dedicated comparison instruction, so the loop condition is
// POP_JUMP_IF_FALSE's existing truthiness test applied directly to the
// remaining-iterations counter (remaining == 0 is falsy) rather than a
// real i<n comparison — the only loop shape this instruction set can
// express without a CMP op.
func sumLoop(n int64) (*hostvm.Function, []host.Value) {
	const (
		remaining = 0
		acc       = 1
	)
	consts := hostvm.NewConsts()
	zero := consts.AddInt(0)
	one := consts.AddInt(1)

	instrs := []host.Instr{
		/*0*/ {Op: specops.OpResume},
		/*1*/ {Op: specops.OpLoadConst, Arg: zero},
		/*2*/ {Op: specops.OpStoreFast, Arg: acc},
		/*3*/ {Op: specops.OpLoadFast, Arg: remaining}, // loop header
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
	fn := hostvm.NewFunction(instrs, consts, 2, 4)
	fn.SetBackwardJumpTargets(hostvm.ScanBackwardJumpTargets(instrs))
	return fn, []host.Value{{Typ: host.TypeBoxedInt, I: n}}
}
