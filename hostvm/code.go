// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostvm is a small reference interpreter implementing package
// host's contract, playing the same role package exec's VM plays for a
// wasm.Module: it owns nothing tier2 needs to know how to build, only
// how to run. It exists to exercise tier2.Engine end to end — warmup,
// lazy BB generation, forward/backward linking, and native stencil
// invocation — against a tiny, hand-assembled instruction stream rather
// than a real source-language front end.
package hostvm

import (
	"sort"

	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/typeforest"
)

// defaultWarmupThreshold mirrors Python/tier2.c's default hot-loop
// threshold: the number of calls (or backward-jump traversals) a
// function survives on tier-1 before Engine.Warmup builds its first BB.
const defaultWarmupThreshold = 8

// Function is a compiled unit of source bytecode: one Instr stream, its
// constant pool, and the warmup/tier-2 bookkeeping host.Code requires.
// Every Frame executing the same source function shares one Function,
// the same way wagon's compiledFunction is shared across calls rather
// than rebuilt per invocation.
type Function struct {
	instrs     []host.Instr
	consts     *Consts
	numLocals  int
	maxStack   int
	backwardJT []host.Tier1PC

	warmup   int32
	tier2    interface{}
	hasTier2 bool
}

// NewFunction returns a Function ready to run on tier-1, with its own
// independent warmup counter.
func NewFunction(instrs []host.Instr, consts *Consts, numLocals, maxStack int) *Function {
	return &Function{
		instrs:    instrs,
		consts:    consts,
		numLocals: numLocals,
		maxStack:  maxStack,
		warmup:    defaultWarmupThreshold,
	}
}

// Bytecode returns fn's instruction stream, satisfying host.Code.
func (fn *Function) Bytecode() host.Bytecode { return bytecodeView{fn} }

// NumLocals satisfies host.Code.
func (fn *Function) NumLocals() int { return fn.numLocals }

// MaxStack satisfies host.Code.
func (fn *Function) MaxStack() int { return fn.maxStack }

// DecrementWarmupCounter satisfies host.Code. Saturates at -1 once
// tier-2 has already claimed this function, so a repeated call (from a
// backward-jump-heavy loop body) stays cheap.
func (fn *Function) DecrementWarmupCounter() int32 {
	if fn.warmup < 0 {
		return fn.warmup
	}
	fn.warmup--
	return fn.warmup
}

// Tier2Handle satisfies host.Code.
func (fn *Function) Tier2Handle() (interface{}, bool) { return fn.tier2, fn.hasTier2 }

// SetTier2Handle satisfies host.Code.
func (fn *Function) SetTier2Handle(h interface{}) {
	fn.tier2 = h
	fn.hasTier2 = true
}

// SetBackwardJumpTargets records the PCs a JUMP_BACKWARD in this
// function may target. A real front end computes this once while
// assembling the function body; hostvm's test helpers compute it by
// scanning instrs for specops.OpJumpBackward.
func (fn *Function) SetBackwardJumpTargets(targets []host.Tier1PC) {
	fn.backwardJT = targets
}

// ScanBackwardJumpTargets derives the backward-jump target set from
// instrs directly, for callers that don't already know it.
func ScanBackwardJumpTargets(instrs []host.Instr) []host.Tier1PC {
	seen := map[host.Tier1PC]bool{}
	var out []host.Tier1PC
	for _, in := range instrs {
		if in.Op == specops.OpJumpBackward {
			target := host.Tier1PC(in.Arg)
			if !seen[target] {
				seen[target] = true
				out = append(out, target)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// bytecodeView adapts *Function to host.Bytecode without exposing
// Function's own fields as part of that interface's method set.
type bytecodeView struct{ fn *Function }

func (b bytecodeView) Len() int                     { return len(b.fn.instrs) }
func (b bytecodeView) At(pc host.Tier1PC) host.Instr { return b.fn.instrs[pc] }
func (b bytecodeView) Consts() typeforest.ConstPool  { return b.fn.consts }
func (b bytecodeView) BackwardJumpTargets() []host.Tier1PC {
	return b.fn.backwardJT
}
