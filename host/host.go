// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host is the boundary between this module and a real tier-1
// interpreter. It plays the same role wasm.Module/wasm.Function play for
// wagon's exec package: exec does not know how a module was parsed, only
// its shape; tier2 does not know how tier-1 bytecode gets dispatched,
// only its shape.
//
// Nothing in this package executes anything. It is a contract a host
// interpreter implements and tier2.Engine consumes.
package host

import (
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/typeforest"
)

// Tier1PC indexes into a Bytecode's instruction stream.
type Tier1PC int

// Instr is one decoded tier-1 instruction: an opcode plus its operand.
// An EXTENDED_ARG prefix is an Instr of its own; tier2's builder and
// hostvm's tier-1 loop each fold a single prefix into the next
// instruction's Arg, and a function with two prefixes in a row is not
// tier-2 eligible.
type Instr struct {
	Op  specops.Op
	Arg uint32
}

// Bytecode is the tier-1 instruction stream of a single function.
type Bytecode interface {
	// Len reports the number of instructions.
	Len() int
	// At returns the instruction at pc. Implementations panic on an
	// out-of-range pc, the same contract Context.Node places on Loc.
	At(pc Tier1PC) Instr
	// Consts exposes the constant pool LOAD_CONST indexes into.
	Consts() typeforest.ConstPool
	// BackwardJumpTargets lists every Tier1PC a JUMP_BACKWARD in this
	// function may target, sorted ascending. Computed once by the host
	// (it already has to scan the bytecode to build the function), not
	// recomputed by tier2.
	BackwardJumpTargets() []Tier1PC
}

// Type is the coarse runtime type tag tier2 cares about: the "interesting"
// types named by typeforest's negative bitmask, plus a catch-all.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeBoxedInt
	TypeSmallInt
	TypeBoxedFloat
	TypeUnboxedFloat
	TypeList
	TypeOther
)

// Value is a tier-1 runtime value, concrete enough for a reference host
// (package hostvm) to execute with directly, and coarse enough for
// tier-2 guards to classify via Type.
type Value struct {
	Typ Type
	I   int64
	F   float64
	Any interface{} // payload for TypeList/TypeOther
}

// Code is the tier-1 "code object" shared by every Frame executing the
// same function: the warmup counter and any cached tier-2 entry point
// live here, not on the per-call Frame, mirroring how a real interpreter
// keys its JIT cache off the code object rather than the activation
// record.
type Code interface {
	Bytecode() Bytecode
	NumLocals() int
	MaxStack() int
	// DecrementWarmupCounter decrements and returns the post-decrement
	// value. Saturates at a negative sentinel once tier-2 has taken over
	// so repeated calls are cheap no-ops.
	DecrementWarmupCounter() int32
	// Tier2Handle stores an opaque tier2-owned pointer (typically
	// *tier2.compiledFunc) once Engine.Warmup has run Initialize. host
	// never interprets the value; it only round-trips it.
	Tier2Handle() (interface{}, bool)
	SetTier2Handle(interface{})
}

// Frame is one activation record: current PC, locals, and operand stack.
type Frame interface {
	Code() Code
	PC() Tier1PC
	SetPC(Tier1PC)
	Local(i int) Value
	SetLocal(i int, v Value)
	Push(v Value)
	Pop() Value
	StackLen() int
}
