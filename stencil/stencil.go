// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stencil compiles a straight-line trace of numeric micro-ops
// into native amd64 machine code and hands back a callable entry point.
// It plays the copy-and-patch role Python/tier2.c delegates to LLVM: the
// tier2 package only ever asks stencil to compile a BB once every
// operand in it has already been proven to be plain boxed/unboxed int or
// float arithmetic — anything needing a guard, a call, or a generic
// object stays on the CodeUnit interpreter loop and never reaches here.
package stencil

// Op identifies one instruction in a flattened numeric trace. Unlike
// specops.Op this is a closed, tiny set: only what the amd64 generator
// in gen_amd64.go actually knows how to emit.
type Op byte

const (
	OpLoadConstInt Op = iota
	OpLoadConstFloat
	OpLoadLocal
	OpStoreLocal
	OpAddInt
	OpSubInt
	OpMulInt
	OpAddFloat
	OpSubFloat
	OpMulFloat
	OpJump
	OpJumpIfZero
	OpReturn
)

// TraceOp is one entry in the flattened trace Compile consumes. Arg's
// meaning depends on Op: a local slot index for OpLoadLocal/
// OpStoreLocal, a raw bit pattern for OpLoadConstInt/OpLoadConstFloat
// (float64 values travel as math.Float64bits(v)), or a TraceOp index for
// OpJump/OpJumpIfZero. It is always zero for the arithmetic and OpReturn
// opcodes.
type TraceOp struct {
	Op  Op
	Arg int64
}

// Stencil is one compiled native function together with the Allocator
// it was carved out of. Its memory is released only when that Allocator
// is closed; Free does not release it.
type Stencil struct {
	entry uintptr
	alloc *Allocator
}

// Entry returns the address jitcall should branch to.
func (s *Stencil) Entry() uintptr { return s.entry }

// Preload forces alloc to open its first executable mapping immediately
// rather than lazily on the first Compile, so a function's first trace
// doesn't pay mmap latency on the hot path. Mirrors eagerly warming a
// connection pool; purely a latency hint, never required for
// correctness.
func Preload(alloc *Allocator) error {
	_, err := alloc.AllocateExec([]byte{byte(retOpcode)})
	return err
}

// retOpcode is a bare amd64 RET (0xC3), used only by Preload as
// filler — never executed as a real stencil.
const retOpcode = 0xC3

// Compile lowers ops to amd64 machine code, installs it into alloc's
// executable memory, and returns a Stencil whose Entry() jitcall can
// branch to. ops must end with an OpReturn; Compile does not append one
// implicitly, since a trace that falls off the end without returning a
// value is a bug in the caller, not something to paper over here.
func Compile(alloc *Allocator, ops []TraceOp) (*Stencil, error) {
	code, err := compileAMD64(ops)
	if err != nil {
		return nil, err
	}
	entry, err := alloc.AllocateExec(code)
	if err != nil {
		return nil, err
	}
	return &Stencil{entry: entry, alloc: alloc}, nil
}

// Free is a no-op placeholder: Allocator never reclaims individual
// stencils, only whole blocks on Close, the same all-or-nothing lifetime
// BBSpace gives specialized codeunits. Kept as a named call site so
// tier2 can free a Stencil the moment a function is deoptimized without
// tier2 needing to know that policy itself.
func (s *Stencil) Free() {}
