// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/stencil"
	"github.com/go-interpreter/tier2/typeforest"
)

// StencilJIT is the copy-and-patch half of a compiled function: it scans
// a published BB's CodeUnits and, when every one of them is plain
// register-width int/float arithmetic, lowers it to a native stencil and
// caches the result. A BB containing anything else — a branch, a type
// guard, a call, a box/unbox round trip — is left to run on the CodeUnit
// interpreter loop; StencilJIT never partially compiles a BB.
type StencilJIT struct {
	alloc *stencil.Allocator
	cache map[int]*stencil.Stencil
}

// NewStencilJIT returns a StencilJIT with an empty cache. Its executable
// allocator is created by the first TryCompile that lowers a BB.
func NewStencilJIT() *StencilJIT {
	return &StencilJIT{cache: map[int]*stencil.Stencil{}}
}

// Lookup returns the already-compiled Stencil for bbID, if any.
func (j *StencilJIT) Lookup(bbID int) (*stencil.Stencil, bool) {
	s, ok := j.cache[bbID]
	return s, ok
}

// TryCompile attempts to lower meta's codeunits to a native Stencil,
// caching and returning it on success. ok is false (with no error) when
// the BB contains an opcode the numeric fast path does not cover — not a
// failure, just a BB that stays interpreted.
func (j *StencilJIT) TryCompile(space *BBSpace, meta *Metadata, consts typeforest.ConstPool) (s *stencil.Stencil, ok bool, err error) {
	if cached, found := j.cache[meta.ID]; found {
		return cached, true, nil
	}

	ops := make([]stencil.TraceOp, 0, meta.UnitCount)
	ref := meta.Tier2Start
	for i := 0; i < meta.UnitCount; i++ {
		u := space.At(ref)
		top, translated := translateUnit(u, consts)
		if !translated {
			return nil, false, nil
		}
		ops = append(ops, top)
		ref = space.Next(ref)
	}
	if len(ops) == 0 || ops[len(ops)-1].Op != stencil.OpReturn {
		return nil, false, nil
	}

	if j.alloc == nil {
		j.alloc = &stencil.Allocator{}
	}
	compiled, err := stencil.Compile(j.alloc, ops)
	if err != nil {
		return nil, false, err
	}
	j.cache[meta.ID] = compiled
	return compiled, true, nil
}

// translateUnit maps one tier-2 CodeUnit to its stencil.TraceOp
// equivalent, reporting ok=false for anything outside the numeric fast
// path (branches, guards, calls, boxing, generic fallbacks).
func translateUnit(u CodeUnit, consts typeforest.ConstPool) (stencil.TraceOp, bool) {
	switch u.Op {
	case specops.OpLoadConst:
		kind := consts.Kind(u.Arg)
		bits := consts.RawBits(u.Arg)
		switch kind {
		case typeforest.KindInt, typeforest.KindSmallInt:
			return stencil.TraceOp{Op: stencil.OpLoadConstInt, Arg: int64(bits)}, true
		case typeforest.KindFloat:
			return stencil.TraceOp{Op: stencil.OpLoadConstFloat, Arg: int64(bits)}, true
		default:
			return stencil.TraceOp{}, false
		}

	case specops.OpLoadFast, specops.OpLoadFastNoIncref:
		return stencil.TraceOp{Op: stencil.OpLoadLocal, Arg: int64(u.Arg)}, true

	case specops.OpStoreFast:
		return stencil.TraceOp{Op: stencil.OpStoreLocal, Arg: int64(u.Arg)}, true

	case specops.OpBinaryOpAddIntRest:
		return stencil.TraceOp{Op: stencil.OpAddInt}, true
	case specops.OpBinaryOpSubtractIntRest:
		return stencil.TraceOp{Op: stencil.OpSubInt}, true
	case specops.OpBinaryOpMultiplyIntRest:
		return stencil.TraceOp{Op: stencil.OpMulInt}, true

	case specops.OpBinaryOpAddFloatUnboxed:
		return stencil.TraceOp{Op: stencil.OpAddFloat}, true
	case specops.OpBinaryOpSubtractFloatUnboxed:
		return stencil.TraceOp{Op: stencil.OpSubFloat}, true
	case specops.OpBinaryOpMultiplyFloatUnboxed:
		return stencil.TraceOp{Op: stencil.OpMulFloat}, true

	case specops.OpReturnValue:
		return stencil.TraceOp{Op: stencil.OpReturn}, true

	default:
		// Boxing round trips (OpBoxFloat/OpUnboxFloat), guards,
		// branches, calls, and the generic OpBinaryOp fallback all stay
		// on the interpreter loop — boxed values carry an interface{}
		// payload a raw uint64 stack word cannot represent, and control
		// transfer belongs to the lazy linker, not a straight-line
		// stencil.
		return stencil.TraceOp{}, false
	}
}

// Close releases every stencil this JIT ever compiled.
func (j *StencilJIT) Close() error {
	if j.alloc == nil {
		return nil
	}
	return j.alloc.Close()
}
