// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/stencil"
	"github.com/go-interpreter/tier2/typeforest"
)

// Engine is the tier-2 entry point a host interpreter holds one of,
// shared across every function it ever warms up. It owns no per-function
// state itself — that lives in compiledFunc, reached through
// host.Code.Tier2Handle — only the knobs that shape how each function's
// state gets built.
type Engine struct {
	segSize     int
	maxVersions int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSegmentSize sets the chunk size new BBSpaces are created with.
func WithSegmentSize(n int) Option {
	return func(e *Engine) { e.segSize = n }
}

// WithMaxVersions sets how many specialized versions a backward-jump
// target may accumulate before RegisterVersion starts refusing new ones.
func WithMaxVersions(n int) Option {
	return func(e *Engine) { e.maxVersions = n }
}

// NewEngine returns an Engine with defaultSegmentSize segments and a
// 10-entry backward-jump version ring unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{segSize: defaultSegmentSize, maxVersions: 10}
	for _, o := range opts {
		o(e)
	}
	return e
}

// compiledFunc is the opaque state a host.Code's Tier2Handle points at
// once Initialize has run: the BBSpace its native-adjacent codeunits
// live in, the Registry of published BBs, and the Builder/Linker pair
// that keep extending it lazily as the trace runs.
type compiledFunc struct {
	space   *BBSpace
	reg     *Registry
	builder *Builder
	linker  *Linker
	jit     *StencilJIT
	entryID int
}

// ineligible is the Tier2Handle sentinel stored once Initialize decides a
// function can never run on tier-2, so later Warmup calls skip straight
// to "no" instead of re-running the scan.
type ineligible struct{}

var ineligibleHandle = &ineligible{}

// scanEligibility walks bc once end to end, rejecting any forbidden
// opcode or unsupported EXTENDED_ARG run and requiring at least one
// opcode the builder knows how to specialize — the same gate
// Python/tier2.c applies before spending a single BB on a function that
// can never benefit from one.
func scanEligibility(bc host.Bytecode) error {
	sawOptimizable := false
	for pc := host.Tier1PC(0); int(pc) < bc.Len(); {
		op, _, consumed, err := mergeArg(bc, pc)
		if err != nil {
			return err
		}
		if specops.Forbidden[op] {
			return UnsupportedOpcodeError{Op: op}
		}
		if specops.Optimizable[op] {
			sawOptimizable = true
		}
		pc += host.Tier1PC(consumed)
	}
	if !sawOptimizable {
		return ErrNotEligible
	}
	return nil
}

// Initialize builds a function's tier-2 state from scratch: the
// eligibility scan, a fresh BBSpace/Registry, and the entry BB built
// from startPC under an all-unknown type context. Called once per
// function, the moment its warmup counter reaches zero.
func (e *Engine) Initialize(code host.Code, startPC host.Tier1PC) (*compiledFunc, error) {
	bc := code.Bytecode()
	if err := scanEligibility(bc); err != nil {
		return nil, err
	}

	space := NewBBSpace(e.segSize)
	reg := NewRegistry(e.maxVersions)
	reg.SetBackwardTargets(bc.BackwardJumpTargets())
	builder := NewBuilder(code, space, reg)
	linker := NewLinker(builder, space, reg)

	entryCtx := typeforest.Init(code.NumLocals(), code.MaxStack())
	entry, err := builder.Build(startPC, entryCtx)
	if err != nil {
		return nil, err
	}

	return &compiledFunc{
		space:   space,
		reg:     reg,
		builder: builder,
		linker:  linker,
		jit:     NewStencilJIT(),
		entryID: entry.ID,
	}, nil
}

// Warmup decrements code's warmup counter and, once it has run out,
// initializes tier-2 state for it (or records that it never will). It
// returns the entry BB's Metadata and true once code has tier-2 state,
// whether that state was just built or was already sitting behind
// Tier2Handle from an earlier call.
func (e *Engine) Warmup(code host.Code, pc host.Tier1PC) (*Metadata, bool) {
	if h, ok := code.Tier2Handle(); ok {
		if cf, ok := h.(*compiledFunc); ok {
			return cf.reg.Get(cf.entryID), true
		}
		return nil, false
	}

	if code.DecrementWarmupCounter() > 0 {
		return nil, false
	}

	cf, err := e.Initialize(code, pc)
	if err != nil {
		logger.Printf("tier2: function at tier-1 pc %d not eligible: %v", pc, err)
		code.SetTier2Handle(ineligibleHandle)
		return nil, false
	}
	code.SetTier2Handle(cf)
	return cf.reg.Get(cf.entryID), true
}

// handle recovers code's compiledFunc, panicking if Warmup never
// succeeded for it — every other Engine method on this file is only
// ever called once Warmup has returned true for this code object.
func handle(code host.Code) *compiledFunc {
	h, ok := code.Tier2Handle()
	if !ok {
		panic("tier2: code has no tier-2 state; Warmup must succeed first")
	}
	cf, ok := h.(*compiledFunc)
	if !ok {
		panic("tier2: code is marked ineligible for tier-2")
	}
	return cf
}

// GenerateNextBB builds the BB that continues meta on side, without
// linking it in yet. The interpreter loop calls this the first time it
// actually takes that side at runtime, never speculatively.
func (e *Engine) GenerateNextBB(code host.Code, meta *Metadata, side Side) (*Metadata, error) {
	return handle(code).linker.GenerateNextBB(meta, side)
}

// RewriteForwardJump links meta's placeholder on side to target.
func (e *Engine) RewriteForwardJump(code host.Code, meta *Metadata, side Side, target *Metadata) {
	handle(code).linker.RewriteForwardJump(meta, side, target)
}

// LocateJumpBackwardsBB resolves meta's loop edge to an existing or
// freshly built version of its target header.
func (e *Engine) LocateJumpBackwardsBB(code host.Code, meta *Metadata) (*Metadata, bool, error) {
	return handle(code).linker.LocateJumpBackwardsBB(meta)
}

// RewriteBackwardJump links meta's loop edge to target.
func (e *Engine) RewriteBackwardJump(code host.Code, meta *Metadata, target *Metadata) {
	handle(code).linker.RewriteBackwardJump(meta, target)
}

// Unit dereferences a CodeRef inside code's tier-2 codeunit space, for a
// host interpreter's dispatch loop to read what to execute next.
func (e *Engine) Unit(code host.Code, ref CodeRef) CodeUnit {
	return handle(code).space.At(ref)
}

// NextRef returns the coordinate immediately following ref's unit (past
// its cache slots), for a host dispatch loop walking a BB's units
// without needing BBSpace's own width bookkeeping exposed directly.
func (e *Engine) NextRef(code host.Code, ref CodeRef) CodeRef {
	return handle(code).space.Next(ref)
}

// Meta returns the Metadata for a published BB id belonging to code.
func (e *Engine) Meta(code host.Code, id int) *Metadata {
	return handle(code).reg.Get(id)
}

// TryCompileNative attempts to lower meta's codeunits to a native
// stencil, caching the result on code's tier-2 state. ok is false (with
// no error) when meta contains anything outside the numeric fast path —
// not a failure, just a BB that keeps running on the CodeUnit
// interpreter loop.
func (e *Engine) TryCompileNative(code host.Code, meta *Metadata) (*stencil.Stencil, bool, error) {
	cf := handle(code)
	return cf.jit.TryCompile(cf.space, meta, code.Bytecode().Consts())
}

// Close releases the native code buffers allocated for code's compiled
// stencils, if any were ever built.
func (e *Engine) Close(code host.Code) error {
	h, ok := code.Tier2Handle()
	if !ok {
		return nil
	}
	cf, ok := h.(*compiledFunc)
	if !ok {
		return nil
	}
	return cf.jit.Close()
}
