// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stencil

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Register convention, carried over unchanged from wagon's
// exec/internal/compile AMD64Backend:
//   R10 - pointer to the stack []uint64's slice header
//   R11 - pointer to the locals []uint64's slice header
//   R12 - scratch pointer into whichever slice is being touched
//   R13 - scratch index/height register
// Scratch GPRs: AX, BX, CX, DX, R8, R9, R15. X0/X1 are the only XMM
// registers this generator touches, purely as a GPR<->float64 transfer
// lane — every float TraceOp still does its arithmetic on bit patterns
// moved back out to a GPR immediately after, so the rest of the stencil
// never has to reason about which registers hold floats.

// compileAMD64 lowers a straight-line trace of TraceOps to position-
// independent amd64 machine code. Every op pushes/pops the same uint64
// stack backend_amd64.go's emitWasmStackLoad/Push already define the
// layout for; OpLoadConstFloat/OpAddFloat/etc. reinterpret those words
// as float64 bit patterns rather than using a separate float stack.
func compileAMD64(ops []TraceOp) ([]byte, error) {
	if len(ops) == 0 {
		return nil, ErrEmptyStencil
	}
	builder, err := asm.NewBuilder("amd64", 16*len(ops)+8)
	if err != nil {
		return nil, fmt.Errorf("stencil: new builder: %w", err)
	}

	g := &amd64Gen{b: builder}
	heads := make([]*obj.Prog, len(ops))
	jumps := make([]*obj.Prog, len(ops))

	for i, op := range ops {
		head, jumpSite, err := g.emit(op)
		if err != nil {
			return nil, err
		}
		heads[i] = head
		jumps[i] = jumpSite
	}

	for i, op := range ops {
		if op.Op != OpJump && op.Op != OpJumpIfZero {
			continue
		}
		target := op.Arg
		if target < 0 || int(target) >= len(ops) {
			return nil, BadJumpTargetError{Target: target}
		}
		jumps[i].To.SetTarget(heads[target])
	}

	return builder.Assemble(), nil
}

type amd64Gen struct{ b *asm.Builder }

// emit compiles one TraceOp, returning the first Prog it generated (the
// anchor a jump targeting this op's index links to) and, for OpJump/
// OpJumpIfZero, the Prog whose branch target gets patched once every op
// has been emitted and every index has a known head.
func (g *amd64Gen) emit(op TraceOp) (head, jumpSite *obj.Prog, err error) {
	switch op.Op {
	case OpLoadConstInt, OpLoadConstFloat:
		head = g.reg(x86.AMOVQ, obj.TYPE_CONST, 0, op.Arg, obj.TYPE_REG, x86.REG_AX, 0)
		g.pushStack(x86.REG_AX)

	case OpLoadLocal:
		head = g.loadSlice(x86.REG_R11, op.Arg, x86.REG_AX)
		g.pushStack(x86.REG_AX)

	case OpStoreLocal:
		g.popStack(x86.REG_AX)
		head = g.storeSlice(x86.REG_R11, op.Arg, x86.REG_AX)

	case OpAddInt, OpSubInt, OpMulInt:
		h := g.popStack(x86.REG_R9)
		g.popStack(x86.REG_AX)
		head = h
		p := g.b.NewProg()
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_R9
		p.To.Type = obj.TYPE_REG
		p.To.Reg = x86.REG_AX
		switch op.Op {
		case OpAddInt:
			p.As = x86.AADDQ
		case OpSubInt:
			p.As = x86.ASUBQ
		case OpMulInt:
			p.As = x86.AIMULQ
		}
		g.b.AddInstruction(p)
		g.pushStack(x86.REG_AX)

	case OpAddFloat, OpSubFloat, OpMulFloat:
		h := g.popStack(x86.REG_R9)
		g.popStack(x86.REG_AX)
		head = h
		g.gprToXMM(x86.REG_R9, x86.REG_X1)
		g.gprToXMM(x86.REG_AX, x86.REG_X0)
		p := g.b.NewProg()
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_X1
		p.To.Type = obj.TYPE_REG
		p.To.Reg = x86.REG_X0
		switch op.Op {
		case OpAddFloat:
			p.As = x86.AADDSD
		case OpSubFloat:
			p.As = x86.ASUBSD
		case OpMulFloat:
			p.As = x86.AMULSD
		}
		g.b.AddInstruction(p)
		g.xmmToGPR(x86.REG_X0, x86.REG_AX)
		g.pushStack(x86.REG_AX)

	case OpJump:
		head = g.jmp(x86.AJMP)
		jumpSite = head

	case OpJumpIfZero:
		h := g.popStack(x86.REG_AX)
		head = h
		p := g.b.NewProg()
		p.As = x86.ATESTQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_AX
		p.To.Type = obj.TYPE_REG
		p.To.Reg = x86.REG_AX
		g.b.AddInstruction(p)
		jumpSite = g.jmp(x86.AJEQ)

	case OpReturn:
		head = g.popStack(x86.REG_AX)
		ret := g.b.NewProg()
		ret.As = obj.ARET
		g.b.AddInstruction(ret)

	default:
		return nil, nil, UnsupportedOpError{Op: op.Op}
	}
	if head == nil {
		head = g.b.NewProg()
		head.As = obj.ANOP
		g.b.AddInstruction(head)
	}
	return head, jumpSite, nil
}

// reg emits a single two-operand instruction and returns its Prog.
func (g *amd64Gen) reg(as obj.As, fromType obj.AddrType, fromReg int16, fromOffset int64, toType obj.AddrType, toReg int16, toOffset int64) *obj.Prog {
	p := g.b.NewProg()
	p.As = as
	p.From.Type = fromType
	p.From.Reg = fromReg
	p.From.Offset = fromOffset
	p.To.Type = toType
	p.To.Reg = toReg
	p.To.Offset = toOffset
	g.b.AddInstruction(p)
	return p
}

// jmp emits an unconditional or conditional branch whose target is
// patched in later via Prog.To.SetTarget, once every op's head exists.
func (g *amd64Gen) jmp(as obj.As) *obj.Prog {
	p := g.b.NewProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	g.b.AddInstruction(p)
	return p
}

// loadSlice reads []uint64[index] through a pointer-to-slice-header in
// base, following backend_amd64.go's emitWasmLocalsLoad sequence.
func (g *amd64Gen) loadSlice(base int16, index int64, dst int16) *obj.Prog {
	first := g.reg(x86.AMOVQ, obj.TYPE_CONST, 0, index, obj.TYPE_REG, x86.REG_R13, 0)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, base, 0, obj.TYPE_REG, x86.REG_R12, 0)
	p := g.b.NewProg()
	p.As = x86.ALEAQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_R12
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_R12
	p.From.Scale = 8
	p.From.Index = x86.REG_R13
	g.b.AddInstruction(p)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R12, 0, obj.TYPE_REG, dst, 0)
	return first
}

// storeSlice is loadSlice's mirror image: []uint64[index] = src.
func (g *amd64Gen) storeSlice(base int16, index int64, src int16) *obj.Prog {
	first := g.reg(x86.AMOVQ, obj.TYPE_CONST, 0, index, obj.TYPE_REG, x86.REG_R13, 0)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, base, 0, obj.TYPE_REG, x86.REG_R12, 0)
	p := g.b.NewProg()
	p.As = x86.ALEAQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_R12
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_R12
	p.From.Scale = 8
	p.From.Index = x86.REG_R13
	g.b.AddInstruction(p)
	g.reg(x86.AMOVQ, obj.TYPE_REG, src, 0, obj.TYPE_MEM, x86.REG_R12, 0)
	return first
}

// pushStack appends backend_amd64.go's emitWasmStackPush sequence.
func (g *amd64Gen) pushStack(src int16) *obj.Prog {
	first := g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R10, 0, obj.TYPE_REG, x86.REG_R12, 0)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R10, 8, obj.TYPE_REG, x86.REG_R13, 0)
	p := g.b.NewProg()
	p.As = x86.ALEAQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_R12
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_R12
	p.From.Scale = 8
	p.From.Index = x86.REG_R13
	g.b.AddInstruction(p)
	g.reg(x86.AMOVQ, obj.TYPE_REG, src, 0, obj.TYPE_MEM, x86.REG_R12, 0)
	inc := g.b.NewProg()
	inc.As = x86.AINCQ
	inc.To.Type = obj.TYPE_REG
	inc.To.Reg = x86.REG_R13
	g.b.AddInstruction(inc)
	g.reg(x86.AMOVQ, obj.TYPE_REG, x86.REG_R13, 0, obj.TYPE_MEM, x86.REG_R10, 8)
	return first
}

// popStack is backend_amd64.go's emitWasmStackLoad sequence: read the
// top word and shrink the tracked height by one.
func (g *amd64Gen) popStack(dst int16) *obj.Prog {
	first := g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R10, 8, obj.TYPE_REG, x86.REG_R13, 0)
	dec := g.b.NewProg()
	dec.As = x86.ADECQ
	dec.To.Type = obj.TYPE_REG
	dec.To.Reg = x86.REG_R13
	g.b.AddInstruction(dec)
	g.reg(x86.AMOVQ, obj.TYPE_REG, x86.REG_R13, 0, obj.TYPE_MEM, x86.REG_R10, 8)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R10, 0, obj.TYPE_REG, x86.REG_R12, 0)
	p := g.b.NewProg()
	p.As = x86.ALEAQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_R12
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_R12
	p.From.Scale = 8
	p.From.Index = x86.REG_R13
	g.b.AddInstruction(p)
	g.reg(x86.AMOVQ, obj.TYPE_MEM, x86.REG_R12, 0, obj.TYPE_REG, dst, 0)
	return first
}

// gprToXMM/xmmToGPR move a float64 bit pattern between a GPR and an XMM
// lane without ever decoding it, so arithmetic stays on raw uint64
// words everywhere except the single ADDSD/SUBSD/MULSD instruction that
// needs it in a vector register.
func (g *amd64Gen) gprToXMM(gpr, xmm int16) *obj.Prog {
	return g.reg(x86.AMOVQ, obj.TYPE_REG, gpr, 0, obj.TYPE_REG, xmm, 0)
}

func (g *amd64Gen) xmmToGPR(xmm, gpr int16) *obj.Prog {
	return g.reg(x86.AMOVQ, obj.TYPE_REG, xmm, 0, obj.TYPE_REG, gpr, 0)
}
