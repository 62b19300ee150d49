// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import (
	"fmt"
	"math"

	"github.com/go-interpreter/tier2"
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/stencil"
	"github.com/go-interpreter/tier2/typeforest"
)

// VM runs Functions, switching a call over to tier-2 the moment
// Engine.Warmup reports a compiled entry point exists. One VM's Engine
// is shared across every Function it ever runs, mirroring how a real
// host interpreter owns exactly one Engine for its process lifetime.
type VM struct {
	engine *tier2.Engine
}

// NewVM returns a VM with a fresh Engine configured by opts.
func NewVM(opts ...tier2.Option) *VM {
	return &VM{engine: tier2.NewEngine(opts...)}
}

// Close releases every native stencil compiled for fn.
func (vm *VM) Close(fn *Function) error { return vm.engine.Close(fn) }

// Run executes fn from its entry point with args installed as the
// leading locals, returning whatever OpReturnValue/OpReturnConst left.
func (vm *VM) Run(fn *Function, args []host.Value) (host.Value, error) {
	fr := NewFrame(fn, args)
	if meta, ok := vm.engine.Warmup(fn, 0); ok {
		return vm.runTier2(fr, meta)
	}
	return vm.runTier1(fr)
}

// runTier1 interprets fn.instrs directly against fr, the untouched
// tier-1 semantics every specialized tier-2 opcode must stay equivalent
// to. A JUMP_BACKWARD also offers the engine an on-stack-replacement
// opportunity: if warmup has completed for that loop header by the time
// control reaches it, execution hands off to tier-2 mid-frame exactly as
// it would at a fresh call.
func (vm *VM) runTier1(fr *Frame) (host.Value, error) {
	fn := fr.code
	bc := fn.Bytecode()
	consts := fn.consts

	for {
		if int(fr.pc) >= bc.Len() {
			return host.Value{}, fmt.Errorf("hostvm: fell off the end of the function")
		}
		in := bc.At(fr.pc)
		op, arg, consumed := in.Op, in.Arg, 1
		if op == specops.OpExtendedArg {
			next := bc.At(fr.pc + 1)
			op, arg, consumed = next.Op, (arg<<8)|next.Arg, 2
		}

		switch op {
		case specops.OpResume:
			// no-op marker instruction.

		case specops.OpLoadConst:
			fr.Push(constValue(consts, arg))

		case specops.OpLoadFast, specops.OpLoadFastNoIncref:
			fr.Push(fr.Local(int(arg)))

		case specops.OpStoreFast:
			fr.SetLocal(int(arg), fr.Pop())

		case specops.OpSwap:
			top := fr.StackLen() - 1
			bottom := top - int(arg) + 1
			fr.stack[top], fr.stack[bottom] = fr.stack[bottom], fr.stack[top]

		case specops.OpCopy:
			idx := fr.StackLen() - int(arg)
			fr.Push(fr.stack[idx])

		case specops.OpPopTop:
			fr.Pop()

		case specops.OpBinaryOp:
			right, left := fr.Pop(), fr.Pop()
			v, err := binaryOp(byte(arg), left, right)
			if err != nil {
				return host.Value{}, err
			}
			fr.Push(v)

		case specops.OpPopJumpIfFalse, specops.OpPopJumpIfTrue, specops.OpPopJumpIfNone, specops.OpPopJumpIfNotNone:
			cond := fr.Pop()
			if branchTaken(op, cond) {
				fr.SetPC(host.Tier1PC(arg))
				continue
			}

		case specops.OpForIter:
			// hostvm's test fixtures never drive a real iterator
			// through FOR_ITER; treat it as "always exhausted" so loop
			// scaffolding can still be scanned/linked without a real
			// iterable type.
			fr.SetPC(host.Tier1PC(arg))
			continue

		case specops.OpJumpBackward:
			target := host.Tier1PC(arg)
			if meta, ok := vm.engine.Warmup(fn, target); ok {
				fr.SetPC(target)
				return vm.runTier2(fr, meta)
			}
			fr.SetPC(target)
			continue

		case specops.OpReturnValue:
			return fr.Pop(), nil

		case specops.OpReturnConst:
			return constValue(consts, arg), nil

		case specops.OpInterpreterExit:
			return host.Value{}, nil

		default:
			return host.Value{}, fmt.Errorf("hostvm: tier-1 interpreter has no handler for opcode %d", op)
		}
		fr.SetPC(fr.pc + host.Tier1PC(consumed))
	}
}

// runTier2 interprets the specialized CodeUnit stream starting at meta,
// generating and linking successor BBs on demand and falling back to a
// compiled native stencil whenever one exists for the BB currently being
// entered.
func (vm *VM) runTier2(fr *Frame, meta *tier2.Metadata) (host.Value, error) {
	fn := fr.code
bbLoop:
	for {
		if native, ok, err := vm.engine.TryCompileNative(fn, meta); err != nil {
			return host.Value{}, err
		} else if ok {
			done, v, err := vm.invokeNative(fr, native)
			if err != nil {
				return host.Value{}, err
			}
			if done {
				return v, nil
			}
		}

		ref := meta.Tier2Start
		for i := 0; i < meta.UnitCount; i++ {
			u := vm.engine.Unit(fn, ref)
			switch u.Op {
			case specops.OpResume:
				// no-op marker instruction, copied verbatim by the builder.

			case specops.OpReturnValue:
				return fr.Pop(), nil
			case specops.OpReturnConst, specops.OpInterpreterExit:
				return host.Value{}, nil

			case specops.OpCheckInt, specops.OpCheckFloat:
				depth := int(u.Arg)
				val := fr.stack[fr.StackLen()-1-depth]
				pass := (u.Op == specops.OpCheckInt && val.Typ == host.TypeBoxedInt) ||
					(u.Op == specops.OpCheckFloat && val.Typ == host.TypeBoxedFloat)
				side := tier2.SideFallThrough
				if !pass {
					side = tier2.SideTaken
				}
				next, err := vm.follow(fn, meta, side)
				if err != nil {
					return host.Value{}, err
				}
				meta = next
				continue bbLoop

			case specops.OpPopJumpIfFalse, specops.OpPopJumpIfTrue, specops.OpPopJumpIfNone, specops.OpPopJumpIfNotNone:
				cond := fr.Pop()
				side := tier2.SideFallThrough
				if branchTaken(u.Op, cond) {
					side = tier2.SideTaken
				}
				next, err := vm.follow(fn, meta, side)
				if err != nil {
					return host.Value{}, err
				}
				meta = next
				continue bbLoop

			case specops.OpForIter:
				next, err := vm.follow(fn, meta, tier2.SideTaken)
				if err != nil {
					return host.Value{}, err
				}
				meta = next
				continue bbLoop

			case specops.OpJumpBackwardQuick:
				next, reused, err := vm.engine.LocateJumpBackwardsBB(fn, meta)
				if err != nil {
					return host.Value{}, err
				}
				if !reused {
					vm.engine.RewriteBackwardJump(fn, meta, next)
				}
				meta = next
				continue bbLoop

			case specops.OpLoadConst:
				fr.Push(constValue(fn.consts, u.Arg))
			case specops.OpLoadFast, specops.OpLoadFastNoIncref:
				fr.Push(fr.Local(int(u.Arg)))
			case specops.OpStoreFast:
				fr.SetLocal(int(u.Arg), fr.Pop())
			case specops.OpCopy, specops.OpCopyNoIncref:
				idx := fr.StackLen() - int(u.Arg)
				fr.Push(fr.stack[idx])
			case specops.OpPopTop, specops.OpPopTopNoDecref:
				fr.Pop()

			case specops.OpBoxFloat:
				depth := int(u.Arg)
				idx := fr.StackLen() - 1 - depth
				fr.stack[idx].Typ = host.TypeBoxedFloat
			case specops.OpUnboxFloat:
				depth := int(u.Arg)
				idx := fr.StackLen() - 1 - depth
				fr.stack[idx].Typ = host.TypeUnboxedFloat

			case specops.OpBinaryOpAddIntRest, specops.OpBinaryOpSubtractIntRest, specops.OpBinaryOpMultiplyIntRest:
				right, left := fr.Pop(), fr.Pop()
				fr.Push(intRest(u.Op, left, right))

			case specops.OpBinaryOpAddFloatUnboxed, specops.OpBinaryOpSubtractFloatUnboxed, specops.OpBinaryOpMultiplyFloatUnboxed:
				right, left := fr.Pop(), fr.Pop()
				fr.Push(floatUnboxed(u.Op, left, right))

			case specops.OpBinaryOp:
				right, left := fr.Pop(), fr.Pop()
				v, err := binaryOp(byte(u.Arg), left, right)
				if err != nil {
					return host.Value{}, err
				}
				fr.Push(v)

			default:
				return host.Value{}, fmt.Errorf("hostvm: tier-2 interpreter has no handler for opcode %d", u.Op)
			}
			ref = vm.engine.NextRef(fn, ref)
		}
	}
}

// follow resolves meta's pending successor on side, building it the
// first time it is actually taken.
func (vm *VM) follow(fn *Function, meta *tier2.Metadata, side tier2.Side) (*tier2.Metadata, error) {
	next, err := vm.engine.GenerateNextBB(fn, meta, side)
	if err != nil {
		return nil, err
	}
	vm.engine.RewriteForwardJump(fn, meta, side, next)
	return next, nil
}

// invokeNative runs a compiled stencil against fr's current top-of-stack
// operands, returning done=true with the function's result once the
// stencil's OpReturn is reached. hostvm only ever compiles BBs that end
// in OpReturnValue (see tier2.StencilJIT), so a successful native run
// always means the whole call is finished.
func (vm *VM) invokeNative(fr *Frame, s *stencil.Stencil) (done bool, result host.Value, err error) {
	// The generated code pushes/pops through raw pointer arithmetic with
	// no bounds check of its own (see gen_amd64.go's pushStack), so the
	// backing array needs the same spare capacity Frame reserves for its
	// own host.Value stack rather than exactly len(fr.stack) words.
	stack := make([]uint64, len(fr.stack), fr.code.MaxStack())
	resultIsFloat := false
	for i, v := range fr.stack {
		switch v.Typ {
		case host.TypeUnboxedFloat, host.TypeBoxedFloat:
			stack[i] = math.Float64bits(v.F)
			resultIsFloat = true
		default:
			stack[i] = uint64(v.I)
		}
	}
	locals := make([]uint64, len(fr.locals))
	for i, v := range fr.locals {
		switch v.Typ {
		case host.TypeUnboxedFloat, host.TypeBoxedFloat:
			locals[i] = math.Float64bits(v.F)
		default:
			locals[i] = uint64(v.I)
		}
	}
	ret := s.Invoke(&stack, &locals)
	if resultIsFloat {
		return true, host.Value{Typ: host.TypeBoxedFloat, F: math.Float64frombits(ret)}, nil
	}
	return true, host.Value{Typ: host.TypeBoxedInt, I: int64(ret)}, nil
}

func constValue(c *Consts, k uint32) host.Value {
	switch c.Kind(k) {
	case typeforest.KindInt:
		return host.Value{Typ: host.TypeBoxedInt, I: c.Int(k)}
	case typeforest.KindSmallInt:
		return host.Value{Typ: host.TypeSmallInt, I: c.Int(k)}
	case typeforest.KindFloat:
		return host.Value{Typ: host.TypeBoxedFloat, F: c.Float(k)}
	default:
		return host.Value{Typ: host.TypeOther}
	}
}

func branchTaken(op specops.Op, cond host.Value) bool {
	truthy := cond.I != 0 || cond.F != 0 || cond.Any != nil
	switch op {
	case specops.OpPopJumpIfFalse:
		return !truthy
	case specops.OpPopJumpIfTrue:
		return truthy
	case specops.OpPopJumpIfNone:
		return cond.Typ == host.TypeOther && cond.Any == nil
	case specops.OpPopJumpIfNotNone:
		return !(cond.Typ == host.TypeOther && cond.Any == nil)
	default:
		return false
	}
}

func intRest(op specops.Op, left, right host.Value) host.Value {
	switch op {
	case specops.OpBinaryOpAddIntRest:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I + right.I}
	case specops.OpBinaryOpSubtractIntRest:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I - right.I}
	default:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I * right.I}
	}
}

func floatUnboxed(op specops.Op, left, right host.Value) host.Value {
	switch op {
	case specops.OpBinaryOpAddFloatUnboxed:
		return host.Value{Typ: host.TypeUnboxedFloat, F: left.F + right.F}
	case specops.OpBinaryOpSubtractFloatUnboxed:
		return host.Value{Typ: host.TypeUnboxedFloat, F: left.F - right.F}
	default:
		return host.Value{Typ: host.TypeUnboxedFloat, F: left.F * right.F}
	}
}

func binaryOp(sub byte, left, right host.Value) (host.Value, error) {
	isFloat := left.Typ == host.TypeBoxedFloat || left.Typ == host.TypeUnboxedFloat ||
		right.Typ == host.TypeBoxedFloat || right.Typ == host.TypeUnboxedFloat
	if isFloat {
		l, r := asFloat(left), asFloat(right)
		switch sub {
		case specops.BinAdd:
			return host.Value{Typ: host.TypeBoxedFloat, F: l + r}, nil
		case specops.BinSubtract:
			return host.Value{Typ: host.TypeBoxedFloat, F: l - r}, nil
		case specops.BinMultiply:
			return host.Value{Typ: host.TypeBoxedFloat, F: l * r}, nil
		}
		return host.Value{}, fmt.Errorf("hostvm: unsupported BINARY_OP sub-operator %d", sub)
	}
	switch sub {
	case specops.BinAdd:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I + right.I}, nil
	case specops.BinSubtract:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I - right.I}, nil
	case specops.BinMultiply:
		return host.Value{Typ: host.TypeBoxedInt, I: left.I * right.I}, nil
	}
	return host.Value{}, fmt.Errorf("hostvm: unsupported BINARY_OP sub-operator %d", sub)
}

func asFloat(v host.Value) float64 {
	if v.Typ == host.TypeBoxedFloat || v.Typ == host.TypeUnboxedFloat {
		return v.F
	}
	return float64(v.I)
}
