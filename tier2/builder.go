// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/specops"
	"github.com/go-interpreter/tier2/typeforest"
)

// Builder performs the forward scan over tier-1 bytecode that produces
// one basic block: a contiguous run of specialized tier-2 codeunits
// ending at a type guard, a branch, a backward-jump target boundary, or
// a scope exit. It never looks beyond that terminator — everything past
// it is somebody else's BB, built later, on demand, by the lazy linker.
type Builder struct {
	code  host.Code
	space *BBSpace
	reg   *Registry
}

// NewBuilder returns a Builder scanning code's bytecode, emitting into
// space, and recording backward-jump target bookkeeping in reg.
func NewBuilder(code host.Code, space *BBSpace, reg *Registry) *Builder {
	return &Builder{code: code, space: space, reg: reg}
}

// mergeArg folds a single leading EXTENDED_ARG prefix into the
// instruction that follows it. This engine supports one prefix (a
// 16-bit combined oparg); a second consecutive EXTENDED_ARG is rejected
// as unsupported rather than chased further, a deliberate narrowing of
// the reference design's up-to-three-prefix wordcode scheme.
func mergeArg(bc host.Bytecode, pc host.Tier1PC) (op specops.Op, arg uint32, consumed int, err error) {
	ins := bc.At(pc)
	if ins.Op != specops.OpExtendedArg {
		return ins.Op, ins.Arg, 1, nil
	}
	next := bc.At(pc + 1)
	if specops.IsDoubleExtendedArg(ins.Op, next.Op) {
		return 0, 0, 0, ErrNotEligible
	}
	return next.Op, (uint32(ins.Arg) << 8) | next.Arg, 2, nil
}

// Build scans forward from start under ctx and returns the Metadata of
// the one basic block produced. ctx is not mutated in place; Build works
// against a private copy so the caller's context still reflects the
// state at start after Build returns.
func (b *Builder) Build(start host.Tier1PC, ctx *typeforest.Context) (*Metadata, error) {
	work, err := typeforest.Copy(ctx)
	if err != nil {
		return nil, err
	}

	id := b.reg.NextID()
	bc := b.code.Bytecode()
	var units []CodeUnit
	var successors []pendingBranch
	pc := start

	emit := func(op specops.Op, arg uint32) { units = append(units, CodeUnit{Op: op, Arg: arg}) }

	finish := func(end host.Tier1PC) (*Metadata, error) {
		ref := b.space.Publish(units)
		meta := &Metadata{ID: id, Tier1End: end, Tier2Start: ref, UnitCount: len(units), Ctx: work, successors: successors}
		b.reg.Publish(meta)
		return meta, nil
	}

	for {
		if pc != start {
			if _, ok := b.reg.IsBackwardTarget(pc); ok {
				// pc is the start of some loop header's own BB identity;
				// end here with a single lazy fall-through edge rather
				// than folding its code into this one, so the header can
				// later carry its own set of specialized versions.
				units = append(units, CodeUnit{Op: specops.OpJumpBackwardQuick, Cache: []uint16{0}})
				successors = append(successors, pendingBranch{
					site: b.pendingSite(units), slot: 0, tier1Start: pc, onSide: SideFallThrough, ctx: work,
				})
				return finish(pc)
			}
		}

		op, arg, consumed, err := mergeArg(bc, pc)
		if err != nil {
			return nil, err
		}
		if specops.Forbidden[op] {
			return nil, UnsupportedOpcodeError{Op: op}
		}

		switch op {
		case specops.OpBinaryOp:
			meta, done, err := b.buildBinaryOp(id, &units, &successors, work, bc, pc, consumed, byte(arg))
			if err != nil {
				return nil, err
			}
			if done {
				return meta, nil
			}
			pc += host.Tier1PC(consumed)

		case specops.OpPopJumpIfFalse, specops.OpPopJumpIfTrue, specops.OpPopJumpIfNone, specops.OpPopJumpIfNotNone:
			target := host.Tier1PC(arg)
			// The condition is popped on either outcome, so both
			// successors share the same post-pop context.
			if err := typeforest.Propagate(op, arg, work, bc.Consts()); err != nil {
				return nil, err
			}
			fallCtx, err := typeforest.Copy(work)
			if err != nil {
				return nil, err
			}
			takenCtx, err := typeforest.Copy(work)
			if err != nil {
				return nil, err
			}
			units = append(units, CodeUnit{Op: op, Cache: []uint16{0, 0}})
			site := b.pendingSite(units)
			successors = append(successors,
				pendingBranch{site: site, slot: 0, tier1Start: pc + host.Tier1PC(consumed), onSide: SideFallThrough, ctx: fallCtx},
				pendingBranch{site: site, slot: 1, tier1Start: target, onSide: SideTaken, ctx: takenCtx},
			)
			return finish(pc + host.Tier1PC(consumed))

		case specops.OpForIter:
			target := host.Tier1PC(arg)
			bodyCtx, err := typeforest.Copy(work)
			if err != nil {
				return nil, err
			}
			if err := typeforest.Propagate(op, arg, bodyCtx, bc.Consts()); err != nil {
				return nil, err
			}
			exhaustedCtx, err := typeforest.Copy(work)
			if err != nil {
				return nil, err
			}
			units = append(units, CodeUnit{Op: op, Cache: []uint16{0, 0}})
			site := b.pendingSite(units)
			successors = append(successors,
				pendingBranch{site: site, slot: 0, tier1Start: pc + host.Tier1PC(consumed), onSide: SideFallThrough, ctx: bodyCtx},
				pendingBranch{site: site, slot: 1, tier1Start: target, onSide: SideTaken, ctx: exhaustedCtx},
			)
			return finish(pc + host.Tier1PC(consumed))

		case specops.OpJumpBackward, specops.OpJumpBackwardQuick:
			target := host.Tier1PC(arg)
			units = append(units, CodeUnit{Op: specops.OpJumpBackwardQuick, Cache: []uint16{0}})
			successors = append(successors,
				pendingBranch{site: b.pendingSite(units), slot: 0, tier1Start: target, onSide: SideBackward, ctx: work},
			)
			return finish(pc + host.Tier1PC(consumed))

		case specops.OpReturnValue, specops.OpReturnConst, specops.OpInterpreterExit:
			if err := typeforest.Propagate(op, arg, work, bc.Consts()); err != nil {
				return nil, err
			}
			emit(op, arg)
			return finish(pc + host.Tier1PC(consumed))

		default:
			if err := typeforest.Propagate(op, arg, work, bc.Consts()); err != nil {
				return nil, err
			}
			emit(op, arg)
			pc += host.Tier1PC(consumed)
		}
	}
}

// pendingSite records where the last unit in units will land once
// Publish lays the whole BB out, expressed as a unit-width offset from
// the BB's own start rather than a real segment coordinate (Publish
// hasn't run yet). Segment -1 marks this as unresolved; resolvePending
// in linker.go turns it into a real CodeRef once Tier2Start is known.
func (b *Builder) pendingSite(units []CodeUnit) CodeRef {
	offset := 0
	for _, u := range units[:len(units)-1] {
		offset += u.width()
	}
	return CodeRef{Segment: -1, Offset: offset}
}

// buildBinaryOp specializes a BINARY_OP through the full ladder. It
// returns done=true when it has ended (and published) the BB — a guard
// was needed — or done=false when it merely appended its specialized
// units (at most three: two UNBOX_FLOATs and the op) and the scan should
// continue.
func (b *Builder) buildBinaryOp(id int, units *[]CodeUnit, successors *[]pendingBranch, ctx *typeforest.Context, bc host.Bytecode, pc host.Tier1PC, consumed int, sub byte) (*Metadata, bool, error) {
	left := ctx.At(1)
	right := ctx.At(0)
	outcome, guardDepth := typeforest.InferBinaryOp(ctx, left, right)

	switch outcome {
	case typeforest.OutcomeIntRest:
		op := intRestOpFor(sub)
		*units = append(*units, CodeUnit{Op: op})
		return nil, false, typeforest.Propagate(op, 0, ctx, bc.Consts())

	case typeforest.OutcomeFloatUnboxed:
		if !typeforest.IsUnboxed(nodeTypeID(ctx, left)) {
			*units = append(*units, CodeUnit{Op: specops.OpUnboxFloat, Arg: 1})
			if err := typeforest.Propagate(specops.OpUnboxFloat, 1, ctx, bc.Consts()); err != nil {
				return nil, false, err
			}
		}
		if !typeforest.IsUnboxed(nodeTypeID(ctx, right)) {
			*units = append(*units, CodeUnit{Op: specops.OpUnboxFloat, Arg: 0})
			if err := typeforest.Propagate(specops.OpUnboxFloat, 0, ctx, bc.Consts()); err != nil {
				return nil, false, err
			}
		}
		op := floatUnboxedOpFor(sub)
		*units = append(*units, CodeUnit{Op: op})
		return nil, false, typeforest.Propagate(op, 0, ctx, bc.Consts())

	case typeforest.OutcomeGenericRebox:
		*units = append(*units, CodeUnit{Op: specops.OpBinaryOp, Arg: uint32(sub)})
		return nil, false, typeforest.Propagate(specops.OpBinaryOp, uint32(sub), ctx, bc.Consts())

	case typeforest.OutcomeNeedIntGuard, typeforest.OutcomeNeedFloatGuard:
		guardOp := specops.OpCheckInt
		excludeMask := typeforest.NegBoxedInt | typeforest.NegSmallInt
		if outcome == typeforest.OutcomeNeedFloatGuard {
			guardOp = specops.OpCheckFloat
			excludeMask = typeforest.NegBoxedFloat | typeforest.NegUnboxedFloat
		}
		passCtx, err := typeforest.Copy(ctx)
		if err != nil {
			return nil, false, err
		}
		if err := typeforest.Propagate(guardOp, uint32(guardDepth), passCtx, bc.Consts()); err != nil {
			return nil, false, err
		}

		failCtx, err := typeforest.Copy(ctx)
		if err != nil {
			return nil, false, err
		}
		failCtx.RefineNegative(failCtx.At(guardDepth), excludeMask)

		*units = append(*units, CodeUnit{Op: guardOp, Arg: uint32(guardDepth), Cache: []uint16{0, 0}})
		site := b.pendingSite(*units)
		*successors = append(*successors,
			pendingBranch{site: site, slot: 0, tier1Start: pc, onSide: SideFallThrough, ctx: passCtx},
			pendingBranch{site: site, slot: 1, tier1Start: pc, onSide: SideTaken, ctx: failCtx},
		)
		ref := b.space.Publish(*units)
		meta := &Metadata{ID: id, Tier1End: pc, Tier2Start: ref, UnitCount: len(*units), Ctx: ctx, successors: *successors}
		b.reg.Publish(meta)
		return meta, true, nil
	}
	return nil, false, UnsupportedOpcodeError{}
}

// nodeTypeID returns the concrete type at loc's root, or TypeUnknown if
// the root is a ROOT_NEG node (which carries a ruled-out-type mask, not a
// concrete type, in the same bit position TypeID() reads).
func nodeTypeID(ctx *typeforest.Context, loc typeforest.Loc) typeforest.TypeID {
	root := ctx.Node(ctx.RootOf(loc))
	if root.Tag() != typeforest.TagRootPos {
		return typeforest.TypeUnknown
	}
	return root.TypeID()
}

func intRestOpFor(sub byte) specops.Op {
	switch sub {
	case specops.BinAdd:
		return specops.OpBinaryOpAddIntRest
	case specops.BinSubtract:
		return specops.OpBinaryOpSubtractIntRest
	case specops.BinMultiply:
		return specops.OpBinaryOpMultiplyIntRest
	default:
		return specops.OpBinaryOp
	}
}

func floatUnboxedOpFor(sub byte) specops.Op {
	switch sub {
	case specops.BinAdd:
		return specops.OpBinaryOpAddFloatUnboxed
	case specops.BinSubtract:
		return specops.OpBinaryOpSubtractFloatUnboxed
	case specops.BinMultiply:
		return specops.OpBinaryOpMultiplyFloatUnboxed
	default:
		return specops.OpBinaryOp
	}
}
