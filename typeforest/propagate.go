// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typeforest

import (
	"fmt"

	"github.com/go-interpreter/tier2/specops"
)

// ValueKind is the coarse classification of a runtime constant that
// LOAD_CONST's transfer function needs: just enough to decide which
// TypeID to push, never the constant's full value.
type ValueKind uint8

const (
	KindOther ValueKind = iota
	KindInt
	KindSmallInt // a compact non-negative integer; narrower than KindInt
	KindFloat
	KindList
	KindStr
	KindNone
)

// ConstPool is the tiny slice of a code object's constant table the
// propagator needs: what kind of value sits at index k. Provided by
// package host's Bytecode implementation.
type ConstPool interface {
	Kind(k uint32) ValueKind
	// RawBits returns the constant's bit-identical uint64 encoding — an
	// int64's own bits, or math.Float64bits(v) for a float — for
	// callers that need the literal value rather than just its kind.
	// Only the stencil compiler's LOAD_CONST lowering uses this; the
	// abstract propagator above never does.
	RawBits(k uint32) uint64
}

// typeIDForConst maps a LOAD_CONST's runtime kind to the TypeID pushed.
func typeIDForConst(k ValueKind) TypeID {
	switch k {
	case KindSmallInt:
		return TypeSmallIntID
	case KindInt:
		return TypeBoxedIntID
	case KindFloat:
		return TypeBoxedFloatID
	case KindList:
		return TypeListID
	case KindStr:
		return Intern("str", false)
	case KindNone:
		return Intern("NoneType", false)
	default:
		return Intern("<opaque>", false)
	}
}

// Propagate applies the abstract transfer function for one opcode over
// ctx. arg is the merged (post-EXTENDED_ARG) oparg.
func Propagate(op specops.Op, arg uint32, ctx *Context, consts ConstPool) error {
	switch op {
	case specops.OpLoadConst:
		kind := KindOther
		if consts != nil {
			kind = consts.Kind(arg)
		}
		ctx.Push(RootPos(typeIDForConst(kind)))

	case specops.OpLoadFast, specops.OpLoadFastNoIncref:
		ctx.Push(AliasNode(ctx.Local(int(arg))))

	case specops.OpStoreFast,
		specops.OpStoreFastUnboxedBoxed, specops.OpStoreFastBoxedUnboxed,
		specops.OpStoreFastUnboxedUnboxed, specops.OpStoreFastBoxedBoxed:
		src := ctx.At(0)
		ctx.TypeOverwrite(AliasSource(src), ctx.Local(int(arg)))
		ctx.StackShrink(1)

	case specops.OpSwap:
		top := ctx.At(0)
		bottom := ctx.At(int(arg) - 1)
		ctx.TypeSwap(top, bottom)

	case specops.OpCopy, specops.OpCopyNoIncref:
		src := ctx.At(int(arg) - 1)
		ctx.Push(AliasNode(src))

	case specops.OpPopTop, specops.OpPopTopNoDecref:
		ctx.StackShrink(1)

	case specops.OpBoxFloat:
		depth := int(arg)
		ctx.TypeOverwrite(NewSource(RootPos(TypeBoxedFloatID)), ctx.At(depth))

	case specops.OpUnboxFloat:
		depth := int(arg)
		ctx.TypeOverwrite(NewSource(RootPos(TypeUnboxedFloatID)), ctx.At(depth))

	case specops.OpCheckInt:
		// Success path: narrow the slot to boxed int. Failure path is
		// handled by the builder/linker when it spawns the alternative
		// BB (it calls RefineNegative on a copy of this context instead
		// of calling Propagate again).
		ctx.TypeSet(NewSource(RootPos(TypeBoxedIntID)), ctx.At(int(arg)))

	case specops.OpCheckFloat:
		ctx.TypeSet(NewSource(RootPos(TypeBoxedFloatID)), ctx.At(int(arg)))

	case specops.OpBinaryOpAddIntRest, specops.OpBinaryOpSubtractIntRest, specops.OpBinaryOpMultiplyIntRest:
		ctx.StackShrink(2)
		ctx.Push(RootPos(TypeBoxedIntID))

	case specops.OpBinaryOpAddFloatUnboxed, specops.OpBinaryOpSubtractFloatUnboxed, specops.OpBinaryOpMultiplyFloatUnboxed:
		ctx.StackShrink(2)
		ctx.Push(RootPos(TypeUnboxedFloatID))

	case specops.OpBinaryOp:
		// Generic fallback: result type unknown, two operands consumed.
		ctx.StackShrink(2)
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpBinarySubscrListIntRest:
		ctx.StackShrink(2)
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpStoreSubscrListIntRest:
		ctx.StackShrink(3)

	case specops.OpBinarySubscr:
		ctx.StackShrink(2)
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpStoreSubscr:
		ctx.StackShrink(3)

	case specops.OpCall:
		// The builder copies CALL verbatim and emits no BOX_FLOAT ahead of
		// it, so an unboxed slot in the call's operand window is not
		// reboxed; Propagate does only the stack bookkeeping. nargs is
		// carried in the low 16 bits of arg, return count is always 1.
		nargs := int(arg & 0xFFFF)
		ctx.StackShrink(nargs + 1) // +1 for the callable itself
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpBuildList, specops.OpBuildString:
		n := int(arg)
		ctx.StackShrink(n)
		typ := TypeListID
		if op == specops.OpBuildString {
			typ = Intern("str", false)
		}
		ctx.Push(RootPos(typ))

	case specops.OpBuildMap:
		n := int(arg) * 2
		ctx.StackShrink(n)
		ctx.Push(RootPos(Intern("dict", false)))

	case specops.OpLoadAttr:
		ctx.StackShrink(1)
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpReturnValue:
		ctx.StackShrink(1)

	case specops.OpReturnConst, specops.OpInterpreterExit, specops.OpResume, specops.OpResumeQuick:
		// no stack effect tracked by the forest.

	case specops.OpForIter:
		ctx.Push(RootPos(TypeUnknown))

	case specops.OpPopJumpIfFalse, specops.OpPopJumpIfTrue, specops.OpPopJumpIfNone, specops.OpPopJumpIfNotNone:
		ctx.StackShrink(1)

	case specops.OpJumpBackward, specops.OpJumpBackwardQuick:
		// pure control transfer, no stack effect.

	default:
		return fmt.Errorf("typeforest: propagate: unhandled opcode %d", op)
	}
	return nil
}

// InferBinaryOp implements the specialization ladder for
// BINARY_OP(+,-,*). It inspects (but does not mutate) the top two stack
// slots and reports which of the ladder's outcomes applies.
type BinaryOpOutcome int

const (
	// OutcomeNeedFloatGuard: an operand is wholly unknown; emit
	// CHECK_FLOAT and end the BB awaiting the guard's successors.
	OutcomeNeedFloatGuard BinaryOpOutcome = iota
	// OutcomeGenericRebox: an operand's negative set excludes both int
	// and float; rebox both and emit the generic BINARY_OP.
	OutcomeGenericRebox
	// OutcomeNeedIntGuard: an operand's negative set excludes float;
	// emit CHECK_INT.
	OutcomeNeedIntGuard
	// OutcomeFloatUnboxed: both operands are some float flavour; unbox
	// whichever is still boxed, then emit the unboxed-float op.
	OutcomeFloatUnboxed
	// OutcomeIntRest: both operands are int; emit the int-rest op.
	OutcomeIntRest
)

// InferBinaryOp runs the "infer_BINARY_OP" ladder over the two operand
// locations (left is deeper, right is top-of-stack). For the two guard
// outcomes it also reports guardDepth: the stack depth (0 for right, 1
// for left) of whichever operand actually tripped the condition, since
// that — not always the right operand — is the one the emitted guard
// and its failure-path refinement must target.
func InferBinaryOp(ctx *Context, left, right Loc) (outcome BinaryOpOutcome, guardDepth int) {
	lroot, rroot := ctx.Node(ctx.RootOf(left)), ctx.Node(ctx.RootOf(right))

	unknown := func(n Node) bool {
		return n.Tag() == TagRootPos && n.TypeID() == TypeUnknown
	}
	if unknown(lroot) {
		return OutcomeNeedFloatGuard, 1
	}
	if unknown(rroot) {
		return OutcomeNeedFloatGuard, 0
	}

	excludesBoth := func(n Node) bool {
		if n.Tag() != TagRootNeg {
			return false
		}
		mask := n.NegMask()
		floatExcluded := mask&NegBoxedFloat != 0 && mask&NegUnboxedFloat != 0
		intExcluded := mask&NegBoxedInt != 0 && mask&NegSmallInt != 0
		return floatExcluded && intExcluded
	}
	if excludesBoth(lroot) || excludesBoth(rroot) {
		return OutcomeGenericRebox, 0
	}

	excludesFloat := func(n Node) bool {
		return n.Tag() == TagRootNeg && n.NegMask()&NegBoxedFloat != 0 && n.NegMask()&NegUnboxedFloat != 0
	}
	if excludesFloat(lroot) {
		return OutcomeNeedIntGuard, 1
	}
	if excludesFloat(rroot) {
		return OutcomeNeedIntGuard, 0
	}

	isFloat := func(n Node) bool {
		return n.Tag() == TagRootPos && (n.TypeID() == TypeBoxedFloatID || n.TypeID() == TypeUnboxedFloatID)
	}
	if isFloat(lroot) && isFloat(rroot) {
		return OutcomeFloatUnboxed, 0
	}

	isInt := func(n Node) bool {
		return n.Tag() == TagRootPos && (n.TypeID() == TypeBoxedIntID || n.TypeID() == TypeSmallIntID)
	}
	if isInt(lroot) && isInt(rroot) {
		return OutcomeIntRest, 0
	}

	return OutcomeGenericRebox, 0
}

// RefineNegative implements the failure-path half of a type guard: add
// excluded to loc's ruled-out set, widening a positive-unknown root into
// a negative root if needed.
func (c *Context) RefineNegative(loc Loc, excluded uint8) {
	root := c.RootOf(loc)
	n := c.Node(root)
	switch n.Tag() {
	case TagRootNeg:
		c.set(root, RootNeg(n.NegMask()|excluded))
	case TagRootPos:
		if n.TypeID() != TypeUnknown {
			panic("typeforest: RefineNegative on a concretely-typed positive root")
		}
		c.set(root, RootNeg(excluded))
	default:
		panic("typeforest: RefineNegative on a non-root node")
	}
}
