// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typeforest

import "math"

// DiffIncompatible is the sentinel INT_MAX value returned by Diff when
// the two contexts are not Compatible.
const DiffIncompatible = math.MaxInt32

// shapeCompatible checks that the root of loc in cur, mapped into base at
// the identical coordinate, is the same tree as the root of loc in base
// — and symmetrically the other way. This is the "same shape" half of
// compatibility: it allows cur's aliasing structure to be a subtree of
// base's (or vice versa) as long as the two agree on which slots alias
// which, grounded on Python/tier2.c's typenode_is_compatible.
func shapeCompatible(cur, base *Context, loc Loc) bool {
	rootCur := cur.RootOf(loc)
	rootBase := base.RootOf(loc)
	return cur.SameTree(rootBase, rootCur) && base.SameTree(rootCur, rootBase)
}

// typeAt returns the concrete TypeID at loc's root if it is a ROOT_POS
// node, or TypeUnknown for ROOT_NEG (a ROOT_NEG root has no single
// concrete type — only a ruled-out set).
func typeAt(ctx *Context, loc Loc) TypeID {
	root := ctx.RootOf(loc)
	n := ctx.Node(root)
	if n.Tag() == TagRootPos {
		return n.TypeID()
	}
	return TypeUnknown
}

// Compatible reports whether a runtime state shaped like cur may
// validly execute on tier-2 code that was compiled assuming base: the two
// must agree on which slots alias which, and every live slot's type pair
// must be one typeDiff accepts.
//
// Naming follows Python/tier2.c's diff_typecontext/typecontext_is_compatible
// exactly: "cur" is ctx1 (the state being checked), "base" is ctx2 (the
// context the existing BB version was built from). Which side is allowed
// to be more specific than the other is asymmetric — see the worked
// cases in typeDiff below — so this implementation follows the C source
// precisely rather than a paraphrase of it.
func Compatible(cur, base *Context) bool {
	if len(cur.locals) != len(base.locals) || len(cur.stack) != len(base.stack) {
		return false
	}
	if cur.stackTop != base.stackTop {
		return false
	}
	for i := range cur.locals {
		loc := Loc{Arena: ArenaLocals, Index: i}
		if !shapeCompatible(cur, base, loc) {
			return false
		}
		if _, ok := typeDiff(typeAt(cur, loc), typeAt(base, loc)); !ok {
			return false
		}
	}
	for i := 0; i < cur.stackTop; i++ {
		loc := Loc{Arena: ArenaStack, Index: i}
		if !shapeCompatible(cur, base, loc) {
			return false
		}
		if _, ok := typeDiff(typeAt(cur, loc), typeAt(base, loc)); !ok {
			return false
		}
	}
	return true
}

// typeDiff classifies one (a=cur type, b=base type) pair, per
// Python/tier2.c's diff_typecontext:
//
//  1. a == b                      -> compatible, diff 0
//  2. a known, b unknown          -> compatible, diff 1 (base is generic)
//  3. a unknown, b known          -> incompatible (code assumes a type
//     the current state does not have)
//  4. a known, b known, a != b    -> incompatible (type conversion)
//  5. a is this engine's unboxed representation and a != b
//     -> incompatible (boxed/unboxed mismatch), even when b is unknown
//
// ok is false exactly when the pair makes the whole contexts
// incompatible.
func typeDiff(a, b TypeID) (diffContribution int, ok bool) {
	if a == TypeUnknown && b != TypeUnknown {
		return 0, false
	}
	if a != b && b != TypeUnknown {
		return 0, false
	}
	if IsUnboxed(a) && a != b {
		return 0, false
	}
	if a != b {
		return 1, true
	}
	return 0, true
}

// Diff counts the positions where cur and base disagree on type, or
// returns DiffIncompatible if the two are not Compatible.
func Diff(cur, base *Context) int {
	if !Compatible(cur, base) {
		return DiffIncompatible
	}
	total := 0
	for i := range cur.locals {
		a := typeAt(cur, Loc{Arena: ArenaLocals, Index: i})
		b := typeAt(base, Loc{Arena: ArenaLocals, Index: i})
		d, ok := typeDiff(a, b)
		if !ok {
			return DiffIncompatible
		}
		total += d
	}
	for i := 0; i < cur.stackTop; i++ {
		a := typeAt(cur, Loc{Arena: ArenaStack, Index: i})
		b := typeAt(base, Loc{Arena: ArenaStack, Index: i})
		d, ok := typeDiff(a, b)
		if !ok {
			return DiffIncompatible
		}
		total += d
	}
	return total
}
