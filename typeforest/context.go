// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typeforest

import "errors"

// ErrOutOfMemory is returned by Copy when it is given a nil context.
var ErrOutOfMemory = errors.New("typeforest: out of memory")

// Context owns a pair of parallel locals/stack arrays. Any node in either
// array may reference (via Loc) a node in either array; the forest spans
// both.
type Context struct {
	locals []Node
	stack  []Node

	// stackTop is the number of live stack slots. Slots at or above it
	// keep their storage (so REFs into them stay valid) but are
	// semantically dead until reused.
	stackTop int
}

// Init returns a fresh Context with every slot set to ROOT_POS/unknown.
func Init(localsLen, stackLen int) *Context {
	c := &Context{
		locals: make([]Node, localsLen),
		stack:  make([]Node, stackLen),
	}
	for i := range c.locals {
		c.locals[i] = RootPos(TypeUnknown)
	}
	for i := range c.stack {
		c.stack[i] = RootPos(TypeUnknown)
	}
	return c
}

// LocalsLen reports the number of local-variable slots.
func (c *Context) LocalsLen() int { return len(c.locals) }

// StackLen reports the capacity of the stack array (not the live height).
func (c *Context) StackLen() int { return len(c.stack) }

// StackTop is the number of live stack slots.
func (c *Context) StackTop() int { return c.stackTop }

// SetStackTop sets the live stack height directly, without going through
// Push or StackShrink. Nothing in this module calls it.
func (c *Context) SetStackTop(n int) {
	if n < 0 || n > len(c.stack) {
		panic("typeforest: stack top out of range")
	}
	c.stackTop = n
}

// Push installs n at the current stack top and advances it. A slot at or
// above stack_top may still be referenced by a REF elsewhere in the
// forest, so reusing it goes through the same detach-and-install logic
// as TypeOverwrite rather than a raw slice write — growing the stack is
// itself a kind of overwrite.
func (c *Context) Push(n Node) Loc {
	if c.stackTop == len(c.stack) {
		c.stack = append(c.stack, RootPos(TypeUnknown))
	}
	loc := Loc{Arena: ArenaStack, Index: c.stackTop}
	c.installAt(loc, n)
	c.stackTop++
	return loc
}

// AliasNode builds the REF node TypeSet/Push use to make one slot alias
// another (e.g. LOAD_FAST's "push a REF aliasing locals[i]").
func AliasNode(loc Loc) Node { return refNode(loc) }

// StackShrink decrements stack_top by n without clearing storage: slots
// at or above the new top keep their bit pattern because other slots'
// REFs may still target them; those references are only ever cleared by
// TypeOverwrite when the slot is reused.
func (c *Context) StackShrink(n int) {
	if n < 0 || n > c.stackTop {
		panic("typeforest: stack underflow in StackShrink")
	}
	c.stackTop -= n
}

// At returns the coordinate (arena,index) of the live stack slot depth
// positions below the top one, i.e. the stack[stack_top-1-depth] idiom used throughout
// the transfer functions in propagate.go.
func (c *Context) At(depth int) Loc {
	idx := c.stackTop - 1 - depth
	if idx < 0 || idx >= len(c.stack) {
		panic("typeforest: stack depth out of range")
	}
	return Loc{Arena: ArenaStack, Index: idx}
}

// Local returns the coordinate of local variable i.
func (c *Context) Local(i int) Loc {
	if i < 0 || i >= len(c.locals) {
		panic("typeforest: local index out of range")
	}
	return Loc{Arena: ArenaLocals, Index: i}
}

func (c *Context) arena(a Arena) []Node {
	if a == ArenaStack {
		return c.stack
	}
	return c.locals
}

// Node returns the raw node stored at loc (no REF-chasing).
func (c *Context) Node(loc Loc) Node {
	return c.arena(loc.Arena)[loc.Index]
}

// set writes n at loc, without any forest bookkeeping. Internal use only
// — callers outside this package must go through TypeSet/TypeOverwrite/
// TypeSwap so that the forest invariants (single root, acyclic) hold.
func (c *Context) set(loc Loc, n Node) {
	c.arena(loc.Arena)[loc.Index] = n
}

// Copy deep-clones ctx. Because REF payloads are coordinates rather than
// addresses (see node.go's package doc), a coordinate computed against
// the old arrays is still correct against the new ones at an identical
// offset — deep-copy degenerates to a plain slice copy.
func Copy(ctx *Context) (*Context, error) {
	if ctx == nil {
		return nil, ErrOutOfMemory
	}
	n := &Context{
		locals:   make([]Node, len(ctx.locals)),
		stack:    make([]Node, len(ctx.stack)),
		stackTop: ctx.stackTop,
	}
	copy(n.locals, ctx.locals)
	copy(n.stack, ctx.stack)
	return n, nil
}

// RootOf follows the REF chain from loc to its root and returns the
// root's coordinate. Terminates in at most LocalsLen()+StackLen() steps
// as long as the forest stays acyclic.
func (c *Context) RootOf(loc Loc) Loc {
	steps := 0
	max := len(c.locals) + len(c.stack) + 1
	for {
		n := c.Node(loc)
		if n.Tag() != TagRef {
			return loc
		}
		loc = n.RefLoc()
		steps++
		if steps > max {
			panic("typeforest: cyclic REF chain")
		}
	}
}

// SameTree reports whether a and b resolve to the same root.
func (c *Context) SameTree(a, b Loc) bool {
	return c.RootOf(a) == c.RootOf(b)
}

// Locate asserts that loc's index actually lies within the named arena's
// bounds. Loc already carries its offset by construction, so this is a
// direct bounds check rather than a search — it exists only to assert
// that construction was sound.
func (c *Context) Locate(loc Loc) {
	if loc.Index < 0 || loc.Index >= len(c.arena(loc.Arena)) {
		panic("typeforest: Loc does not lie inside this context")
	}
}

// allLocs returns every coordinate in the context, locals first then
// stack, used by the mutation primitives to scan for children of a node
// being detached.
func (c *Context) allLocs() []Loc {
	locs := make([]Loc, 0, len(c.locals)+len(c.stack))
	for i := range c.locals {
		locs = append(locs, Loc{Arena: ArenaLocals, Index: i})
	}
	for i := range c.stack {
		locs = append(locs, Loc{Arena: ArenaStack, Index: i})
	}
	return locs
}
