// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typeforest

// Source describes the "src" operand of TypeSet/TypeOverwrite: either a
// fresh root value not yet installed anywhere in the context (IsNew), or
// a reference to an existing node (Loc).
type Source struct {
	IsNew bool
	Fresh Node // valid when IsNew
	Loc   Loc  // valid when !IsNew
}

// NewSource wraps a freshly-constructed root node (e.g. RootPos(t)) as a
// Source with IsNew set.
func NewSource(fresh Node) Source { return Source{IsNew: true, Fresh: fresh} }

// AliasSource wraps a reference to an existing slot as a Source.
func AliasSource(loc Loc) Source { return Source{Loc: loc} }

// TypeSet merges dst's tree into src's tree by overwriting dst's root.
func (c *Context) TypeSet(src Source, dst Loc) {
	root := c.RootOf(dst)
	if src.IsNew {
		c.set(root, src.Fresh)
		return
	}
	if c.SameTree(src.Loc, dst) {
		return
	}
	c.set(root, refNode(src.Loc))
}

// children returns every Loc whose TagRef points directly at target.
func (c *Context) children(target Loc) []Loc {
	var out []Loc
	for _, l := range c.allLocs() {
		if l == target {
			continue
		}
		n := c.Node(l)
		if n.Tag() == TagRef && n.RefLoc() == target {
			out = append(out, l)
		}
	}
	return out
}

// installAt detaches whatever tree loc currently participates in —
// electing a new root for any orphaned subtree — then writes n into
// loc's slot. This is the shared machinery behind TypeOverwrite and
// Push: both are, at the node level, "replace this slot's identity
// without breaking whoever still references it."
func (c *Context) installAt(loc Loc, n Node) {
	old := c.Node(loc)
	switch old.Tag() {
	case TagRootPos, TagRootNeg:
		kids := c.children(loc)
		if len(kids) > 0 {
			newRoot := kids[0]
			c.set(newRoot, old)
			for _, k := range kids[1:] {
				c.set(k, refNode(newRoot))
			}
		}
	case TagRef:
		formerParent := old.RefLoc()
		for _, k := range c.children(loc) {
			c.set(k, refNode(formerParent))
		}
	case TagNull:
		// never referenced; nothing to detach.
	}
	c.set(loc, n)
}

// TypeOverwrite surgically detaches dst from its tree — electing a new
// root for any orphaned subtree — then installs src in dst's slot.
func (c *Context) TypeOverwrite(src Source, dst Loc) {
	if src.IsNew {
		c.installAt(dst, src.Fresh)
	} else {
		c.installAt(dst, refNode(src.Loc))
	}
}

// TypeSwap exchanges the contents of a and b, redirecting every node
// that pointed at a to point at b and vice versa. No-op if a and b are
// already in the same tree.
func (c *Context) TypeSwap(a, b Loc) {
	if c.SameTree(a, b) {
		return
	}
	va, vb := c.Node(a), c.Node(b)
	for _, l := range c.allLocs() {
		if l == a || l == b {
			continue
		}
		n := c.Node(l)
		if n.Tag() != TagRef {
			continue
		}
		switch n.RefLoc() {
		case a:
			c.set(l, refNode(b))
		case b:
			c.set(l, refNode(a))
		}
	}
	c.set(a, vb)
	c.set(b, va)
}
