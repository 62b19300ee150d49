// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import (
	"math"

	"github.com/go-interpreter/tier2/typeforest"
)

// constEntry is one slot of a function's constant table: a coarse kind
// tag plus the bit pattern RawBits hands back unexamined.
type constEntry struct {
	kind typeforest.ValueKind
	bits uint64
}

// Consts is hostvm's typeforest.ConstPool implementation: a flat,
// append-only table built once when a Function is assembled.
type Consts struct {
	entries []constEntry
}

// NewConsts returns an empty constant table.
func NewConsts() *Consts { return &Consts{} }

// AddInt appends a boxed-int constant and returns its index.
func (c *Consts) AddInt(v int64) uint32 {
	return c.add(constEntry{kind: typeforest.KindInt, bits: uint64(v)})
}

// AddSmallInt appends a small-int constant and returns its index.
func (c *Consts) AddSmallInt(v int64) uint32 {
	return c.add(constEntry{kind: typeforest.KindSmallInt, bits: uint64(v)})
}

// AddFloat appends a boxed-float constant and returns its index.
func (c *Consts) AddFloat(v float64) uint32 {
	return c.add(constEntry{kind: typeforest.KindFloat, bits: math.Float64bits(v)})
}

// AddOpaque appends a constant this module never specializes (str,
// list, dict, None, ...) and returns its index. kind drives the
// propagator's transfer function; hostvm never reads opaque into a raw
// uint64 so bits is always zero for these.
func (c *Consts) AddOpaque(kind typeforest.ValueKind) uint32 {
	return c.add(constEntry{kind: kind})
}

func (c *Consts) add(e constEntry) uint32 {
	c.entries = append(c.entries, e)
	return uint32(len(c.entries) - 1)
}

// Kind satisfies typeforest.ConstPool.
func (c *Consts) Kind(k uint32) typeforest.ValueKind { return c.entries[k].kind }

// RawBits satisfies typeforest.ConstPool.
func (c *Consts) RawBits(k uint32) uint64 { return c.entries[k].bits }

// Int returns the int64 constant at k, for the tier-1 interpreter loop's
// LOAD_CONST handling.
func (c *Consts) Int(k uint32) int64 { return int64(c.entries[k].bits) }

// Float returns the float64 constant at k.
func (c *Consts) Float(k uint32) float64 { return math.Float64frombits(c.entries[k].bits) }
