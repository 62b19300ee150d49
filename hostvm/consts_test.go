// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import (
	"testing"

	"github.com/go-interpreter/tier2/typeforest"
)

func TestConstsInt(t *testing.T) {
	c := NewConsts()
	k := c.AddInt(42)
	if got := c.Kind(k); got != typeforest.KindInt {
		t.Fatalf("Kind(%d) = %v, want KindInt", k, got)
	}
	if got := c.Int(k); got != 42 {
		t.Fatalf("Int(%d) = %d, want 42", k, got)
	}
}

func TestConstsSmallInt(t *testing.T) {
	c := NewConsts()
	k := c.AddSmallInt(-1)
	if got := c.Kind(k); got != typeforest.KindSmallInt {
		t.Fatalf("Kind(%d) = %v, want KindSmallInt", k, got)
	}
	if got := c.Int(k); got != -1 {
		t.Fatalf("Int(%d) = %d, want -1", k, got)
	}
}

func TestConstsFloat(t *testing.T) {
	c := NewConsts()
	k := c.AddFloat(3.5)
	if got := c.Kind(k); got != typeforest.KindFloat {
		t.Fatalf("Kind(%d) = %v, want KindFloat", k, got)
	}
	if got := c.Float(k); got != 3.5 {
		t.Fatalf("Float(%d) = %g, want 3.5", k, got)
	}
}

func TestConstsIndicesAreSequential(t *testing.T) {
	c := NewConsts()
	a := c.AddInt(1)
	b := c.AddInt(2)
	if b != a+1 {
		t.Fatalf("second AddInt returned %d, want %d", b, a+1)
	}
}
