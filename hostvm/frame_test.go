// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import (
	"testing"

	"github.com/go-interpreter/tier2/host"
)

func TestFrameLocalsSeededFromArgs(t *testing.T) {
	fn := NewFunction(nil, NewConsts(), 3, 4)
	fr := NewFrame(fn, []host.Value{{Typ: host.TypeBoxedInt, I: 7}, {Typ: host.TypeBoxedInt, I: 9}})
	if got := fr.Local(0); got.I != 7 {
		t.Fatalf("Local(0) = %d, want 7", got.I)
	}
	if got := fr.Local(1); got.I != 9 {
		t.Fatalf("Local(1) = %d, want 9", got.I)
	}
	if got := fr.Local(2); got.Typ != host.TypeUnknown {
		t.Fatalf("Local(2) = %+v, want zero Value", got)
	}
}

func TestFramePushPop(t *testing.T) {
	fn := NewFunction(nil, NewConsts(), 0, 4)
	fr := NewFrame(fn, nil)
	fr.Push(host.Value{Typ: host.TypeBoxedInt, I: 1})
	fr.Push(host.Value{Typ: host.TypeBoxedInt, I: 2})
	if got := fr.StackLen(); got != 2 {
		t.Fatalf("StackLen() = %d, want 2", got)
	}
	top := fr.Pop()
	if top.I != 2 {
		t.Fatalf("Pop() = %d, want 2", top.I)
	}
	if got := fr.StackLen(); got != 1 {
		t.Fatalf("StackLen() after Pop = %d, want 1", got)
	}
}

func TestFrameSetLocalAndPC(t *testing.T) {
	fn := NewFunction(nil, NewConsts(), 1, 1)
	fr := NewFrame(fn, nil)
	fr.SetLocal(0, host.Value{Typ: host.TypeBoxedInt, I: 5})
	if got := fr.Local(0); got.I != 5 {
		t.Fatalf("Local(0) = %d, want 5", got.I)
	}
	fr.SetPC(3)
	if got := fr.PC(); got != 3 {
		t.Fatalf("PC() = %d, want 3", got)
	}
	if fr.Code() != fn {
		t.Fatal("Code() did not return the Function the Frame was built from")
	}
}
