// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package stencil

import "testing"

func TestAllocatorChaining(t *testing.T) {
	a := &Allocator{}
	defer a.Close()

	addr1, err := a.AllocateExec([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if addr1 == 0 {
		t.Fatal("AllocateExec returned a zero address")
	}
	if got, want := a.last.consumed, uint32(16); got != want {
		t.Errorf("consumed = %d, want %d", got, want)
	}

	addr2, err := a.AllocateExec([]byte{4, 3, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if addr2 <= addr1 {
		t.Errorf("second allocation at %#x did not land after the first at %#x", addr2, addr1)
	}
	if got, want := a.last.consumed, uint32(32); got != want {
		t.Errorf("consumed = %d, want %d", got, want)
	}

	// A request bigger than minAllocSize must open a fresh block rather
	// than fail or truncate.
	big := make([]byte, minAllocSize+4096)
	big[1] = 5
	if _, err := a.AllocateExec(big); err != nil {
		t.Fatal(err)
	}
	if got := len(a.blocks); got != 2 {
		t.Errorf("len(blocks) = %d, want 2 after an oversized request", got)
	}
}

func TestAllocateExecEmpty(t *testing.T) {
	a := &Allocator{}
	defer a.Close()
	if _, err := a.AllocateExec(nil); err != ErrEmptyStencil {
		t.Errorf("AllocateExec(nil) = %v, want ErrEmptyStencil", err)
	}
}
