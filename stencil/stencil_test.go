// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package stencil

import "testing"

func TestCompileAddInt(t *testing.T) {
	alloc := &Allocator{}
	defer alloc.Close()

	ops := []TraceOp{
		{Op: OpLoadConstInt, Arg: 2},
		{Op: OpLoadConstInt, Arg: 3},
		{Op: OpAddInt},
		{Op: OpReturn},
	}
	s, err := Compile(alloc, ops)
	if err != nil {
		t.Fatal(err)
	}
	if s.Entry() == 0 {
		t.Fatal("compiled stencil has a zero entry address")
	}
}

func TestCompileBadJumpTarget(t *testing.T) {
	alloc := &Allocator{}
	defer alloc.Close()

	ops := []TraceOp{
		{Op: OpJump, Arg: 7},
		{Op: OpReturn},
	}
	_, err := Compile(alloc, ops)
	if _, ok := err.(BadJumpTargetError); !ok {
		t.Errorf("Compile() error = %v, want BadJumpTargetError", err)
	}
}

func TestCompileEmptyTrace(t *testing.T) {
	alloc := &Allocator{}
	defer alloc.Close()
	if _, err := Compile(alloc, nil); err != ErrEmptyStencil {
		t.Errorf("Compile(nil) = %v, want ErrEmptyStencil", err)
	}
}

func TestCompileUnsupportedOp(t *testing.T) {
	alloc := &Allocator{}
	defer alloc.Close()
	ops := []TraceOp{{Op: Op(99)}}
	_, err := Compile(alloc, ops)
	if _, ok := err.(UnsupportedOpError); !ok {
		t.Errorf("Compile() error = %v, want UnsupportedOpError", err)
	}
}
