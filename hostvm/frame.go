// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hostvm

import "github.com/go-interpreter/tier2/host"

// Frame is one activation record: a Function's locals and operand stack
// for a single call, the same separation wagon's ctx (code/pc/locals/
// stack) keeps per VM.ExecCode invocation except hostvm allows nested
// calls to coexist, each with its own Frame.
type Frame struct {
	code   *Function
	pc     host.Tier1PC
	locals []host.Value
	stack  []host.Value
}

// NewFrame returns a Frame ready to execute code from PC 0, with args
// installed as the leading locals.
func NewFrame(code *Function, args []host.Value) *Frame {
	locals := make([]host.Value, code.NumLocals())
	copy(locals, args)
	return &Frame{
		code:   code,
		locals: locals,
		stack:  make([]host.Value, 0, code.MaxStack()),
	}
}

// Code satisfies host.Frame.
func (f *Frame) Code() host.Code { return f.code }

// PC satisfies host.Frame.
func (f *Frame) PC() host.Tier1PC { return f.pc }

// SetPC satisfies host.Frame.
func (f *Frame) SetPC(pc host.Tier1PC) { f.pc = pc }

// Local satisfies host.Frame.
func (f *Frame) Local(i int) host.Value { return f.locals[i] }

// SetLocal satisfies host.Frame.
func (f *Frame) SetLocal(i int, v host.Value) { f.locals[i] = v }

// Push satisfies host.Frame.
func (f *Frame) Push(v host.Value) { f.stack = append(f.stack, v) }

// Pop satisfies host.Frame.
func (f *Frame) Pop() host.Value {
	top := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return top
}

// StackLen satisfies host.Frame.
func (f *Frame) StackLen() int { return len(f.stack) }
