// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package stencil

import "unsafe"

// jitcall is implemented in native_amd64.s. It moves pointers to the
// stack and locals slice headers into R10/R11 — the two registers every
// generated stencil in gen_amd64.go expects them in — then calls entry
// and returns whatever is left in AX. Named and shaped after wagon's own
// exec/internal/compile jitcall, though that file's assembly source was
// not present in the retrieved copy of the package; native_amd64.s below
// is written fresh against the calling convention backend_amd64.go
// documents (R10/R11 reserved for the two slice headers).
//
//go:noescape
func jitcall(entry unsafe.Pointer, stack, locals *[]uint64) uint64

// Invoke runs s with the given value stack and locals, returning
// whatever OpReturn left on top of the stack.
func (s *Stencil) Invoke(stack, locals *[]uint64) uint64 {
	return jitcall(unsafe.Pointer(s.entry), stack, locals)
}
