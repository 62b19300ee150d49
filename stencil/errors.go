// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stencil

import (
	"errors"
	"fmt"
)

// ErrEmptyStencil is returned by AllocateExec/Compile when there is no
// machine code to install.
var ErrEmptyStencil = errors.New("stencil: empty machine code")

// UnsupportedOpError is returned by Compile when a TraceOp names an
// opcode the amd64 backend has no code generator for.
type UnsupportedOpError struct {
	Op Op
}

func (e UnsupportedOpError) Error() string {
	return fmt.Sprintf("stencil: amd64 backend cannot handle op %d", e.Op)
}

// BadJumpTargetError is returned by Compile when a JUMP/JUMP_IF_ZERO's
// Arg does not index an existing TraceOp.
type BadJumpTargetError struct {
	Target int64
}

func (e BadJumpTargetError) Error() string {
	return fmt.Sprintf("stencil: jump target %d out of range", e.Target)
}
