// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"errors"
	"fmt"

	"github.com/go-interpreter/tier2/specops"
)

// ErrOutOfMemory names the out-of-memory error kind. No function in this
// package returns it; a failed type-context copy surfaces
// typeforest.ErrOutOfMemory instead.
var ErrOutOfMemory = errors.New("tier2: out of memory")

// ErrNotEligible is returned by Initialize when a function fails the
// warmup gate for want of an optimizable opcode or because of a
// double-EXTENDED_ARG run (a forbidden opcode is reported as
// UnsupportedOpcodeError instead), and by the Linker when a BB has no
// pending edge of the requested kind.
var ErrNotEligible = errors.New("tier2: function not eligible for tier-2")

// UnsupportedOpcodeError is returned by the eligibility scan and the
// builder when they meet a forbidden opcode. An opcode the propagator has
// no transfer function for is reported by typeforest.Propagate's own
// error instead.
type UnsupportedOpcodeError struct {
	Op specops.Op
}

func (e UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("tier2: unsupported opcode %d", e.Op)
}

// VersionExhaustionError is returned by Registry.RegisterVersion when a
// backward-jump target's version ring is already at capacity and the
// incoming context does not match any existing version closely enough to
// reuse one.
type VersionExhaustionError struct {
	TargetOffset int
}

func (e VersionExhaustionError) Error() string {
	return fmt.Sprintf("tier2: backward-jump target at tier-1 pc %d has exhausted its version table", e.TargetOffset)
}
