// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package specops enumerates the tier-1 opcodes a BBBuilder consumes and
// the extended, specialized opcode surface a BBBuilder emits. It plays
// the same role for this module that wasm/operators plays for wagon: a
// small, dependency-free table of byte-sized instruction codes plus the
// handful of helpers (cache-slot layout, double-EXTENDED_ARG detection) that every
// consumer of the table needs.
package specops

// Op identifies a single opcode, tier-1 or tier-2.
type Op byte

// Tier-1 opcodes. This is not the full opcode space of a real source
// language — only the subset the BBBuilder and the reference host
// (package hostvm) need to exercise specialization and linking.
const (
	OpResume Op = iota + 1
	OpLoadConst
	OpLoadFast
	OpLoadFastNoIncref // accepted wherever OpLoadFast is; the builder does not emit it
	OpStoreFast
	OpSwap
	OpBinaryOp // generic; sub-operator carried in the low byte of arg
	OpCall
	OpBuildMap
	OpBuildList
	OpBuildString
	OpLoadAttr
	OpBinarySubscr
	OpStoreSubscr
	OpPopJumpIfFalse
	OpPopJumpIfTrue
	OpPopJumpIfNone
	OpPopJumpIfNotNone
	OpJumpBackward
	OpForIter
	OpReturnValue
	OpReturnConst
	OpInterpreterExit
	OpExtendedArg
	OpPopTop
	OpCopy

	// Forbidden opcodes: any one of these disqualifies a function from
	// tier-2 entirely.
	OpYieldValue
	OpSend
	OpPushExcInfo
	OpReraise
	OpCheckExcMatch
	OpMakeCell
	OpCopyFreeVars
	OpMakeFunction
	OpListAppend
	OpSetAdd
	OpDictMerge
	OpSetupAnnotations
	OpMatchClass
	OpMatchMapping
	OpMatchSequence
	OpMatchKeys
	OpDeleteFast
	OpFormatValue
)

// BinaryOp sub-operators, carried in the low byte of OpBinaryOp's oparg.
const (
	BinAdd byte = iota
	BinSubtract
	BinMultiply
	BinOther // anything this module does not specialize
)

// Specialized tier-2 opcodes emitted by the BBBuilder. Branches and
// guards reuse their tier-1 opcode value and simply carry cache slots
// (see EncodeBranchCache/DecodeBranchCache) rather than being rewritten
// into a separate BB-prefixed opcode family.
const (
	OpCheckInt Op = iota + 128
	OpCheckFloat
	OpUnboxFloat
	OpBoxFloat
	OpCopyNoIncref
	OpPopTopNoDecref
	OpStoreFastUnboxedBoxed
	OpStoreFastBoxedUnboxed
	OpStoreFastUnboxedUnboxed
	OpStoreFastBoxedBoxed
	OpBinaryOpAddFloatUnboxed
	OpBinaryOpSubtractFloatUnboxed
	OpBinaryOpMultiplyFloatUnboxed
	OpBinaryOpAddIntRest
	OpBinaryOpSubtractIntRest
	OpBinaryOpMultiplyIntRest
	OpBinarySubscrListIntRest
	OpStoreSubscrListIntRest
	OpResumeQuick
	OpJumpBackwardQuick
)

// Forbidden is the set of opcodes that disqualify a function from tier-2
// entirely. Two consecutive EXTENDED_ARG prefixes are a separate,
// positional check (see IsDoubleExtendedArg) since it is not a single
// opcode value.
var Forbidden = map[Op]bool{
	OpYieldValue:        true,
	OpSend:              true,
	OpPushExcInfo:       true,
	OpReraise:           true,
	OpCheckExcMatch:     true,
	OpMakeCell:          true,
	OpCopyFreeVars:      true,
	OpMakeFunction:      true,
	OpListAppend:        true,
	OpSetAdd:            true,
	OpDictMerge:         true,
	OpSetupAnnotations:  true,
	OpMatchClass:        true,
	OpMatchMapping:      true,
	OpMatchSequence:     true,
	OpMatchKeys:         true,
	OpDeleteFast:        true,
	OpFormatValue:       true,
}

// Optimizable is the set of opcodes whose presence satisfies the warmup
// gate's "require at least one optimizable opcode" rule.
var Optimizable = map[Op]bool{
	OpBinaryOp: true,
}

// InlineCacheEntriesBBBranch is the number of 16-bit cache slots following
// a BB_BRANCH codeunit. The builder does not read it: it gives each
// conditional branch, FOR_ITER and type guard two cache words (one per
// side) and each lowered backward jump one.
const InlineCacheEntriesBBBranch = 1

// InlineCacheEntriesForIter is the number of cache slots the tier-1
// FOR_ITER carries. The builder does not read it and does not adjust
// FOR_ITER's oparg.
const InlineCacheEntriesForIter = 1

// EncodeBranchCache packs the first cache word following BB_BRANCH:
// (bb_id << 1) | is_type_guard_flag.
func EncodeBranchCache(bbID int, isTypeGuard bool) uint16 {
	if bbID < 0 || bbID > 0x7FFF {
		panic("specops: bb id does not fit in 15 bits")
	}
	v := uint16(bbID) << 1
	if isTypeGuard {
		v |= 1
	}
	return v
}

// DecodeBranchCache is the inverse of EncodeBranchCache.
func DecodeBranchCache(word uint16) (bbID int, isTypeGuard bool) {
	return int(word >> 1), word&1 != 0
}

// IsDoubleExtendedArg reports whether two opcodes in a row are both
// EXTENDED_ARG — one of the forbidden patterns a warmup gate must reject.
func IsDoubleExtendedArg(prev, cur Op) bool {
	return prev == OpExtendedArg && cur == OpExtendedArg
}
