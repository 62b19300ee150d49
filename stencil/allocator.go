// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package stencil

import (
	"fmt"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// minAllocSize is the size of each executable mapping Allocator requests
// from the OS, reused verbatim from wagon's exec/internal/compile
// chunking constant: a single native stencil is always far smaller than
// this, so most Compile calls just bump a pointer inside the current
// mapping instead of paying for a new mmap.
const minAllocSize = 128 * 1024

// allocationAlignment keeps every stencil's entry point aligned enough
// for the backend's own instruction decoder assumptions (golang-asm pads
// to word boundaries internally; this just keeps our own bookkeeping
// predictable).
const allocationAlignment = 16

// execBlock is one executable mapping. Like a BBSpace segment, it is
// never moved or shrunk once created: a Stencil's entry address, handed
// out by AllocateExec, stays valid until Close tears the whole Allocator
// down.
type execBlock struct {
	mem       mmap.MMap
	consumed  uint32
	remaining uint32
}

// Allocator hands out executable memory for compiled stencils. The
// original wagon allocator.go this module was retrieved alongside was
// not present in the pack (only allocator_test.go survived) — this is a
// fresh implementation of the same MMapAllocator shape the test
// documents: chained fixed-size blocks, a bump pointer per block, and a
// new block opened only when the current one cannot fit the request.
type Allocator struct {
	blocks []*execBlock
	last   *execBlock
}

func (a *Allocator) newBlock(min int) (*execBlock, error) {
	size := minAllocSize
	if min > size {
		size = min
	}
	m, err := mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("stencil: mmap region of %d bytes: %w", size, err)
	}
	b := &execBlock{mem: m, remaining: uint32(size)}
	a.blocks = append(a.blocks, b)
	a.last = b
	return b, nil
}

// AllocateExec copies code into executable memory and returns the
// address of its first byte.
func (a *Allocator) AllocateExec(code []byte) (uintptr, error) {
	if len(code) == 0 {
		return 0, ErrEmptyStencil
	}
	aligned := uint32((len(code) + allocationAlignment - 1) &^ (allocationAlignment - 1))
	if a.last == nil || a.last.remaining < aligned {
		if _, err := a.newBlock(int(aligned)); err != nil {
			return 0, err
		}
	}
	b := a.last
	off := b.consumed
	copy(b.mem[off:], code)
	b.consumed += aligned
	b.remaining -= aligned
	return uintptr(unsafe.Pointer(&b.mem[off])), nil
}

// Close unmaps every block this Allocator has ever handed out. Callers
// must not invoke any Stencil's entry point after Close returns.
func (a *Allocator) Close() error {
	var firstErr error
	for _, b := range a.blocks {
		if err := b.mem.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.blocks = nil
	a.last = nil
	return firstErr
}
