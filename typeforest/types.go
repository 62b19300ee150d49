// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package typeforest

import "sync"

// descriptor is what a ROOT_POS node's TypeID ultimately names. Unlike
// the reference design we do not store a raw pointer to the runtime's
// type-object; Intern gives out a small stable ID instead, which keeps
// Node free of unsafe.Pointer and keeps the forest GC-agnostic.
type descriptor struct {
	name    string
	unboxed bool
}

var (
	registryMu   sync.Mutex
	registry     = []descriptor{{name: "<unknown>"}} // index 0 == TypeUnknown
	registryByID = map[string]TypeID{}
)

// Intern returns the stable TypeID for name, registering it (with the
// given unboxed-ness) on first use. Concrete types seen only at LOAD_CONST
// time (str, dict, the object's own class, ...) go through Intern; the
// five "interesting" types tracked by the negative bitmask are
// pre-interned below so their IDs are stable across packages.
func Intern(name string, unboxed bool) TypeID {
	registryMu.Lock()
	defer registryMu.Unlock()
	if id, ok := registryByID[name]; ok {
		return id
	}
	id := TypeID(len(registry))
	registry = append(registry, descriptor{name: name, unboxed: unboxed})
	registryByID[name] = id
	return id
}

// IsUnboxed reports whether t names one of this engine's internal
// unboxed representations. TypeUnknown is never unboxed.
func IsUnboxed(t TypeID) bool {
	if t == TypeUnknown || int(t) >= len(registry) {
		return false
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[t].unboxed
}

// Name returns the interned name for t, for debugging/printing.
func Name(t TypeID) string {
	if int(t) >= len(registry) {
		return "<invalid>"
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[t].name
}

// Pre-interned concrete types the propagator and builder refer to by
// name. Order fixed at package init so tests can rely on stable IDs.
var (
	TypeBoxedFloatID   = Intern("float", false)
	TypeUnboxedFloatID = Intern("float$unboxed", true)
	TypeBoxedIntID     = Intern("int", false)
	TypeSmallIntID     = Intern("smallint", false)
	TypeListID         = Intern("list", false)
)
