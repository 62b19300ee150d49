// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tier2

import (
	"log"
	"os"
)

// PrintDebugInfo toggles verbose BB-build/link/compile tracing, the same
// knob wasm.PrintDebugInfo and validate.PrintDebugInfo expose in the
// teacher repo.
var PrintDebugInfo = false

var logger *log.Logger

// debugWriter forwards to os.Stderr while PrintDebugInfo is set and drops
// the output otherwise, so a change to the flag takes effect at once.
type debugWriter struct{}

func (debugWriter) Write(p []byte) (int, error) {
	if PrintDebugInfo {
		return os.Stderr.Write(p)
	}
	return len(p), nil
}

func init() {
	logger = log.New(debugWriter{}, "tier2: ", log.Lshortfile)
}
