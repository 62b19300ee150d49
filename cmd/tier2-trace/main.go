// Copyright 2024 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tier2-trace runs one of a small set of built-in sample
// functions through hostvm sixteen times, enough calls to carry it past
// warmup onto tier-2, and prints the last call's result value. It does
// not print the BBs it built or which of them ran natively; -v turns on
// package tier2's debug log on stderr. It plays the same demonstration
// role wasm-dump plays for
// inspecting a .wasm module, except there is no file format to parse
// here — the "source" is a handful of Go-literal instruction streams
// built straight from package specops, since this module has no front
// end of its own.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-interpreter/tier2"
	"github.com/go-interpreter/tier2/host"
	"github.com/go-interpreter/tier2/hostvm"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tier2-trace [options] sample

available samples: sum-loop, add-guarded

options:
`)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

var (
	flagVerbose = flag.Bool("v", false, "enable package tier2's debug log on stderr")
	flagN       = flag.Int64("n", 32, "argument value passed to the sample")
)

func main() {
	log.SetPrefix("tier2-trace: ")
	log.SetFlags(0)

	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	sample, ok := samples[flag.Arg(0)]
	if !ok {
		log.Fatalf("unknown sample %q", flag.Arg(0))
	}

	tier2.PrintDebugInfo = *flagVerbose

	fn, args := sample(*flagN)
	vm := hostvm.NewVM()
	defer vm.Close(fn)

	// Run once per warmup threshold so the sample actually reaches
	// tier-2 before we report on it, mirroring a real caller hammering
	// a hot function rather than a single cold invocation.
	var (
		result host.Value
		err    error
	)
	for i := 0; i < 16; i++ {
		result, err = vm.Run(fn, args)
		if err != nil {
			log.Fatalf("run %d: %v", i, err)
		}
	}

	fmt.Printf("result: Typ=%v I=%d F=%g\n", result.Typ, result.I, result.F)
}
