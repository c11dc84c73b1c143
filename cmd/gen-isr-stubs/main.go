// Command gen-isr-stubs emits internal/interrupt/isr_stubs_amd64.s: one
// assembly entry stub per IDT vector plus the stubTable address table
// the IDT builder (internal/interrupt/idt.go) packs into gate
// descriptors.
//
// The 256 stubs are near-identical, differing only in vector number
// and whether the CPU pushes an error code, so they are generated
// from a template rather than hand-written. The output is checked
// in, the way generated protobuf/stringer code usually is, so the
// kernel build needs no code generation step beyond `go build`.
//
// Run from the repository root with: go run ./cmd/gen-isr-stubs
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
)

// numVectors must match interrupt.NumVectors.
const numVectors = 256

// errorCodeVectors lists the x86_64 exception vectors for which the
// CPU itself pushes an error code onto the stack before entering the
// handler; every other vector needs a synthetic zero pushed in its
// place so every stub produces the same frame.
var errorCodeVectors = map[int]bool{
	8: true, 10: true, 11: true, 12: true,
	13: true, 14: true, 17: true, 21: true,
	29: true, 30: true,
}

func main() {
	var buf bytes.Buffer
	fmt.Fprint(&buf, header)

	vectors := make([]int, 0, numVectors)
	for v := 0; v < numVectors; v++ {
		vectors = append(vectors, v)
	}
	sort.Ints(vectors)

	for _, v := range vectors {
		writeStub(&buf, v)
	}

	writeCommonStub(&buf)
	writeStubTable(&buf, vectors)

	if err := os.WriteFile("internal/interrupt/isr_stubs_amd64.s", buf.Bytes(), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "gen-isr-stubs:", err)
		os.Exit(1)
	}
}

func writeStub(buf *bytes.Buffer, vector int) {
	fmt.Fprintf(buf, "TEXT ·isrStub%d(SB), NOSPLIT, $0-0\n", vector)
	if !errorCodeVectors[vector] {
		fmt.Fprintf(buf, "\tPUSHQ $0\n")
	}
	fmt.Fprintf(buf, "\tPUSHQ $%d\n", vector)
	fmt.Fprintf(buf, "\tJMP   isrCommon(SB)\n\n")
}

func writeCommonStub(buf *bytes.Buffer) {
	fmt.Fprint(buf, commonStub)
}

func writeStubTable(buf *bytes.Buffer, vectors []int) {
	fmt.Fprintf(buf, "GLOBL ·stubTable(SB), RODATA, $%d\n", numVectors*8)
	for _, v := range vectors {
		fmt.Fprintf(buf, "DATA ·stubTable+%d(SB)/8, $·isrStub%d(SB)\n", v*8, v)
	}
}

const header = `// Code generated by cmd/gen-isr-stubs. DO NOT EDIT.
//go:build fkernel_freestanding

#include "textflag.h"

// Each of the 256 stubs below implements the uniform entry sequence:
// push a synthetic error code of 0 for vectors the CPU does
// not push one for, push the vector number, then fall into the shared
// tail (isrCommon) that saves every general-purpose register in the
// order interrupt.State expects, switches the data segment registers
// to the kernel selector, and calls the Go dispatcher.

`

const commonStub = `TEXT isrCommon(SB), NOSPLIT, $0-0
	PUSHQ AX
	PUSHQ BX
	PUSHQ CX
	PUSHQ DX
	PUSHQ SI
	PUSHQ DI
	PUSHQ BP
	PUSHQ R8
	PUSHQ R9
	PUSHQ R10
	PUSHQ R11
	PUSHQ R12
	PUSHQ R13
	PUSHQ R14
	PUSHQ R15

	// DS/ES/FS/GS <- kernel data selector. The selector constant
	// mirrors segment.SelectorKernelDS; duplicated here since assembly
	// cannot import the Go constant.
	MOVW $0x10, AX
	MOVW AX, DS
	MOVW AX, ES
	MOVW AX, FS
	MOVW AX, GS

	// Pass &interrupt.State (the current top of stack) to dispatch.
	// This core targets Go's register-based calling convention
	// (regabi); the frame pointer is the single argument and arrives
	// in AX per ABIInternal for a one-pointer-argument function.
	MOVQ SP, AX
	CALL ·dispatch(SB)

	POPQ R15
	POPQ R14
	POPQ R13
	POPQ R12
	POPQ R11
	POPQ R10
	POPQ R9
	POPQ R8
	POPQ BP
	POPQ DI
	POPQ SI
	POPQ DX
	POPQ CX
	POPQ BX
	POPQ AX

	ADDQ $16, SP // discard vector + error code
	IRETQ

`
