//go:build fkernel_freestanding

package interrupt

// stubTable holds the address of each vector's assembly entry stub.
// It has no Go-side initializer: isr_stubs_amd64.s (see
// cmd/gen-isr-stubs) provides its storage and contents via GLOBL/DATA
// directives against this exact symbol name.
var stubTable [NumVectors]uintptr
