//go:build !fkernel_freestanding

// On a hosted toolchain this command only explains itself; the kernel
// proper is selected by the freestanding build tag.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "kernel: this image must be built with -tags fkernel_freestanding and booted by a Multiboot2 loader; see cmd/mkimage")
	os.Exit(2)
}
