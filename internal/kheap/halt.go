package kheap

import "github.com/kitsunebsd/fkernel/internal/interrupt"

func haltFatal(reason string) {
	interrupt.Halt(nil, "kheap: "+reason)
}
