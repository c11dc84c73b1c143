package interrupt

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/klog"
)

// haltForever is the fatal path: interrupts disabled,
// hlt in a loop, never returning.
func haltForever() {
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// Halt is the fatal path any package can call on an invariant breach
// . frame may be nil if the
// breach was not detected from within an interrupt handler.
func Halt(frame *State, reason string) {
	if frame != nil {
		logFatalFrame(frame, reason)
	} else {
		klog.Printf(klog.Fatal, "interrupt", "%s", reason)
	}
	haltForever()
}

func logFatalFrame(frame *State, reason string) {
	klog.Printf(klog.Fatal, "interrupt", "%s: vector=%d err=%#x rip=%#x cs=%#x rflags=%#x rsp=%#x ss=%#x",
		reason, frame.InterruptID, frame.ErrorCode, frame.RIP, frame.CS, frame.RFlags, frame.RSP, frame.SS)
}
