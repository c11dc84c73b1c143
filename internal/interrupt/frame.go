// Package interrupt owns the IDT, the canonical CPU-state frame, and
// the per-vector dispatch table.
//
// There is exactly one frame layout in this kernel — the field order
// below — and every assembly stub, the dispatcher, and the
// scheduler's context-switch path (internal/sched) agree on it.
// Nothing else may define a second layout.
package interrupt

// State is the fixed 22-word frame an interrupt stub pushes before
// calling the dispatcher. Every stub, exception or IRQ, produces the
// same layout, growing upward in save order.
// Field order must not change without regenerating isr_stubs_amd64.s
// (see cmd/gen-isr-stubs), whose assembly indexes into this structure
// by raw offset. internal/sched copies whole State values and uses no
// offsets of its own.
type State struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	R11 uint64
	R10 uint64
	R9  uint64
	R8  uint64
	RBP uint64
	RDI uint64
	RSI uint64
	RDX uint64
	RCX uint64
	RBX uint64
	RAX uint64

	InterruptID uint64
	ErrorCode   uint64

	// Pushed by the CPU itself on any interrupt/exception/iretq frame.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// FrameWords is the number of 8-byte words in State.
const FrameWords = 22

// Vector returns the interrupt/exception vector number that produced
// this frame.
func (s *State) Vector() uint64 { return s.InterruptID }
