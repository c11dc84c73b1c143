//go:build !fkernel_freestanding

package interrupt

// On a hosted test build there are no real assembly stubs to point
// at; Table.setGate still needs *some* address to pack into the gate
// so that encoding logic (internal/interrupt/idt_test.go) can be
// exercised. The values are never executed.
var stubTable [NumVectors]uintptr

func init() {
	for i := range stubTable {
		stubTable[i] = uintptr(0x100000 + i*16)
	}
}
