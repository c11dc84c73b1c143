package pic

import "testing"

// Legacy8259 exercises only port I/O, which internal/cpu's
// !fkernel_freestanding build backs with an in-memory port array, so
// these tests run on any hosted toolchain. LocalAPIC touches raw MMIO
// addresses and is exercised only on real hardware/under QEMU via
// cmd/qtest.

func TestLegacy8259InitUnmasksNothing(t *testing.T) {
	p := NewLegacy8259(0x20)
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.mask != 0xffff {
		t.Fatalf("mask after Init = %#x, want 0xffff", p.mask)
	}
}

func TestLegacy8259UnmaskClearsBit(t *testing.T) {
	p := NewLegacy8259(0x20)
	p.Init()
	p.Unmask(1)
	if p.mask&(1<<1) != 0 {
		t.Fatalf("IRQ1 still masked after Unmask: mask=%#x", p.mask)
	}
}

func TestLegacy8259UnmaskSecondaryOpensCascade(t *testing.T) {
	p := NewLegacy8259(0x20)
	p.Init()
	p.Unmask(10) // an IRQ behind the secondary PIC
	if p.mask&(1<<cascadeLine) != 0 {
		t.Fatalf("cascade line (IRQ2) still masked: mask=%#x", p.mask)
	}
	if p.mask&(1<<10) != 0 {
		t.Fatalf("IRQ10 still masked: mask=%#x", p.mask)
	}
}

func TestLegacy8259MaskSetsBit(t *testing.T) {
	p := NewLegacy8259(0x20)
	p.Init()
	p.Unmask(1)
	p.Mask(1)
	if p.mask&(1<<1) == 0 {
		t.Fatalf("IRQ1 not masked after Mask")
	}
}
