package pic

import "github.com/kitsunebsd/fkernel/internal/cpu"

// Legacy 8259A port pairs (command, data) for the two cascaded
// controllers, and the ICW/OCW bits needed to remap and mask them.
// internal/hwemu models the device side of this same state machine
// for the hosted tests.
const (
	primaryCommand   uint16 = 0x20
	primaryData      uint16 = 0x21
	secondaryCommand uint16 = 0xa0
	secondaryData    uint16 = 0xa1

	icw1Init     = 0x10
	icw1ICW4     = 0x01
	icw4_8086    = 0x01
	ocw2EOI      = 0x20
	ocw3ReadISR  = 0x0b
	cascadeLine  = 2
	legacyIRQMax = 16
)

// Legacy8259 drives the cascaded 8259A pair remapped to vectorBase and
// vectorBase+8 (primary/secondary), so the default BIOS mapping,
// which collides with CPU exception vectors 0-31, never reaches the
// IDT.
type Legacy8259 struct {
	vectorBase byte
	mask       uint16 // bit i set => IRQ i masked
}

// NewLegacy8259 builds a driver that remaps IRQ0-15 onto
// vectorBase..vectorBase+15. vectorBase is normally 0x20 (32).
func NewLegacy8259(vectorBase byte) *Legacy8259 {
	return &Legacy8259{vectorBase: vectorBase, mask: 0xffff}
}

func (p *Legacy8259) Init() error {
	// ICW1: start initialization sequence, edge triggered, cascade mode.
	cpu.OutB(primaryCommand, icw1Init|icw1ICW4)
	cpu.OutB(secondaryCommand, icw1Init|icw1ICW4)

	// ICW2: vector offsets.
	cpu.OutB(primaryData, p.vectorBase)
	cpu.OutB(secondaryData, p.vectorBase+8)

	// ICW3: tell primary there is a secondary on IRQ2, tell secondary
	// its cascade identity.
	cpu.OutB(primaryData, 1<<cascadeLine)
	cpu.OutB(secondaryData, cascadeLine)

	// ICW4: 8086 mode.
	cpu.OutB(primaryData, icw4_8086)
	cpu.OutB(secondaryData, icw4_8086)

	// Mask everything until individual drivers call Unmask.
	cpu.OutB(primaryData, 0xff)
	cpu.OutB(secondaryData, 0xff)
	p.mask = 0xffff
	return nil
}

func (p *Legacy8259) Mask(irq int) {
	if irq < 0 || irq >= legacyIRQMax {
		return
	}
	p.mask |= 1 << uint(irq)
	p.writeMask()
}

func (p *Legacy8259) Unmask(irq int) {
	if irq < 0 || irq >= legacyIRQMax {
		return
	}
	p.mask &^= 1 << uint(irq)
	if irq >= 8 {
		p.mask &^= 1 << cascadeLine // cascade line must stay open
	}
	p.writeMask()
}

func (p *Legacy8259) writeMask() {
	cpu.OutB(primaryData, byte(p.mask))
	cpu.OutB(secondaryData, byte(p.mask>>8))
}

// SendEOI acknowledges irq, sending the EOI to the secondary PIC first
// when irq came from the cascade.
func (p *Legacy8259) SendEOI(irq int) {
	if irq < 0 || irq >= legacyIRQMax {
		return
	}
	if irq == 7 && p.isSpurious(primaryCommand) {
		return
	}
	if irq == 15 && p.isSpurious(secondaryCommand) {
		cpu.OutB(primaryCommand, ocw2EOI)
		return
	}
	if irq >= 8 {
		cpu.OutB(secondaryCommand, ocw2EOI)
	}
	cpu.OutB(primaryCommand, ocw2EOI)
}

// disableLegacy8259 remaps the pair to vectorBase (clear of the
// exception vectors, in case a masked line still glitches through)
// and masks every IRQ line, for systems where an APIC takes over
// delivery.
func disableLegacy8259(vectorBase byte) {
	p := NewLegacy8259(vectorBase)
	_ = p.Init() // Init ends fully masked
}

// isSpurious reads the in-service register and checks whether bit 7
// (the lowest-priority line, conventionally used for spurious
// signalling) is actually set; if not, the IRQ7/15 the CPU delivered
// never really happened.
func (p *Legacy8259) isSpurious(commandPort uint16) bool {
	cpu.OutB(commandPort, ocw3ReadISR)
	isr := cpu.InB(commandPort)
	return isr&0x80 == 0
}
