package interrupt

import (
	"encoding/binary"

	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/segment"
)

// NumVectors is the architectural IDT size: 256 gate descriptors,
// one per vector.
const NumVectors = 256

const gateSize = 16

// Gate type-attribute nibble values.
const (
	gateTypeInterrupt = 0xE // IF cleared on entry
	gateTypeTrap      = 0xF // IF preserved
	gatePresent       = 1 << 7
	gateDPL0          = 0 << 5
)

// Table is the 256-entry IDT. Each gate's offset field is the address
// of the matching assembly stub installed by Init.
type Table struct {
	raw [NumVectors * gateSize]byte
}

// Kind distinguishes an interrupt gate (handlers cannot be preempted
// by maskable interrupts) from a trap gate (used only for
// breakpoints).
type Kind byte

const (
	KindInterrupt Kind = gateTypeInterrupt
	KindTrap      Kind = gateTypeTrap
)

func (t *Table) setGate(vector int, stub uintptr, ist byte, kind Kind) {
	buf := t.raw[vector*gateSize : vector*gateSize+gateSize]
	binary.LittleEndian.PutUint16(buf[0:2], uint16(stub))
	binary.LittleEndian.PutUint16(buf[2:4], segment.SelectorKernelCS)
	buf[4] = ist & 0x7
	buf[5] = gatePresent | gateDPL0 | byte(kind)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(stub>>16))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(stub>>32))
	// buf[12:16] reserved, zero.
}

// Base/Limit feed cpu.LoadIDT via a cpu.DescriptorPointer.
func (t *Table) Base() uintptr { return uintptr(rawAddr(&t.raw[0])) }
func (t *Table) Limit() uint16 { return uint16(len(t.raw) - 1) }

// Load issues lidt against this table.
func (t *Table) Load() {
	ptr := cpu.DescriptorPointer{Limit: t.Limit(), Base: uint64(t.Base())}
	cpu.LoadIDT(&ptr)
}
