// Package segment builds the GDT and per-CPU TSS and loads them with
// lgdt/ltr. Descriptors are packed byte-offset style, named offset
// constants plus encoding/binary writes into a flat byte buffer, rather than a Go
// struct with a hardware-defined bit layout (Go does not guarantee bit
// field layout, so hardware descriptors are always packed by hand).
package segment

import "encoding/binary"

// Selectors, as byte offsets into the descriptor table.
const (
	SelectorNull     = 0x00
	SelectorKernelCS = 0x08
	SelectorKernelDS = 0x10
	SelectorUserCS   = 0x18
	SelectorUserDS   = 0x20
	SelectorTSS      = 0x28 // occupies two 8-byte slots (5 and 6)
)

// Access byte bits (P|DPL|S|Type).
const (
	accessPresent    = 1 << 7
	accessDPL3       = 3 << 5
	accessDescType   = 1 << 4 // S=1: code/data, not a system descriptor
	accessCodeOrData = 1 << 0 // accessed bit cleared by hardware on first use; kept 0 here
	accessExecutable = 1 << 3
	accessReadWrite  = 1 << 1
	accessTSSType9   = 0x9 // 64-bit TSS (available), low nibble of a system descriptor's type
	accessTSSPresent = accessPresent
	flagsGranularity = 1 << 3 // G: limit scaled by 4 KiB
	flagsLongMode    = 1 << 1 // L: 64-bit code segment
	flagsDefaultOpSz = 1 << 2 // D/B
)

// entrySize is the size in bytes of one ordinary (non-TSS) descriptor.
const entrySize = 8

// tssEntrySize is the size in bytes of the TSS descriptor, which spans
// two ordinary slots.
const tssEntrySize = 16

// numEntries counts the null, kernel CS/DS, user CS/DS (five 8-byte
// slots), plus the 16-byte TSS descriptor as two more slots — seven
// 8-byte slots in total.
const numEntries = 7

// Table is the flat byte buffer holding the GDT: five ordinary 8-byte
// descriptors followed by one 16-byte TSS descriptor, exactly as spec
// §3 requires ("null; ring-0 code; ring-0 data; ring-3 code; ring-3
// data; TSS (two entries)").
type Table struct {
	raw [numEntries * entrySize]byte
}

func putDescriptor(buf []byte, base uint32, limit uint32, access byte, flags byte) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(limit))
	buf[2] = byte(base)
	buf[3] = byte(base >> 8)
	buf[4] = byte(base >> 16)
	buf[5] = access
	buf[6] = byte(limit>>16)&0x0f | flags<<4
	buf[7] = byte(base >> 24)
}

// Build fills t with the null/kernel/user descriptors and a TSS
// descriptor pointing at tss. Long-mode code descriptors ignore base
// and limit (the CPU treats the whole address space as flat); they are
// still encoded as zero for hardware conformance.
func (t *Table) Build(tss *TSS) {
	putDescriptor(t.raw[SelectorNull:], 0, 0, 0, 0)
	putDescriptor(t.raw[SelectorKernelCS:], 0, 0,
		accessPresent|accessDescType|accessExecutable|accessReadWrite,
		flagsGranularity|flagsLongMode)
	putDescriptor(t.raw[SelectorKernelDS:], 0, 0,
		accessPresent|accessDescType|accessReadWrite,
		flagsGranularity|flagsDefaultOpSz)
	putDescriptor(t.raw[SelectorUserCS:], 0, 0,
		accessPresent|accessDPL3|accessDescType|accessExecutable|accessReadWrite,
		flagsGranularity|flagsLongMode)
	putDescriptor(t.raw[SelectorUserDS:], 0, 0,
		accessPresent|accessDPL3|accessDescType|accessReadWrite,
		flagsGranularity|flagsDefaultOpSz)
	t.buildTSSDescriptor(tss)
}

func (t *Table) buildTSSDescriptor(tss *TSS) {
	buf := t.raw[SelectorTSS : SelectorTSS+tssEntrySize]
	base := uint64(tss.Address())
	limit := uint32(tssSize - 1)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(limit))
	buf[2] = byte(base)
	buf[3] = byte(base >> 8)
	buf[4] = byte(base >> 16)
	buf[5] = accessTSSPresent | accessTSSType9
	buf[6] = byte(limit>>16) & 0x0f
	buf[7] = byte(base >> 24)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(base>>32))
	// buf[12:16] is the reserved field, left zero.
}

// Base returns the address of the first byte of the GDT, for use in a
// DescriptorPointer passed to cpu.LoadGDT.
func (t *Table) Base() uintptr { return uintptr(rawAddress(&t.raw[0])) }

// Limit returns the GDT limit (size in bytes minus one) for lgdt.
func (t *Table) Limit() uint16 { return uint16(len(t.raw) - 1) }
