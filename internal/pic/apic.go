package pic

import (
	"unsafe"

	"github.com/kitsunebsd/fkernel/internal/cpu"
)

// Local APIC register offsets within the MMIO page (xAPIC mode). In
// x2APIC mode the same registers are accessed as MSRs at
// x2apicMSRBase + offset/16 instead (Intel SDM vol 3 §10.12.1.2).
const (
	lapicID      = 0x020
	lapicTPR     = 0x080
	lapicEOI     = 0x0b0
	lapicSpurVec = 0x0f0
	lapicLVTTmr  = 0x320
	lapicTmrInit = 0x380
	lapicTmrCur  = 0x390
	lapicTmrDiv  = 0x3e0

	apicBaseMSR    = 0x1b
	apicBaseEnable = 1 << 11
	apicBaseX2Mode = 1 << 10

	x2apicMSRBase = 0x800
	x2apicEOIMSR  = 0x80b

	spurVecEnable = 1 << 8

	// Divide the APIC timer's input clock by 16 (divisor encoding 0x3,
	// per SDM table 10-10).
	tmrDivideBy16 = 0x3

	tmrModePeriodic = 1 << 17
)

// IOAPIC register-window offsets, relative to its MMIO base (default
// physical address 0xfec00000 on most chipsets).
const (
	ioRegSel = 0x00
	ioWin    = 0x10

	ioredtblBase = 0x10 // first redirection table entry, 2 regs/IRQ
)

// LocalAPIC drives the local APIC's timer and EOI register, in either
// xAPIC (MMIO) or x2APIC (MSR) addressing mode, paired with an IOAPIC
// for external interrupt routing.
type LocalAPIC struct {
	mmioBase uintptr
	x2apic   bool

	ioapicBase uintptr
	vectorBase byte

	// gsiBase is the global system interrupt number of the IOAPIC's
	// first input pin; single-IOAPIC systems (all this core supports)
	// have gsiBase == 0.
	gsiBase int
}

// NewLocalAPIC builds a driver for a single local APIC + single
// IOAPIC system. mmioBase/ioapicBase are physical addresses assumed
// already identity-mapped by internal/vmm during early init.
// vectorBase is the first IDT vector IOAPIC inputs are routed to.
func NewLocalAPIC(mmioBase, ioapicBase uintptr, x2apic bool, vectorBase byte) *LocalAPIC {
	return &LocalAPIC{mmioBase: mmioBase, x2apic: x2apic, ioapicBase: ioapicBase, vectorBase: vectorBase}
}

// SupportsX2APIC reports CPUID leaf 1 ECX bit 21.
func SupportsX2APIC() bool {
	_, _, ecx, _ := cpu.CPUID(1, 0)
	return ecx&(1<<21) != 0
}

func (a *LocalAPIC) Init() error {
	// The legacy pair keeps driving INTR unless it is explicitly
	// quiesced: remap it clear of the exception vectors, then mask
	// every line so only the IOAPIC delivers.
	disableLegacy8259(a.vectorBase)

	mode := apicBaseEnable
	if a.x2apic {
		mode |= apicBaseX2Mode
	}
	cur := cpu.RDMSR(apicBaseMSR)
	cpu.WRMSR(apicBaseMSR, cur|uint64(mode))

	a.writeLAPIC(lapicTPR, 0)
	a.writeLAPIC(lapicSpurVec, spurVecEnable|uint32(a.vectorBase)+spuriousOffset)

	a.ioapicMaskAll()
	return nil
}

// spuriousOffset places the spurious-interrupt vector at
// vectorBase+0xf, which is also the vector IOAPIC input 15 is routed
// to; its low four bits are all ones.
const spuriousOffset = 0xf

func (a *LocalAPIC) readLAPIC(offset uint32) uint32 {
	if a.x2apic {
		return uint32(cpu.RDMSR(x2apicMSRBase + offset/16))
	}
	addr := a.mmioBase + uintptr(offset)
	return *(*uint32)(unsafe.Pointer(addr))
}

func (a *LocalAPIC) writeLAPIC(offset uint32, value uint32) {
	if a.x2apic {
		cpu.WRMSR(x2apicMSRBase+offset/16, uint64(value))
		return
	}
	addr := a.mmioBase + uintptr(offset)
	*(*uint32)(unsafe.Pointer(addr)) = value
}

// SendEOI writes the local APIC's EOI register; any value works, per
// the SDM.
func (a *LocalAPIC) SendEOI(irq int) {
	if a.x2apic {
		cpu.WRMSR(x2apicEOIMSR, 0)
		return
	}
	a.writeLAPIC(lapicEOI, 0)
}

func (a *LocalAPIC) Mask(irq int)   { a.setRedirection(irq, true) }
func (a *LocalAPIC) Unmask(irq int) { a.setRedirection(irq, false) }

func (a *LocalAPIC) ioapicMaskAll() {
	for gsi := 0; gsi < 24; gsi++ {
		a.setRedirection(gsi, true)
	}
}

// setRedirection programs IOAPIC redirection table entry irq to
// deliver vectorBase+irq to the boot CPU (APIC ID 0), masked or
// unmasked.
func (a *LocalAPIC) setRedirection(irq int, masked bool) {
	low := uint32(a.vectorBase) + uint32(irq)
	if masked {
		low |= 1 << 16
	}
	high := uint32(0) // destination APIC ID 0

	reg := uint32(ioredtblBase + irq*2)
	a.ioapicWrite(reg, low)
	a.ioapicWrite(reg+1, high)
}

func (a *LocalAPIC) ioapicWrite(reg uint32, value uint32) {
	sel := (*uint32)(unsafe.Pointer(a.ioapicBase + ioRegSel))
	win := (*uint32)(unsafe.Pointer(a.ioapicBase + ioWin))
	*sel = reg
	*win = value
}

// StartOneShot loads the timer with initial counts in one-shot mode
// with interrupts for it masked, for calibration runs that only poll
// CurrentCount.
func (a *LocalAPIC) StartOneShot(initial uint32) {
	a.writeLAPIC(lapicTmrDiv, tmrDivideBy16)
	a.writeLAPIC(lapicLVTTmr, lvtMasked)
	a.writeLAPIC(lapicTmrInit, initial)
}

// CurrentCount reads the timer's live countdown value.
func (a *LocalAPIC) CurrentCount() uint32 {
	return a.readLAPIC(lapicTmrCur)
}

// StopTimer halts the countdown by zeroing the initial-count
// register.
func (a *LocalAPIC) StopTimer() {
	a.writeLAPIC(lapicTmrInit, 0)
}

const lvtMasked = 1 << 16

// ProgramPeriodic programs the timer for periodic ticks at roughly hz,
// using ticksPerMs (measured against the PIT by internal/timer during
// boot) to convert frequency into a reload count. ticksPerMs is
// retained by the caller for sleep conversions.
func (a *LocalAPIC) ProgramPeriodic(vector byte, ticksPerMs uint32, hz uint32) {
	a.writeLAPIC(lapicTmrDiv, tmrDivideBy16)
	a.writeLAPIC(lapicLVTTmr, uint32(vector)|tmrModePeriodic)
	msPerTick := uint32(1000) / hz
	if msPerTick == 0 {
		msPerTick = 1
	}
	a.writeLAPIC(lapicTmrInit, ticksPerMs*msPerTick)
}
