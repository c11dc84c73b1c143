//go:build fkernel_freestanding

package cpu

// OutB/OutW/OutL write a byte/word/dword to an I/O port.
//
//go:noescape
func OutB(port uint16, val uint8)

//go:noescape
func OutW(port uint16, val uint16)

//go:noescape
func OutL(port uint16, val uint32)

// InB/InW/InL read a byte/word/dword from an I/O port.
//
//go:noescape
func InB(port uint16) uint8

//go:noescape
func InW(port uint16) uint16

//go:noescape
func InL(port uint16) uint32

// RDMSR/WRMSR access a model-specific register.
//
//go:noescape
func RDMSR(reg uint32) uint64

//go:noescape
func WRMSR(reg uint32, val uint64)

// CPUID executes the CPUID instruction with the given leaf/subleaf and
// returns eax, ebx, ecx, edx.
//
//go:noescape
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// Halt executes hlt. It returns when the next interrupt fires.
//
//go:noescape
func Halt()

// Pause executes the pause instruction, a hint for spin-wait loops.
//
//go:noescape
func Pause()

// EnableInterrupts/DisableInterrupts execute sti/cli. Every shared
// mutable structure in this kernel (run queues, PMM bitmaps, the heap)
// is protected by a Disable/Enable bracket rather than a lock; there
// is exactly one logical CPU, so disabling interrupts is sufficient
// mutual exclusion.
//
//go:noescape
func DisableInterrupts()

//go:noescape
func EnableInterrupts()

// InterruptsEnabled reports whether the current RFLAGS.IF is set.
//
//go:noescape
func InterruptsEnabled() bool

// InvalidatePage issues invlpg for the given virtual address.
//
//go:noescape
func InvalidatePage(virt uintptr)

// ReadCR3/WriteCR3 access the page table base register. WriteCR3
// flushes the entire TLB (except global pages).
//
//go:noescape
func ReadCR3() uintptr

//go:noescape
func WriteCR3(phys uintptr)

// LoadGDT issues lgdt against the given descriptor pointer, then
// reloads the data segment registers with dataSel. The caller is
// responsible for having placed a ring-0 code descriptor at codeSel;
// CS itself is reloaded by the far return out of the trampoline that
// calls LoadGDT during early boot.
//
//go:noescape
func LoadGDT(ptr *DescriptorPointer, codeSel, dataSel uint16)

// LoadIDT issues lidt against the given descriptor pointer.
//
//go:noescape
func LoadIDT(ptr *DescriptorPointer)

// LoadTR issues ltr with the given TSS selector.
//
//go:noescape
func LoadTR(sel uint16)
