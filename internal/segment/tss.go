package segment

import "unsafe"

// numIST is the number of Interrupt Stack Table slots in the TSS
// .
const numIST = 7

// tssSize is sizeof(TSS) per the x86_64 architecture: reserved(4) +
// rsp[3](24) + reserved(8) + ist[7](56) + reserved(10) + iomapBase(2).
const tssSize = 104

// TSS is the 64-bit task state segment: one instance per CPU, holding
// RSP0 (the kernel stack loaded on a ring3->ring0 transition) and the
// seven IST stacks used by critical interrupt vectors.
type TSS struct {
	reserved0 uint32
	RSP       [3]uint64
	reserved1 uint64
	IST       [numIST]uint64
	reserved2 [2]uint32
	reserved3 uint16
	IOMapBase uint16
}

// Address returns the TSS's own address, for encoding into its GDT
// descriptor.
func (t *TSS) Address() uintptr { return uintptr(unsafe.Pointer(t)) }

// SetKernelStack installs the kernel stack pointer used whenever a
// transition to ring 0 occurs.
func (t *TSS) SetKernelStack(rsp0 uintptr) {
	t.RSP[0] = uint64(rsp0)
}

// IST stack indices: #DF gets stack 1, NMI stack 2, #MC stack 3.
// Index 0 means "no dedicated stack" in an IDT gate.
const (
	ISTNone         = 0
	ISTDoubleFault  = 1
	ISTNMI          = 2
	ISTMachineCheck = 3
)

// SetIST installs the top-of-stack address for IST slot index
// (1-based; index must be in [1,7]).
func (t *TSS) SetIST(index int, top uintptr) {
	t.IST[index-1] = uint64(top)
}

func rawAddress(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }
