package segment

import "github.com/kitsunebsd/fkernel/internal/cpu"

// Manager owns the single GDT and single per-CPU TSS used by this
// core. It is a package-scoped object guarded by the kernel's
// interrupt-disable discipline, not a class-hierarchy singleton.
type Manager struct {
	table Table
	tss   TSS
}

// New allocates a zeroed Manager. The GDT and TSS live inside it for
// the lifetime of the kernel.
func New() *Manager {
	return &Manager{}
}

// Init builds the GDT and TSS and loads them onto the CPU. After Init
// returns, CS is the ring-0 code selector, all data segment selectors
// are the ring-0 data selector, and TR is the TSS selector.
// kernelStack0 is the RSP0 to install for the very first ring
// transitions; the scheduler overwrites it on every context switch
// once running.
func (m *Manager) Init(kernelStack0 uintptr, istStacks [numIST]uintptr) {
	for i, top := range istStacks {
		if top == 0 {
			continue
		}
		m.tss.SetIST(i+1, top)
	}
	m.tss.SetKernelStack(kernelStack0)
	m.table.Build(&m.tss)

	ptr := cpu.DescriptorPointer{Limit: m.table.Limit(), Base: uint64(m.table.Base())}
	cpu.LoadGDT(&ptr, SelectorKernelCS, SelectorKernelDS)
	cpu.LoadTR(SelectorTSS)
}

// TSS returns the live TSS so the scheduler can update RSP0 on context
// switch.
func (m *Manager) TSS() *TSS { return &m.tss }
