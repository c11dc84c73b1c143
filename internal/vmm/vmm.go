// Package vmm implements the virtual memory manager: standard x86_64
// four-level paging (PML4 -> PDPT -> PD -> PT) with 4 KiB pages.
// Physical memory is accessed directly through identity
// mapping established during early boot, so a physical address
// doubles as a Go pointer while this manager builds out the rest of
// the address space.
package vmm

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/pmm"
)

// Flags are the leaf page-table bits a caller sets on MapPage/MapRange.
type Flags uint64

const (
	Present       Flags = 1 << 0
	Writable      Flags = 1 << 1
	User          Flags = 1 << 2
	WriteThrough  Flags = 1 << 3
	CacheDisabled Flags = 1 << 4
	Accessed      Flags = 1 << 5
	Dirty         Flags = 1 << 6
	HugePage      Flags = 1 << 7
	Global        Flags = 1 << 8
	NoExecute     Flags = 1 << 63

	addrMask = uint64(0x000f_ffff_ffff_f000)
	entries  = 512
)

type table = [entries]uint64

// Manager owns the page-table tree for one address space. This core
// runs a single address space for the kernel (spec's Non-goals
// exclude user-space/syscalls), so there is exactly one Manager.
type Manager struct {
	pmm      *pmm.Manager
	pml4Phys uintptr
}

// New builds a manager that allocates its page tables from p.
func New(p *pmm.Manager) *Manager {
	return &Manager{pmm: p}
}

// Init allocates and zeroes the top-level PML4 table.
func (m *Manager) Init() error {
	phys, ok := m.pmm.AllocPage(pmm.NORMAL)
	if !ok {
		return errOOM("vmm.Init")
	}
	zeroPage(phys)
	m.pml4Phys = phys
	return nil
}

// InitIdentity builds a fresh PML4 and identity-maps [0, limit) as
// writable kernel memory, so physical frames the PMM hands out stay
// addressable after Activate switches CR3 away from the loader's
// tables.
func (m *Manager) InitIdentity(limit uintptr) error {
	if err := m.Init(); err != nil {
		return err
	}
	return m.MapRange(0, 0, limit, Writable)
}

// Activate loads CR3 with this manager's PML4, making it the active
// address space.
func (m *Manager) Activate() {
	cpu.WriteCR3(m.pml4Phys)
}

// MapPage installs a single 4 KiB leaf mapping virt -> phys with
// flags, allocating any missing intermediate table via the PMM and
// zero-filling it first.
func (m *Manager) MapPage(virt, phys uintptr, flags Flags) error {
	pte, err := m.walk(virt, true)
	if err != nil {
		return err
	}
	*pte = (uint64(phys) & addrMask) | uint64(flags) | uint64(Present)
	return nil
}

// MapRange maps length bytes (rounded up to a page) starting at virt
// to the same-length physical range starting at phys.
func (m *Manager) MapRange(virt, phys uintptr, length uintptr, flags Flags) error {
	length = alignUp(length, pmm.FrameSize)
	for off := uintptr(0); off < length; off += pmm.FrameSize {
		if err := m.MapPage(virt+off, phys+off, flags); err != nil {
			return err
		}
	}
	return nil
}

// UnmapPage clears virt's leaf entry and invalidates it in the TLB.
// Intermediate tables are never reclaimed, even if they become
// entirely empty.
func (m *Manager) UnmapPage(virt uintptr) error {
	pte, err := m.walk(virt, false)
	if err != nil {
		return err
	}
	*pte = 0
	cpu.InvalidatePage(virt)
	return nil
}

// Translate returns the physical address and flags virt currently
// maps to, or ok=false if any level of the walk is not present.
func (m *Manager) Translate(virt uintptr) (phys uintptr, flags Flags, ok bool) {
	pte, err := m.walk(virt, false)
	if err != nil {
		return 0, 0, false
	}
	v := *pte
	if v&uint64(Present) == 0 {
		return 0, 0, false
	}
	return uintptr(v & addrMask), Flags(v &^ addrMask), true
}

// walk returns a pointer to virt's leaf (PT) entry, allocating
// intermediate tables along the way when alloc is true.
func (m *Manager) walk(virt uintptr, alloc bool) (*uint64, error) {
	i4, i3, i2, i1 := indices(virt)

	pml4 := tableAt(m.pml4Phys)
	pdptPhys, err := m.step(pml4, i4, alloc)
	if err != nil {
		return nil, err
	}
	pdpt := tableAt(pdptPhys)
	pdPhys, err := m.step(pdpt, i3, alloc)
	if err != nil {
		return nil, err
	}
	pd := tableAt(pdPhys)
	ptPhys, err := m.step(pd, i2, alloc)
	if err != nil {
		return nil, err
	}
	pt := tableAt(ptPhys)
	return &pt[i1], nil
}

// step returns the child table's physical address referenced by
// parent[idx], allocating and zero-filling a new one (and wiring it
// into parent) if it is not present and alloc is true.
func (m *Manager) step(parent *table, idx int, alloc bool) (uintptr, error) {
	v := parent[idx]
	if v&uint64(Present) != 0 {
		return uintptr(v & addrMask), nil
	}
	if !alloc {
		return 0, errNotMapped("vmm.walk")
	}
	phys, ok := m.pmm.AllocPage(pmm.NORMAL)
	if !ok {
		return 0, errOOM("vmm.walk")
	}
	zeroPage(phys)
	parent[idx] = (uint64(phys) & addrMask) | uint64(Present) | uint64(Writable)
	return phys, nil
}

func zeroPage(phys uintptr) {
	t := tableAt(phys)
	for i := range t {
		t[i] = 0
	}
}

// indices splits a canonical virtual address into its four
// nine-bit page-table indices.
func indices(virt uintptr) (pml4, pdpt, pd, pt int) {
	v := uint64(virt)
	pml4 = int((v >> 39) & 0x1ff)
	pdpt = int((v >> 30) & 0x1ff)
	pd = int((v >> 21) & 0x1ff)
	pt = int((v >> 12) & 0x1ff)
	return
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
