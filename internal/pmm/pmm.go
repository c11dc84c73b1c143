// Package pmm is the physical memory manager: three zones (DMA,
// NORMAL, HIGH) each backed by a per-frame bitmap and a binary buddy
// allocator over orders [MinOrder, MaxOrder].
package pmm

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/interrupt"
)

const (
	FrameSize = 1 << MinOrder

	MinOrder = 12
	MaxOrder = 21
	// NumOrders is the number of distinct buddy orders, one free-list
	// per order in [MinOrder, MaxOrder].
	NumOrders = MaxOrder - MinOrder + 1
)

// Zone names a physical memory class.
type Zone int

const (
	DMA Zone = iota
	NORMAL
	HIGH
	numZones
)

func (z Zone) String() string {
	switch z {
	case DMA:
		return "DMA"
	case NORMAL:
		return "NORMAL"
	case HIGH:
		return "HIGH"
	default:
		return "unknown"
	}
}

const (
	dmaLimit    = 16 << 20         // 16 MiB
	normalLimit = uintptr(4) << 30 // 4 GiB
)

// ZoneFor classifies a physical address into the zone whose limit it
// falls under.
func ZoneFor(addr uintptr) Zone {
	switch {
	case addr < dmaLimit:
		return DMA
	case uint64(addr) < uint64(normalLimit):
		return NORMAL
	default:
		return HIGH
	}
}

// Range describes a physical address range; used both for the
// memory-map Available entries consumed at init and for reserved
// regions subtracted out of them.
type Range struct {
	Base, Length uintptr
}

// End returns the exclusive end of the range.
func (r Range) End() uintptr { return r.Base + r.Length }

// Manager is the singleton physical memory manager for the core. All
// mutation happens with interrupts disabled; there is exactly one logical CPU, so that bracket is
// sufficient.
type Manager struct {
	zones [numZones]zone
}

// New returns an empty manager; call Init before any allocation.
func New() *Manager {
	return &Manager{}
}

// Init consumes the firmware/Multiboot2 memory map: every Available
// range is clipped to the three zone limits, split at zone
// boundaries, frame-aligned inward, and registered; then every
// reserved range (kernel image, initial page tables, the bitmaps
// themselves) is subtracted out by marking the overlapping frames
// used.
func (m *Manager) Init(available, reserved []Range) {
	for _, r := range available {
		m.registerAvailable(r)
	}
	for _, r := range reserved {
		m.reserve(r)
	}
}

func (m *Manager) registerAvailable(r Range) {
	base := alignUp(r.Base, FrameSize)
	end := alignDown(r.End(), FrameSize)
	if end <= base {
		return
	}
	for base < end {
		z := ZoneFor(base)
		limit := zoneLimit(z)
		segEnd := end
		if limit < segEnd {
			segEnd = limit
		}
		m.zones[z].addRegion(base, segEnd-base)
		base = segEnd
	}
}

func zoneLimit(z Zone) uintptr {
	switch z {
	case DMA:
		return dmaLimit
	case NORMAL:
		return normalLimit
	default:
		return ^uintptr(0)
	}
}

func (m *Manager) reserve(r Range) {
	base := alignDown(r.Base, FrameSize)
	end := alignUp(r.End(), FrameSize)
	for base < end {
		z := ZoneFor(base)
		limit := zoneLimit(z)
		segEnd := end
		if limit < segEnd {
			segEnd = limit
		}
		m.zones[z].markUsedRange(base, segEnd-base)
		base = segEnd
	}
}

// AllocPage allocates a single 4 KiB frame, trying pref first and
// falling through NORMAL then DMA (never HIGH before NORMAL, per spec
// §4.4). It returns ok=false on exhaustion across the fallback chain.
func (m *Manager) AllocPage(pref Zone) (phys uintptr, ok bool) {
	return m.AllocContiguous(MinOrder, pref)
}

// FreePage returns a single frame allocated by AllocPage or by an
// order-MinOrder AllocContiguous call.
func (m *Manager) FreePage(phys uintptr) {
	m.FreeContiguous(phys, MinOrder)
}

// AllocContiguous returns a 2^order-byte aligned, physically
// contiguous block from zone pref, falling through NORMAL then DMA on
// failure.
func (m *Manager) AllocContiguous(order int, pref Zone) (phys uintptr, ok bool) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	for _, z := range fallbackChain(pref) {
		if addr, ok := m.zones[z].alloc(order); ok {
			return addr, true
		}
	}
	return 0, false
}

// FreeContiguous returns a block previously returned by
// AllocContiguous(order, ...). Freeing a block that is not actually
// allocated (bitmap bit already clear) is a fatal kernel error.
func (m *Manager) FreeContiguous(phys uintptr, order int) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	z := ZoneFor(phys)
	m.zones[z].freeBlock(phys, order)
}

func fallbackChain(pref Zone) []Zone {
	switch pref {
	case HIGH:
		return []Zone{HIGH, NORMAL, DMA}
	case DMA:
		return []Zone{DMA, NORMAL}
	default:
		return []Zone{NORMAL, DMA}
	}
}

// TotalBytes sums every zone's registered capacity.
func (m *Manager) TotalBytes() uint64 {
	var total uint64
	for i := range m.zones {
		total += m.zones[i].totalBytes()
	}
	return total
}

// UsedBytes is the allocated (or reserved) remainder, so TotalBytes
// always equals UsedBytes plus FreeBytes.
func (m *Manager) UsedBytes() uint64 {
	return m.TotalBytes() - m.FreeBytes()
}

// FreeBytes sums every zone's currently-free capacity.
func (m *Manager) FreeBytes() uint64 {
	var total uint64
	for i := range m.zones {
		total += m.zones[i].freeBytes()
	}
	return total
}

func alignUp(v uintptr, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func alignDown(v uintptr, align uintptr) uintptr {
	return v &^ (align - 1)
}

// haltDoubleFree reports a double-free: detected via a bitmap bit
// already clear, or a block
// already present on its free-list.
func haltDoubleFree(op string) {
	interrupt.Halt(nil, "pmm: double free detected in "+op)
}
