//go:build fkernel_freestanding

package vmm

import "unsafe"

// tableAt views the page table physically resident at phys. Real
// physical memory is only addressable this way because early boot
// identity-maps it.
func tableAt(phys uintptr) *table {
	return (*table)(unsafe.Pointer(phys))
}
