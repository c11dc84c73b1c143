//go:build fkernel_freestanding

// Command kernel is the freestanding kernel image. The boot loader
// jumps to the assembly entry (start_amd64.s), which stashes the
// Multiboot2 registers, establishes the boot stack, and calls kmain.
package main

import (
	"encoding/binary"
	"unsafe"

	"github.com/kitsunebsd/fkernel/internal/boot"
	"github.com/kitsunebsd/fkernel/internal/pmm"
	"github.com/kitsunebsd/fkernel/internal/timer"
)

// Static arenas. The heap and every dedicated stack live in the
// kernel image's BSS, which the loader zeroes; stackTop rounds tops
// down to the 16-byte boundary the ABI expects and keeps IST stacks
// on their own 4 KiB-aligned pages by overallocation.
var (
	heapArena [8 << 20]byte

	bootStack [32 << 10]byte
	idleStack [16 << 10]byte

	dfStack  [8 << 10]byte
	nmiStack [8 << 10]byte
	mcStack  [8 << 10]byte
)

func stackTop(s []byte) uintptr {
	top := uintptr(unsafe.Pointer(&s[0])) + uintptr(len(s))
	return top &^ 0xf
}

// istTop aligns an IST stack's top down to a page boundary so the
// usable region is wholly inside the reservation.
func istTop(s []byte) uintptr {
	return stackTop(s) &^ 0xfff
}

// kmain is called by the assembly entry with the Multiboot2 handoff.
func kmain(magic uint32, infoPtr uintptr) {
	info, infoLen := viewInfo(infoPtr)
	parsed, err := boot.ParseInfo(info)
	if err != nil {
		// No memory map means no allocator and no way forward.
		hang()
	}

	cfg := boot.Config{
		Info:      parsed,
		Reserved:  reservedRegions(infoPtr, infoLen),
		Heap:      heapArena[:],
		BootStack: stackTop(bootStack[:]),
		IdleStack: stackTop(idleStack[:]),
		IdleEntry: idleLoopAddr(),
		TickHz:    timer.DefaultHz,
		ProbeATA:  true,
		Console:   earlyConsole{},
	}
	cfg.ISTStacks[1] = istTop(dfStack[:])
	cfg.ISTStacks[2] = istTop(nmiStack[:])
	cfg.ISTStacks[3] = istTop(mcStack[:])

	k, err := boot.Setup(magic, cfg)
	if err != nil {
		hang()
	}
	k.Run()
}

// efiMain is the UEFI entry: the firmware shim hands over a
// pre-translated memory map instead of Multiboot2 tags. Everything
// after the map source is shared with kmain.
func efiMain(mmapPtr uintptr, entryCount uintptr) {
	raw := unsafe.Slice((*boot.MemoryRegion)(unsafe.Pointer(mmapPtr)), entryCount)

	cfg := boot.Config{
		Info:      boot.FromUEFIMap(raw),
		Heap:      heapArena[:],
		BootStack: stackTop(bootStack[:]),
		IdleStack: stackTop(idleStack[:]),
		IdleEntry: idleLoopAddr(),
		TickHz:    timer.DefaultHz,
		ProbeATA:  true,
		Console:   earlyConsole{},
	}
	cfg.Reserved = []pmm.Range{{Base: kernelStart(), Length: kernelEnd() - kernelStart()}}
	cfg.ISTStacks[1] = istTop(dfStack[:])
	cfg.ISTStacks[2] = istTop(nmiStack[:])
	cfg.ISTStacks[3] = istTop(mcStack[:])

	k, err := boot.Setup(boot.Magic, cfg)
	if err != nil {
		hang()
	}
	k.Run()
}

// viewInfo reads the information structure's total size and returns a
// byte view of it. The loader placed it in identity-mapped low
// memory.
func viewInfo(infoPtr uintptr) ([]byte, uintptr) {
	hdr := unsafe.Slice((*byte)(unsafe.Pointer(infoPtr)), 8)
	total := binary.LittleEndian.Uint32(hdr[0:4])
	return unsafe.Slice((*byte)(unsafe.Pointer(infoPtr)), total), uintptr(total)
}

// reservedRegions subtracts the kernel image and the boot information
// structure out of the memory map before the PMM sees it. The image
// bounds come from the linker (start_amd64.s re-exports them).
func reservedRegions(infoPtr, infoLen uintptr) []pmm.Range {
	return []pmm.Range{
		{Base: kernelStart(), Length: kernelEnd() - kernelStart()},
		{Base: infoPtr, Length: infoLen},
	}
}

func hang() {
	for {
	}
}
