// Package boot consumes the boot protocol handoff and orchestrates
// early kernel initialization in dependency order: segmentation,
// interrupts, physical and virtual memory, the heap, the interrupt
// controller and its tick source, the filesystems, the scheduler, and
// finally the device drivers.
package boot

import (
	"encoding/binary"

	"github.com/kitsunebsd/fkernel/internal/errno"
)

// Magic is the value a Multiboot2 loader passes in the first entry
// argument; anything else halts boot.
const Magic = 0x36d76289

// Tag types this core consumes.
const (
	TagEnd         = 0
	TagMemoryMap   = 6
	TagFramebuffer = 8
)

// Memory map entry types.
const (
	MemAvailable             = 1
	MemReserved              = 2
	MemACPIReclaimable       = 3
	MemNVS                   = 4
	MemBadRAM                = 5
	MemBootloaderReclaimable = 0x1000
)

// MemoryRegion is one memory-map entry as handed over by the loader.
type MemoryRegion struct {
	Base   uint64
	Length uint64
	Type   uint32
}

// Available reports whether the region is usable RAM right now.
// Reclaimable regions are deliberately not treated as available: this
// core never reclaims them.
func (r MemoryRegion) Available() bool { return r.Type == MemAvailable }

// Framebuffer describes the loader-provided framebuffer, passed on to
// whatever console driver consumes it.
type Framebuffer struct {
	Address       uint64
	Pitch         uint32
	Width, Height uint32
	BPP           uint8
}

// Info is the decoded boot information.
type Info struct {
	MemoryMap   []MemoryRegion
	Framebuffer *Framebuffer
}

// fixed header/field sizes of the Multiboot2 information structure.
const (
	infoHeaderSize = 8
	tagHeaderSize  = 8
	mmapFixedSize  = 8 // entry_size + entry_version after the tag header
	mmapEntrySize  = 24
	tagAlign       = 8
)

// ParseInfo decodes the Multiboot2 information structure: a total-size
// header followed by 8-byte-aligned tags terminated by an end tag. A
// missing memory map is a protocol violation; everything else is
// optional.
func ParseInfo(data []byte) (Info, error) {
	var info Info
	if len(data) < infoHeaderSize {
		return info, errno.New(errno.EFAULT, "boot.parse", nil)
	}
	total := binary.LittleEndian.Uint32(data[0:4])
	if int(total) > len(data) || total < infoHeaderSize {
		return info, errno.New(errno.EFAULT, "boot.parse", nil)
	}

	off := infoHeaderSize
	sawEnd := false
	for off+tagHeaderSize <= int(total) {
		typ := binary.LittleEndian.Uint32(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		if size < tagHeaderSize || off+int(size) > int(total) {
			return info, errno.New(errno.EFAULT, "boot.parse", nil)
		}
		body := data[off+tagHeaderSize : off+int(size)]

		switch typ {
		case TagEnd:
			sawEnd = true
		case TagMemoryMap:
			regions, err := parseMemoryMap(body)
			if err != nil {
				return info, err
			}
			info.MemoryMap = regions
		case TagFramebuffer:
			fb, err := parseFramebuffer(body)
			if err != nil {
				return info, err
			}
			info.Framebuffer = fb
		}
		if sawEnd {
			break
		}
		off += align(int(size), tagAlign)
	}

	if !sawEnd {
		return info, errno.New(errno.EFAULT, "boot.parse", nil)
	}
	if info.MemoryMap == nil {
		return info, errno.New(errno.EFAULT, "boot.parse", nil)
	}
	return info, nil
}

func parseMemoryMap(body []byte) ([]MemoryRegion, error) {
	if len(body) < mmapFixedSize {
		return nil, errno.New(errno.EFAULT, "boot.mmap", nil)
	}
	entrySize := binary.LittleEndian.Uint32(body[0:4])
	if entrySize < mmapEntrySize {
		return nil, errno.New(errno.EFAULT, "boot.mmap", nil)
	}

	var out []MemoryRegion
	for off := mmapFixedSize; off+int(entrySize) <= len(body); off += int(entrySize) {
		e := body[off:]
		out = append(out, MemoryRegion{
			Base:   binary.LittleEndian.Uint64(e[0:8]),
			Length: binary.LittleEndian.Uint64(e[8:16]),
			Type:   binary.LittleEndian.Uint32(e[16:20]),
		})
	}
	return out, nil
}

func parseFramebuffer(body []byte) (*Framebuffer, error) {
	if len(body) < 22 {
		return nil, errno.New(errno.EFAULT, "boot.framebuffer", nil)
	}
	return &Framebuffer{
		Address: binary.LittleEndian.Uint64(body[0:8]),
		Pitch:   binary.LittleEndian.Uint32(body[8:12]),
		Width:   binary.LittleEndian.Uint32(body[12:16]),
		Height:  binary.LittleEndian.Uint32(body[16:20]),
		BPP:     body[20],
	}, nil
}

func align(v, a int) int { return (v + a - 1) &^ (a - 1) }

// FromUEFIMap builds the same Info view from a firmware-translated
// memory map, for the UEFI entry path that bypasses Multiboot2 tags.
func FromUEFIMap(regions []MemoryRegion) Info {
	return Info{MemoryMap: regions}
}
