// Package kheap implements the kernel's general-purpose heap: a
// first-fit allocator over a single fixed arena whose blocks form an
// address-ordered doubly-linked list, so a freed block coalesces with
// the free neighbor on either side of it. The arena itself comes from
// the link step in the real kernel; this package only needs a byte
// slice over whatever range cmd/kernel hands it.
package kheap

import "encoding/binary"

const (
	magic = 0x4b484541 // "KHEA"

	// Block header: magic(4) + size(8) + prev(8) + used(1) + pad(11),
	// a multiple of minAlign so every payload offset is one too.
	// prev is the arena offset of the preceding block's header, which
	// is what lets Free find its lower-addressed neighbor without a
	// scan; the first block stores noPrev.
	headerSize = 32
	minAlign   = 16

	offMagic = 0
	offSize  = 4
	offPrev  = 12
	offUsed  = 20

	noPrev = ^uint64(0)
)

// Heap is a single arena of doubly-linked blocks. All mutation
// happens with interrupts disabled; a Heap has no internal lock of
// its own.
type Heap struct {
	mem []byte
}

// New wraps buf as a heap arena. len(buf) must be at least
// headerSize; the whole buffer starts as one free block.
func New(buf []byte) *Heap {
	h := &Heap{mem: buf}
	h.writeHeader(0, uint64(len(buf)-headerSize), noPrev, false)
	return h
}

// Alloc reserves size bytes aligned to align (which must be a power
// of two no greater than minAlign; this arena only ever hands back
// 16-byte-aligned block payloads). It returns the byte offset of the
// payload within the arena, or ok=false if no free block is large
// enough.
func (h *Heap) Alloc(size int, align int) (offset int, ok bool) {
	if align > minAlign {
		return 0, false
	}
	need := roundUp(size, minAlign)

	off := 0
	for off < len(h.mem) {
		blockSize, _, used := h.readHeader(off)
		if !used && int(blockSize) >= need {
			h.split(off, int(blockSize), need)
			h.setUsed(off, true)
			return off + headerSize, true
		}
		off += headerSize + int(blockSize)
	}
	return 0, false
}

// AllocZeroed is Alloc followed by zero-filling the payload.
func (h *Heap) AllocZeroed(size int, align int) (offset int, ok bool) {
	off, ok := h.Alloc(size, align)
	if !ok {
		return 0, false
	}
	blockSize, _, _ := h.readHeader(off - headerSize)
	clear(h.mem[off : off+int(blockSize)])
	return off, true
}

// Free releases a block returned by Alloc/AllocZeroed, merging it
// with the adjacent free block below and above it so that no two free
// neighbors ever persist, whatever order blocks come back in. A
// corrupted or double-freed header (bad magic, or already marked
// free) is a fatal kernel error, the same rule every allocator in
// this core applies.
func (h *Heap) Free(offset int) {
	headerOff := offset - headerSize
	if headerOff < 0 || headerOff+headerSize > len(h.mem) {
		panicCorrupt("kheap.Free: offset out of range")
	}
	gotMagic := binary.LittleEndian.Uint32(h.mem[headerOff+offMagic:])
	if gotMagic != magic {
		panicCorrupt("kheap.Free: bad block header")
	}
	size, prev, used := h.readHeader(headerOff)
	if !used {
		panicCorrupt("kheap.Free: double free")
	}
	h.setUsed(headerOff, false)

	// Merge with the block immediately below, if free.
	if prev != noPrev {
		pSize, pPrev, pUsed := h.readHeader(int(prev))
		if !pUsed {
			size += uint64(headerSize) + pSize
			headerOff = int(prev)
			prev = pPrev
			h.writeHeader(headerOff, size, prev, false)
		}
	}

	// Merge with the block immediately above, if free.
	next := headerOff + headerSize + int(size)
	if next < len(h.mem) {
		nSize, _, nUsed := h.readHeader(next)
		if !nUsed {
			size += uint64(headerSize) + nSize
			h.writeHeader(headerOff, size, prev, false)
		}
	}

	// Whatever now follows the merged block must point back at it.
	h.relinkSuccessor(headerOff, int(size))
}

// Remaining returns the sum of every free block's payload capacity.
func (h *Heap) Remaining() int {
	total := 0
	off := 0
	for off < len(h.mem) {
		size, _, used := h.readHeader(off)
		if !used {
			total += int(size)
		}
		off += headerSize + int(size)
	}
	return total
}

// split shrinks the block at off (whose current payload size is
// blockSize) to need bytes if the remainder is large enough to host
// its own header plus a minimum-sized payload; otherwise the whole
// block is handed out as-is (internal fragmentation, same tradeoff
// any first-fit allocator makes).
func (h *Heap) split(off, blockSize, need int) {
	remainder := blockSize - need
	if remainder < headerSize+minAlign {
		return
	}
	_, prev, used := h.readHeader(off)
	h.writeHeader(off, uint64(need), prev, used)

	newOff := off + headerSize + need
	h.writeHeader(newOff, uint64(remainder-headerSize), uint64(off), false)
	h.relinkSuccessor(newOff, remainder-headerSize)
}

// relinkSuccessor updates the prev link of the block that follows
// [off, off+headerSize+size), if any.
func (h *Heap) relinkSuccessor(off, size int) {
	next := off + headerSize + size
	if next >= len(h.mem) {
		return
	}
	binary.LittleEndian.PutUint64(h.mem[next+offPrev:], uint64(off))
}

func (h *Heap) readHeader(off int) (size uint64, prev uint64, used bool) {
	size = binary.LittleEndian.Uint64(h.mem[off+offSize:])
	prev = binary.LittleEndian.Uint64(h.mem[off+offPrev:])
	used = h.mem[off+offUsed] != 0
	return
}

func (h *Heap) writeHeader(off int, size uint64, prev uint64, used bool) {
	binary.LittleEndian.PutUint32(h.mem[off+offMagic:], magic)
	binary.LittleEndian.PutUint64(h.mem[off+offSize:], size)
	binary.LittleEndian.PutUint64(h.mem[off+offPrev:], prev)
	if used {
		h.mem[off+offUsed] = 1
	} else {
		h.mem[off+offUsed] = 0
	}
}

func (h *Heap) setUsed(off int, used bool) {
	if used {
		h.mem[off+offUsed] = 1
	} else {
		h.mem[off+offUsed] = 0
	}
}

func roundUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// panicCorrupt routes through the same fatal path every other
// allocator in this core uses; kheap has no interrupt frame of its
// own to report, so it passes nil.
func panicCorrupt(reason string) {
	haltFatal(reason)
}
