package kheap

import "testing"

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()
	return New(make([]byte, size))
}

func TestAllocReducesRemaining(t *testing.T) {
	h := newTestHeap(t, 4096)
	full := h.Remaining()

	off, ok := h.Alloc(64, 8)
	if !ok {
		t.Fatal("Alloc failed")
	}
	if off < headerSize {
		t.Fatalf("payload offset %d overlaps header", off)
	}
	if got := h.Remaining(); got >= full {
		t.Fatalf("Remaining = %d, want less than %d after allocation", got, full)
	}
}

func TestFreeCoalescesBackToFullCapacity(t *testing.T) {
	h := newTestHeap(t, 4096)
	full := h.Remaining()

	off, ok := h.Alloc(128, 8)
	if !ok {
		t.Fatal("Alloc failed")
	}
	h.Free(off)

	if got := h.Remaining(); got != full {
		t.Fatalf("Remaining after Free = %d, want %d (fully coalesced)", got, full)
	}
}

func TestAllocZeroedIsZero(t *testing.T) {
	h := newTestHeap(t, 4096)
	off, ok := h.AllocZeroed(32, 8)
	if !ok {
		t.Fatal("AllocZeroed failed")
	}
	for i, b := range h.mem[off : off+32] {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestMultipleAllocationsDistinct(t *testing.T) {
	h := newTestHeap(t, 4096)
	a, ok := h.Alloc(64, 8)
	if !ok {
		t.Fatal("first Alloc failed")
	}
	b, ok := h.Alloc(64, 8)
	if !ok {
		t.Fatal("second Alloc failed")
	}
	if a == b {
		t.Fatal("two live allocations share an offset")
	}
	// Freeing the first must not disturb the second block's header.
	h.Free(a)
	bSize, _, bUsed := h.readHeader(b - headerSize)
	if !bUsed || bSize < 64 {
		t.Fatalf("second block corrupted after freeing first: size=%d used=%v", bSize, bUsed)
	}
}

func TestFreeCoalescesWithLowerNeighbor(t *testing.T) {
	h := newTestHeap(t, 4096)
	full := h.Remaining()

	a, _ := h.Alloc(64, 8)
	b, _ := h.Alloc(64, 8)

	// Lower block first, then the higher one: the second Free must
	// merge downward into the already-free first block.
	h.Free(a)
	h.Free(b)

	if got := h.Remaining(); got != full {
		t.Fatalf("Remaining after in-order frees = %d, want %d (fully coalesced)", got, full)
	}
	if size, _, used := h.readHeader(0); used || int(size) != full {
		t.Fatalf("arena head block = size %d used %v, want one free block of %d", size, used, full)
	}
}

func TestFreeMergesBothNeighbors(t *testing.T) {
	h := newTestHeap(t, 4096)
	full := h.Remaining()

	a, _ := h.Alloc(64, 8)
	b, _ := h.Alloc(64, 8)
	c, _ := h.Alloc(64, 8)

	// Free the outer blocks, then the middle one: its release must
	// bridge both free neighbors into a single block.
	h.Free(a)
	h.Free(c)
	h.Free(b)

	if got := h.Remaining(); got != full {
		t.Fatalf("Remaining after middle free = %d, want %d", got, full)
	}
	if size, _, used := h.readHeader(0); used || int(size) != full {
		t.Fatalf("arena head block = size %d used %v, want one free block of %d", size, used, full)
	}
}

func TestAllocAfterInterleavedFrees(t *testing.T) {
	h := newTestHeap(t, 4096)

	var offs []int
	for i := 0; i < 4; i++ {
		off, ok := h.Alloc(256, 8)
		if !ok {
			t.Fatalf("Alloc %d failed", i)
		}
		offs = append(offs, off)
	}
	// Free in an order that exercises both merge directions.
	h.Free(offs[1])
	h.Free(offs[0])
	h.Free(offs[3])
	h.Free(offs[2])

	// The coalesced arena must satisfy one allocation spanning most
	// of it again.
	if _, ok := h.Alloc(3000, 8); !ok {
		t.Fatal("arena fragmented: large Alloc failed after freeing everything")
	}
}

func TestExhaustionReturnsNotOK(t *testing.T) {
	h := newTestHeap(t, 64) // smaller than a single reasonable allocation plus header
	if _, ok := h.Alloc(1024, 8); ok {
		t.Fatal("expected Alloc to fail when request exceeds arena size")
	}
}
