package pmm

// zone holds one zone's frame bitmap and its per-order buddy
// free-lists. A zone's bitmap covers every frame from its lowest
// registered base to its highest registered end; frames inside that
// span that were never registered as Available (holes between RAM
// regions) are marked used up front and never enter a free-list, so
// the buddy coalescer — which only merges two blocks it finds
// together on the same order's free-list — can never bridge a hole.
type zone struct {
	base   uintptr
	frames int
	used   []bool // one entry per frame; true = allocated or hole

	free      [NumOrders]map[uintptr]struct{}
	freeCount int // free frames, maintained incrementally for FreeBytes
}

func (z *zone) ensureInit() {
	for i := range z.free {
		if z.free[i] == nil {
			z.free[i] = make(map[uintptr]struct{})
		}
	}
}

// addRegion registers [base, base+length) as Available RAM. Any gap
// between the previous high-water mark and base is filled in as used
// (a hole), then the new span's frames start marked free and are
// decomposed into maximal aligned buddy blocks.
func (z *zone) addRegion(base, length uintptr) {
	z.ensureInit()
	if z.used == nil {
		z.base = base
	}
	end := base + length

	// Grow the bitmap to cover up to end, marking any newly-added
	// frames used by default (covers both the leading gap before base
	// and the span itself, which we'll then explicitly free below).
	wantFrames := int((end - z.base) / FrameSize)
	for len(z.used) < wantFrames {
		z.used = append(z.used, true)
	}
	z.frames = len(z.used)

	// Free the frames in [base, end).
	startIdx := int((base - z.base) / FrameSize)
	endIdx := int((end - z.base) / FrameSize)
	for i := startIdx; i < endIdx; i++ {
		z.used[i] = false
	}
	z.freeCount += endIdx - startIdx

	z.decompose(base, length)
}

// decompose splits [base, base+length) into maximal power-of-two
// aligned blocks within [MinOrder, MaxOrder] and pushes each onto its
// order's free-list (standard buddy-allocator seeding).
func (z *zone) decompose(base, length uintptr) {
	for length > 0 {
		order := MaxOrder
		for order > MinOrder {
			size := uintptr(1) << order
			if base%size == 0 && size <= length {
				break
			}
			order--
		}
		size := uintptr(1) << order
		z.free[order-MinOrder][base] = struct{}{}
		base += size
		length -= size
	}
}

// markUsedRange marks every frame in [base, base+length) used,
// removing any whole buddy blocks it overlaps from their free-lists
// (used during Init to subtract reserved regions out of Available
// ranges already decomposed into buddy blocks).
func (z *zone) markUsedRange(base, length uintptr) {
	if z.used == nil {
		return
	}
	end := base + length
	if base < z.base {
		base = z.base
	}
	zoneEnd := z.base + uintptr(z.frames)*FrameSize
	if end > zoneEnd {
		end = zoneEnd
	}
	if end <= base {
		return
	}

	// Remove any buddy blocks that intersect the reserved range from
	// their free-lists; frames within them become used and any
	// untouched remainder is re-decomposed.
	for order := MaxOrder; order >= MinOrder; order-- {
		size := uintptr(1) << order
		for blockBase := range z.free[order-MinOrder] {
			blockEnd := blockBase + size
			if blockEnd <= base || blockBase >= end {
				continue
			}
			delete(z.free[order-MinOrder], blockBase)
			// Re-free the parts of the block outside [base, end).
			if blockBase < base {
				z.decompose(blockBase, base-blockBase)
			}
			if blockEnd > end {
				z.decompose(end, blockEnd-end)
			}
		}
	}

	startIdx := int((base - z.base) / FrameSize)
	endIdx := int((end - z.base) / FrameSize)
	for i := startIdx; i < endIdx; i++ {
		if !z.used[i] {
			z.freeCount--
		}
		z.used[i] = true
	}
}

// alloc pops or splits a block of the requested order.
func (z *zone) alloc(order int) (uintptr, bool) {
	if order > MaxOrder {
		return 0, false
	}
	idx := order - MinOrder
	if addr, ok := minKey(z.free[idx]); ok {
		delete(z.free[idx], addr)
		z.markRangeUsed(addr, order)
		return addr, true
	}
	parent, ok := z.alloc(order + 1)
	if !ok {
		return 0, false
	}
	size := uintptr(1) << order
	upper := parent + size
	z.free[idx][upper] = struct{}{}
	z.markRangeFree(upper, order) // upper half goes back to "free" bookkeeping pending its own alloc
	z.markRangeUsed(parent, order)
	return parent, true
}

// freeBlock returns a block to order's free-list, coalescing with its
// buddy (address XOR (1<<order)) as long as the buddy is itself free
// and sitting on the same order's free-list. The bitmap
// transition to free happens exactly once here, before any
// coalescing recursion, so coalesce's own rangeIsUsed-free bookkeeping
// never re-checks bits this call already cleared.
func (z *zone) freeBlock(addr uintptr, order int) {
	if !z.rangeIsUsed(addr, order) {
		haltDoubleFree("free_contiguous")
		return
	}
	z.markRangeFree(addr, order)
	z.coalesce(addr, order)
}

// coalesce merges addr's order-sized block up through higher orders
// as long as each successive buddy is itself free-listed at that
// order; it never touches the bitmap, which free already updated.
func (z *zone) coalesce(addr uintptr, order int) {
	if order >= MaxOrder {
		z.free[order-MinOrder][addr] = struct{}{}
		return
	}

	buddy := addr ^ (uintptr(1) << order)

	idx := order - MinOrder
	if _, ok := z.free[idx][buddy]; ok {
		delete(z.free[idx], buddy)
		lower := addr
		if buddy < addr {
			lower = buddy
		}
		z.coalesce(lower, order+1)
		return
	}
	z.free[idx][addr] = struct{}{}
}

// minKey returns the lowest address on a free-list, keeping
// allocation order deterministic: the lowest suitable block is always
// taken first.
func minKey(m map[uintptr]struct{}) (uintptr, bool) {
	var best uintptr
	found := false
	for addr := range m {
		if !found || addr < best {
			best = addr
			found = true
		}
	}
	return best, found
}

func (z *zone) frameIndex(addr uintptr) int {
	return int((addr - z.base) / FrameSize)
}

func (z *zone) markRangeUsed(addr uintptr, order int) {
	frames := uintptr(1) << order / FrameSize
	start := z.frameIndex(addr)
	for i := 0; i < int(frames); i++ {
		if start+i < len(z.used) && !z.used[start+i] {
			z.freeCount--
		}
		if start+i < len(z.used) {
			z.used[start+i] = true
		}
	}
}

func (z *zone) markRangeFree(addr uintptr, order int) {
	frames := uintptr(1) << order / FrameSize
	start := z.frameIndex(addr)
	for i := 0; i < int(frames); i++ {
		if start+i < len(z.used) && z.used[start+i] {
			z.freeCount++
		}
		if start+i < len(z.used) {
			z.used[start+i] = false
		}
	}
}

func (z *zone) rangeIsUsed(addr uintptr, order int) bool {
	frames := uintptr(1) << order / FrameSize
	start := z.frameIndex(addr)
	if start < 0 || start+int(frames) > len(z.used) {
		return false
	}
	for i := 0; i < int(frames); i++ {
		if !z.used[start+i] {
			return false
		}
	}
	return true
}

func (z *zone) totalBytes() uint64 {
	return uint64(z.frames) * FrameSize
}

func (z *zone) freeBytes() uint64 {
	return uint64(z.freeCount) * FrameSize
}
