package vmm

import (
	"novaos/kernel"
	"novaos/kernel/mem"
)

// Heap is the kernel heap (C4): a single growable region of the address
// space reserved at HeapStart, demand-paged one frame at a time through
// AllocateAndMap. Grounded on the teacher's goruntime bootstrap, which
// reserves a region up front and lets the Go runtime's own allocator carve
// it up; here the kernel is the allocator, so Heap keeps a simple
// first-fit free list over the region it has paged in so far instead.
type Heap struct {
	as *AddrSpace

	base  uintptr
	limit uintptr // HeapEnd, the highest address this heap may ever grow to
	brk   uintptr // highest address currently backed by a physical frame

	free []block
}

type block struct {
	addr uintptr
	size uintptr
}

// NewHeap creates a heap that grows, page by page, from HeapStart up to
// HeapEnd within as.
func NewHeap(as *AddrSpace) *Heap {
	return &Heap{as: as, base: HeapStart, limit: HeapEnd, brk: HeapStart}
}

// Alloc reserves size bytes, 8-byte aligned, paging in additional frames as
// needed. It returns ErrAlloc if growing the heap would exceed HeapEnd or
// if the address space has no physical frames left.
func (h *Heap) Alloc(size uintptr) (uintptr, *kernel.Error) {
	size = (size + 7) &^ 7
	if size == 0 {
		size = 8
	}

	for i, b := range h.free {
		if b.size >= size {
			addr := b.addr
			if b.size == size {
				h.free = append(h.free[:i], h.free[i+1:]...)
			} else {
				h.free[i] = block{addr: b.addr + size, size: b.size - size}
			}
			return addr, nil
		}
	}

	addr := h.brk
	if addr+size > h.limit {
		return 0, ErrAlloc
	}

	for h.brk < addr+size {
		if _, err := h.as.AllocateAndMap(PageFromAddress(h.brk), FlagRW); err != nil {
			return 0, err
		}
		h.brk += mem.PageSize
	}

	return addr, nil
}

// Free returns a previously allocated region to the free list. Freeing a
// region not currently allocated from this heap is a bug-class error
// (spec.md §7's "free-of-unused"): there is no bookkeeping to tell the
// difference between "never allocated" and "already freed" without
// per-allocation headers. Free panics when the region overlaps any block
// already on the free list, which catches a double free; a region that was
// never allocated and overlaps no free block is not detected. Freed blocks
// are appended as they are and not coalesced with their neighbours.
func (h *Heap) Free(addr, size uintptr) {
	size = (size + 7) &^ 7
	if size == 0 {
		size = 8
	}
	for _, b := range h.free {
		if addr < b.addr+b.size && b.addr < addr+size {
			panic("vmm: Free of a region that overlaps an already-free region")
		}
	}
	h.free = append(h.free, block{addr: addr, size: size})
}
