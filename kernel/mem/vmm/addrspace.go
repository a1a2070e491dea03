package vmm

import (
	"novaos/kernel"
	"novaos/kernel/cpu"
	"novaos/kernel/mem"
	"novaos/kernel/mem/pmm"
)

// FrameAllocatorFn allocates a single fresh, zeroed physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// AddrSpace is the four-level page-table manager (C3) rooted at a single L4
// frame. The kernel runs every ring-0 task against one AddrSpace (spec.md
// §4.4: CR3 is bookkeeping only for ring-0 tasks), but the type itself is
// address-space-agnostic so tests can construct disposable instances.
type AddrSpace struct {
	store FrameStore
	root  pmm.Frame
	alloc FrameAllocatorFn

	// flushFn issues the local TLB invalidation mandated after every
	// mapping change (spec.md §5). Overridable so tests never touch real
	// hardware state.
	flushFn func(virtAddr uintptr)
}

// NewAddrSpace wraps a FrameStore and root frame. alloc supplies fresh
// zeroed frames for intermediate tables and NewPhysPage targets.
func NewAddrSpace(store FrameStore, root pmm.Frame, alloc FrameAllocatorFn) *AddrSpace {
	return &AddrSpace{store: store, root: root, alloc: alloc, flushFn: cpu.FlushTLBEntry}
}

// Root returns the frame holding this address space's top-level table; its
// Address() is the value to load into CR3 to activate the address space.
func (as *AddrSpace) Root() pmm.Frame { return as.root }

// MapTarget selects what MapTo should map a virtual page to.
type MapTarget struct {
	// New requests a freshly allocated, zeroed physical frame.
	New bool
	// Existing is used when New is false.
	Existing pmm.Frame
}

// NewPhysPage requests a freshly allocated frame.
func NewPhysPage() MapTarget { return MapTarget{New: true} }

// ExistingPhysPage maps to an already-owned frame.
func ExistingPhysPage(f pmm.Frame) MapTarget { return MapTarget{Existing: f} }

// leafLevel returns the paging level (0-indexed, L4=0) at which size's
// entries are leaves: L1 for 4 KiB, L2 for 2 MiB, L3 for 1 GiB.
func leafLevel(size PageSize) int {
	switch size {
	case PageSize1G:
		return 1
	case PageSize2M:
		return 2
	default:
		return 3
	}
}

func pageSizeBytes(size PageSize) uintptr {
	switch size {
	case PageSize1G:
		return mem.PageSizeHuge
	case PageSize2M:
		return mem.PageSizeLarge
	default:
		return mem.PageSize
	}
}

// MapTo establishes a mapping from page to target with the given leaf flags,
// creating any missing intermediate tables. It is transactional: on error no
// partial leaf mapping is left present (intermediate tables allocated along
// the way are harmless empty tables and are left in place, matching the
// teacher's behavior of never rolling back table allocations).
func (as *AddrSpace) MapTo(page Page, size PageSize, target MapTarget, flags Flag) (pmm.Frame, *kernel.Error) {
	if size != PageSize4K && uintptr(page)%pageSizeBytes(size) != 0 {
		return pmm.InvalidFrame, ErrMisaligned
	}

	leaf := leafLevel(size)
	table := as.store.Table(as.root)

	for level := 0; level < leaf; level++ {
		idx := page.index(level)
		entry := &table[idx]

		if !entry.HasFlags(FlagPresent) {
			newFrame, err := as.alloc()
			if err != nil {
				return pmm.InvalidFrame, ErrAlloc
			}
			*entry = 0
			entry.SetFrame(newFrame)
			entry.SetFlags(FlagPresent | FlagRW | (flags & parentFlagsMask))
		} else {
			// Parent flags must be widened to a superset of every
			// child mapping's restricted flags (spec.md §3 invariant).
			entry.SetFlags(flags & parentFlagsMask)
		}

		table = as.store.Table(entry.Frame())
	}

	idx := page.index(leaf)
	entry := &table[idx]
	if entry.HasFlags(FlagPresent) {
		return pmm.InvalidFrame, &kernel.Error{Module: "vmm", Message: "page already mapped"}
	}

	var frame pmm.Frame
	if target.New {
		f, err := as.alloc()
		if err != nil {
			return pmm.InvalidFrame, ErrAlloc
		}
		frame = f
	} else {
		frame = target.Existing
	}

	*entry = 0
	entry.SetFrame(frame)
	leafFlags := FlagPresent | flags
	if leaf != pageLevels-1 {
		leafFlags |= FlagHuge
	}
	entry.SetFlags(leafFlags)

	as.flushFn(page.Address())
	return frame, nil
}

// TranslateResult is the outcome of a Translate call.
type TranslateResult struct {
	Mapped bool
	Phys   uintptr
	Flags  Flag
	Offset uintptr
}

// Translate walks L4->L1, short-circuiting on a huge-page entry at L3 (1
// GiB) or L2 (2 MiB), per spec.md §4.3.
func (as *AddrSpace) Translate(virt uintptr) TranslateResult {
	table := as.store.Table(as.root)

	for level := 0; level < pageLevels; level++ {
		idx := (virt >> pageLevelShifts[level]) & (entriesPerTable - 1)
		entry := &table[idx]

		if !entry.HasFlags(FlagPresent) {
			return TranslateResult{}
		}

		if entry.HasFlags(FlagHuge) || level == pageLevels-1 {
			pageBytes := pageSizeBytes(levelPageSize(level))
			offset := virt & (pageBytes - 1)
			return TranslateResult{
				Mapped: true,
				Phys:   entry.Frame().Address() + offset,
				Flags:  entry.flagBits(),
				Offset: offset,
			}
		}

		table = as.store.Table(entry.Frame())
	}

	return TranslateResult{}
}

func levelPageSize(level int) PageSize {
	switch level {
	case 1:
		return PageSize1G
	case 2:
		return PageSize2M
	default:
		return PageSize4K
	}
}

// flagBits returns every flag bit set on the entry except the physical
// address bits, for reporting back to Translate's caller.
func (pte pageTableEntry) flagBits() Flag {
	return Flag(uint64(pte) &^ ptePhysAddrMask)
}

// Unmap clears the leaf entry for page and flushes its TLB entry, returning
// the physical page that was mapped there. It does not free the frame; the
// caller owns it (spec.md §4.3). size is the caller's expected mapping
// granularity; if the page turns out to be mapped at a different size,
// Unmap leaves the mapping untouched and returns ErrWrongSize, mirroring
// the caller-supplied size check in the Rust original's page_table::unmap.
func (as *AddrSpace) Unmap(page Page, size PageSize) (pmm.Frame, *kernel.Error) {
	wantLevel := leafLevel(size)
	table := as.store.Table(as.root)

	for level := 0; level < pageLevels; level++ {
		idx := page.index(level)
		entry := &table[idx]

		if !entry.HasFlags(FlagPresent) {
			return pmm.InvalidFrame, ErrNotMapped
		}

		if entry.HasFlags(FlagHuge) {
			if level != pageLevels-1 {
				if level != wantLevel {
					return pmm.InvalidFrame, ErrWrongSize
				}
				frame := entry.Frame()
				entry.ClearFlags(FlagPresent)
				as.flushFn(page.Address())
				return frame, nil
			}
			return pmm.InvalidFrame, ErrWrongSize
		}

		if level == pageLevels-1 {
			if level != wantLevel {
				return pmm.InvalidFrame, ErrWrongSize
			}
			frame := entry.Frame()
			entry.ClearFlags(FlagPresent)
			as.flushFn(page.Address())
			return frame, nil
		}

		table = as.store.Table(entry.Frame())
	}

	return pmm.InvalidFrame, ErrNotMapped
}
