package allocator

import (
	"novaos/boot"
	"novaos/kernel"
	"novaos/kernel/mem/pmm"
)

var errNoRegionForBitmap = &kernel.Error{Module: "pmm_bootstrap", Message: "no free region large enough to hold the frame bitmap"}

// pageRange is an inclusive [start, end] range of page indices.
type pageRange struct {
	start, end uint64
}

// BootstrapPlan is the pure result of running spec.md §4.2's bootstrap
// procedure over a memory map: where the frame bitmap goes and which pages
// must be marked used before the allocator is handed to the rest of the
// kernel. Splitting the arithmetic (this type, computed by planBootstrap)
// from the side-effecting part (Bootstrap, which actually zeroes memory and
// writes the bitmap) follows the teacher's convention of mocking
// architecture-touching calls behind package-level function variables
// (kernel/mem/pmm/allocator/bootmem_test.go) — here the whole computation is
// made pure instead, since it has no architecture dependency at all.
type BootstrapPlan struct {
	TotalMemory uint64
	BitmapBytes uint64
	BitmapStart uint64

	usedRanges []pageRange
}

// planBootstrap implements spec.md §4.2 steps 1-3 and records, without
// touching any memory, every page that step 5 must mark used.
func planBootstrap(regions boot.RegionIterator, pageSize uint64) (BootstrapPlan, *kernel.Error) {
	var plan BootstrapPlan

	regions.Visit(func(r boot.MemoryRegion) bool {
		if end := r.End(); end > plan.TotalMemory {
			plan.TotalMemory = end
		}
		return true
	})

	plan.BitmapBytes = (plan.TotalMemory/pageSize + 7) / 8
	if plan.BitmapBytes == 0 {
		plan.BitmapBytes = 1
	}

	// Step 3: find the first free region whose page-aligned interval is
	// large enough. Free regions round start up / end down; non-free
	// regions round start down / end up, so non-free wins on any page
	// that straddles a region boundary.
	found := false
	regions.Visit(func(r boot.MemoryRegion) bool {
		if !r.Free {
			return true
		}
		start := alignUp(r.StartAddr, pageSize)
		end := alignDown(r.End(), pageSize)
		if end <= start {
			return true
		}
		if end-start >= plan.BitmapBytes {
			plan.BitmapStart = start
			found = true
			return false
		}
		return true
	})
	if !found {
		return BootstrapPlan{}, errNoRegionForBitmap
	}

	// Step 5a: every page overlapping a non-free region is used.
	regions.Visit(func(r boot.MemoryRegion) bool {
		if r.Free {
			return true
		}
		start := alignDown(r.StartAddr, pageSize)
		end := alignUp(r.End(), pageSize)
		if end <= start {
			return true
		}
		plan.usedRanges = append(plan.usedRanges, pageRange{start / pageSize, end/pageSize - 1})
		return true
	})

	// Step 5b: the pages the bitmap itself occupies are used.
	bitmapEnd := alignUp(plan.BitmapStart+plan.BitmapBytes, pageSize)
	plan.usedRanges = append(plan.usedRanges, pageRange{
		plan.BitmapStart / pageSize,
		bitmapEnd/pageSize - 1,
	})

	return plan, nil
}

func alignUp(v, align uint64) uint64   { return (v + align - 1) &^ (align - 1) }
func alignDown(v, align uint64) uint64 { return v &^ (align - 1) }

// Bootstrap runs spec.md §4.2 end to end: it computes the plan, zeroes the
// bitmap's backing storage byte by byte, wraps it in a Bitmap, and marks every
// reserved page used. backingFn lets callers (real boot code, or tests)
// control how the bitmap's physical storage is materialized without
// Bootstrap itself needing to know about virtual-address translation.
func Bootstrap(regions boot.RegionIterator, pageSize uint64, backingFn func(startAddr, size uint64) []byte) (*Bitmap, BootstrapPlan, *kernel.Error) {
	plan, err := planBootstrap(regions, pageSize)
	if err != nil {
		return nil, BootstrapPlan{}, err
	}

	backing := backingFn(plan.BitmapStart, plan.BitmapBytes)
	for i := range backing {
		backing[i] = 0
	}

	bm := NewBitmap(backing)
	for _, rg := range plan.usedRanges {
		for page := rg.start; page <= rg.end; page++ {
			if page >= uint64(bm.Frames()) {
				continue
			}
			bm.MarkUsed(pmm.Frame(page))
		}
	}

	return bm, plan, nil
}
