// Package boot models the narrow slice of the bootloader handoff (spec.md
// §6) that the memory-management bootstrap (C2) consumes: a restartable
// iterator over physical memory regions. It is bootloader-agnostic by
// design — Multiboot, Limine and any other loader all reduce to this shape —
// generalizing the teacher's Multiboot-specific
// kernel/hal/multiboot.VisitMemRegions callback.
package boot

// MemoryRegion describes one span of the physical address space as reported
// by firmware.
type MemoryRegion struct {
	StartAddr uint64
	Length    uint64
	Free      bool
}

// End returns the exclusive end address of the region.
func (r MemoryRegion) End() uint64 {
	return r.StartAddr + r.Length
}

// RegionIterator yields memory regions and can be replayed from the start,
// mirroring multiboot.VisitMemRegions(visitor) being callable more than
// once. Visit calls fn for each region in order, stopping early if fn
// returns false.
type RegionIterator interface {
	Visit(fn func(MemoryRegion) bool)
}

// SliceIterator is a RegionIterator backed by a fixed slice, used both by
// tests and by the real boot path once the bootloader's memory map has been
// copied into kernel memory (spec.md §6: "accessed once ... copied into
// kernel structures before the reclaimable portions are reused").
type SliceIterator []MemoryRegion

// Visit implements RegionIterator.
func (s SliceIterator) Visit(fn func(MemoryRegion) bool) {
	for _, r := range s {
		if !fn(r) {
			return
		}
	}
}
