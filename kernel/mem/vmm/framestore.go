package vmm

import "novaos/kernel/mem/pmm"

// Table is a single 512-entry page table at any of the four levels.
type Table [entriesPerTable]pageTableEntry

// FrameStore dereferences a physical frame holding a page table. The real
// implementation (DirectMapFrameStore) does this through the direct
// physical map (spec.md §3's "kernel physical address"); tests substitute a
// host-memory-backed fake so paging logic can run without an MMU.
type FrameStore interface {
	Table(f pmm.Frame) *Table
}

// DirectMapFrameStore is the hardware FrameStore: frame f's table lives at
// its direct-mapped kernel virtual address.
type DirectMapFrameStore struct{}

// Table implements FrameStore using the fixed direct-map offset.
func (DirectMapFrameStore) Table(f pmm.Frame) *Table {
	return tableAtFn(KernelPhysAddr(f.Address()))
}

// tableAtFn materializes a *Table from a virtual address; it is a function
// variable purely so tests never need to perform the unsafe pointer cast
// themselves while still exercising DirectMapFrameStore's own logic.
var tableAtFn = func(addr uintptr) *Table {
	return (*Table)(ptrAt(addr))
}
