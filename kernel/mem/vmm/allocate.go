package vmm

import (
	"novaos/kernel"
	"novaos/kernel/mem/pmm"
)

// AllocateAndMap is a convenience wrapper over MapTo for the common case of
// growing a mapping by one fresh frame (used by the kernel heap and by
// per-task kernel stack allocation in sched).
func (as *AddrSpace) AllocateAndMap(page Page, flags Flag) (pmm.Frame, *kernel.Error) {
	return as.MapTo(page, PageSize4K, NewPhysPage(), flags)
}
