package vmm

import "novaos/kernel/mem"

// MapGuard reserves the virtual page below base as an unmapped guard page by
// simply leaving it out of any mapping; any access to it page-faults. There
// is nothing to allocate, so this only computes the address a caller should
// leave unmapped when laying out a stack (spec.md §4.5: "one guard page
// below every kernel stack").
func MapGuard(base Page) Page {
	return Page(uintptr(base) - mem.PageSize)
}
