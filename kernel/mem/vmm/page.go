package vmm

import "novaos/kernel/mem"

// PageSize selects the leaf mapping granularity for a MapTo call.
type PageSize uint8

const (
	PageSize4K PageSize = iota
	PageSize2M
	PageSize1G
)

// Page identifies a virtual page by its page-aligned start address.
type Page uintptr

// PageFromAddress truncates addr down to its containing page.
func PageFromAddress(addr uintptr) Page {
	return Page(mem.AlignDown(addr))
}

// Address returns the virtual address at the start of this page.
func (p Page) Address() uintptr {
	return uintptr(p)
}

// index returns this page's index at the given paging level (0 = L4).
func (p Page) index(level int) uintptr {
	return (uintptr(p) >> pageLevelShifts[level]) & (entriesPerTable - 1)
}
