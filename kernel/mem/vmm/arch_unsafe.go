package vmm

import "unsafe"

// ptrAt converts a virtual address to an unsafe.Pointer. Isolated in its own
// file so every other file in this package stays free of unsafe casts.
func ptrAt(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}
