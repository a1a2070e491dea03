package mem

import "unsafe"

// Memset fills size bytes starting at addr with value. It is grounded on the
// teacher's kernel/mem/memset.go, which exists because the host Go runtime's
// memclr is not assumed to be available this early. Nothing in this module
// calls it: Bootstrap zeroes the frame bitmap's backing storage with its own
// loop, and MapTo relies on its allocator for zeroed page-table frames.
func Memset(addr uintptr, value uint8, size Size) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	for i := range buf {
		buf[i] = value
	}
}
