// Package pmm contains the physical frame index type shared by the frame
// allocator (C1) and the page-table manager (C3).
package pmm

import (
	"math"
	"novaos/kernel/mem"
)

// Frame identifies a physical page by index (physical address >> PageShift).
type Frame uintptr

// InvalidFrame is returned by allocators that fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid reports whether f is a real frame rather than InvalidFrame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the start of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the frame that contains the given physical address.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
