// Package virtio implements the split-ring VirtIO transport (C9): PCI
// capability discovery, the device status/feature-negotiation handshake,
// and virtqueue lifecycle management. Device-specific drivers (e.g.
// drivers/virtio/blk) build on top of the Device and Queue types exported
// here. Grounded on original_source/kernel/src/virtio/{config,device,queue}.rs,
// reworked from the Rust original's typed register overlays
// (register_struct!) into this codebase's byte-offset-and-accessor
// convention (drivers/pci.Header, kernel/mem/vmm/pte.go).
package virtio

import "unsafe"

// Registers is a byte-addressable MMIO register block, abstracted so
// production code can back it with an identity-mapped physical address
// while tests back it with plain host memory.
type Registers interface {
	ReadU8(off uint32) uint8
	ReadU16(off uint32) uint16
	ReadU32(off uint32) uint32
	ReadU64(off uint32) uint64
	WriteU8(off uint32, v uint8)
	WriteU16(off uint32, v uint16)
	WriteU32(off uint32, v uint32)
	WriteU64(off uint32, v uint64)
}

// mmioRegisters is a Registers backed by a real virtual address that is
// already mapped (spec.md §4.5: the BAR target page has been identity
// mapped, so its virtual address equals its physical address).
type mmioRegisters struct {
	base uintptr
}

func newMMIORegisters(base uintptr) *mmioRegisters { return &mmioRegisters{base: base} }

func (r *mmioRegisters) ReadU8(off uint32) uint8   { return readU8(r.base + uintptr(off)) }
func (r *mmioRegisters) ReadU16(off uint32) uint16 { return readU16(r.base + uintptr(off)) }
func (r *mmioRegisters) ReadU32(off uint32) uint32 { return readU32(r.base + uintptr(off)) }
func (r *mmioRegisters) ReadU64(off uint32) uint64 { return readU64(r.base + uintptr(off)) }

func (r *mmioRegisters) WriteU8(off uint32, v uint8)   { writeU8(r.base+uintptr(off), v) }
func (r *mmioRegisters) WriteU16(off uint32, v uint16) { writeU16(r.base+uintptr(off), v) }
func (r *mmioRegisters) WriteU32(off uint32, v uint32) { writeU32(r.base+uintptr(off), v) }
func (r *mmioRegisters) WriteU64(off uint32, v uint64) { writeU64(r.base+uintptr(off), v) }

func readU8(addr uintptr) uint8   { return *(*uint8)(unsafe.Pointer(addr)) }
func readU16(addr uintptr) uint16 { return *(*uint16)(unsafe.Pointer(addr)) }
func readU32(addr uintptr) uint32 { return *(*uint32)(unsafe.Pointer(addr)) }
func readU64(addr uintptr) uint64 { return *(*uint64)(unsafe.Pointer(addr)) }

func writeU8(addr uintptr, v uint8)   { *(*uint8)(unsafe.Pointer(addr)) = v }
func writeU16(addr uintptr, v uint16) { *(*uint16)(unsafe.Pointer(addr)) = v }
func writeU32(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
func writeU64(addr uintptr, v uint64) { *(*uint64)(unsafe.Pointer(addr)) = v }

func unsafeSlice(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
