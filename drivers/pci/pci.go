// Package pci exposes the narrow PCI-device-header contract spec.md §6
// describes as an external collaborator: the ACPI/PCIe enumerator that
// walks bus/device/function space is out of scope, but VirtIO device
// discovery (drivers/virtio) needs to read a device's extended
// configuration header and walk its capability list, so that contract is
// modeled here. Grounded on the teacher's convention of small fixed-layout
// header structs (kernel/mem/vmm/pte.go's bit-field accessors) applied to
// a byte-addressed configuration space instead of a page-table entry.
package pci

// Header field byte offsets within a device's 4 KiB extended configuration
// space, per spec.md §6.
const (
	offVendorID     = 0x00
	offDeviceID     = 0x02
	offCommand      = 0x04
	offStatus       = 0x06
	offRevisionID   = 0x08
	offClassTriplet = 0x09
	offHeaderType   = 0x0E
	offCapsPointer  = 0x34
)

// VirtIOVendorID identifies a device as a VirtIO device (spec.md §4.5).
const VirtIOVendorID = 0x1AF4

// ConfigSpace is a device's 4 KiB extended PCI configuration space, read
// through an accessor so the real implementation can back it with an
// identity-mapped MMIO region while tests back it with a plain byte slice.
type ConfigSpace interface {
	ReadU8(offset uint16) uint8
	ReadU16(offset uint16) uint16
	ReadU32(offset uint16) uint32
}

// Header is the fixed portion of a device's configuration space that every
// device exposes regardless of header type.
type Header struct {
	VendorID      uint16
	DeviceID      uint16
	Command       uint16
	Status        uint16
	RevisionID    uint8
	ClassTriplet  [3]uint8
	HeaderType    uint8
	CapListOffset uint8
}

// ReadHeader parses the fixed header fields out of cfg.
func ReadHeader(cfg ConfigSpace) Header {
	return Header{
		VendorID:   cfg.ReadU16(offVendorID),
		DeviceID:   cfg.ReadU16(offDeviceID),
		Command:    cfg.ReadU16(offCommand),
		Status:     cfg.ReadU16(offStatus),
		RevisionID: cfg.ReadU8(offRevisionID),
		ClassTriplet: [3]uint8{
			cfg.ReadU8(offClassTriplet),
			cfg.ReadU8(offClassTriplet + 1),
			cfg.ReadU8(offClassTriplet + 2),
		},
		HeaderType:    cfg.ReadU8(offHeaderType),
		CapListOffset: cfg.ReadU8(offCapsPointer),
	}
}

// IsVirtIO reports whether h identifies a VirtIO device.
func (h Header) IsVirtIO() bool {
	return h.VendorID == VirtIOVendorID
}

// Capability is one entry in the device's capability list.
type Capability struct {
	ID     uint8
	Offset uint16
	Next   uint8
}

// offBAR0 is the byte offset of the first Base Address Register; the other
// five (type-0 headers have six total) follow at 4-byte strides.
const offBAR0 = 0x10

// BARAddress decodes the memory address encoded in BAR index bar (0-5) of
// cfg's header, per the PCI BAR encoding: bit 0 distinguishes I/O-space
// (unsupported here — no VirtIO capability resolves through one) from
// memory-space, and bits 1-2 of a memory BAR select 32-bit vs. 64-bit
// addressing, in which case the next BAR register holds the high 32 bits.
func BARAddress(cfg ConfigSpace, bar uint8) uintptr {
	off := uint16(offBAR0) + uint16(bar)*4
	low := cfg.ReadU32(off)
	if low&0x1 != 0 {
		panic("pci: I/O-space BAR not supported")
	}

	base := uintptr(low &^ 0xF)
	is64Bit := (low>>1)&0x3 == 0x2
	if is64Bit {
		high := cfg.ReadU32(off + 4)
		base |= uintptr(high) << 32
	}
	return base
}

// Capabilities walks the linked capability list starting at h.CapListOffset,
// returning every capability found. A cycle is truncated rather than followed
// forever: the walk stops at the first offset it has already visited. A next
// pointer to a lower, not yet visited offset is followed.
func Capabilities(cfg ConfigSpace, h Header) []Capability {
	var caps []Capability
	visited := make(map[uint8]bool)

	next := h.CapListOffset
	for next != 0 && !visited[next] {
		visited[next] = true
		id := cfg.ReadU8(uint16(next))
		nextPtr := cfg.ReadU8(uint16(next) + 1)
		caps = append(caps, Capability{ID: id, Offset: uint16(next), Next: nextPtr})
		next = nextPtr
	}
	return caps
}
