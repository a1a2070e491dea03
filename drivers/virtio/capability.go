package virtio

import "novaos/drivers/pci"

// ConfigType identifies the purpose of a VirtIO PCI capability, per "4.1.4
// Virtio Structure PCI Capabilities" in the VirtIO spec.
type ConfigType uint8

const (
	ConfigCommon       ConfigType = 1
	ConfigNotify       ConfigType = 2
	ConfigISR          ConfigType = 3
	ConfigDevice       ConfigType = 4
	ConfigPCI          ConfigType = 5
	ConfigSharedMemory ConfigType = 8
	ConfigVendor       ConfigType = 9
)

// vendorSpecificCapabilityID is the PCI capability ID meaning
// "vendor-specific"; every VirtIO capability uses it.
const vendorSpecificCapabilityID = 0x09

// capHeaderSize is the size in bytes of the fields every VirtIO PCI
// capability shares, matching VirtIOPCICapabilityHeaderRegisters in
// original_source/kernel/src/virtio/config.rs.
const capHeaderSize = 16

// capHeader holds the VirtIO-specific fields of a vendor-specific PCI
// capability, read from the capability's own offset within configuration
// space (spec.md §4.5).
type capHeader struct {
	cfgType ConfigType
	bar     uint8
	offset  uint32
	length  uint32
}

// readCapHeader parses the VirtIO-specific fields of capability c, which
// must already be known to carry vendorSpecificCapabilityID.
func readCapHeader(cfg pci.ConfigSpace, c pci.Capability) capHeader {
	return capHeader{
		cfgType: ConfigType(cfg.ReadU8(c.Offset + 3)),
		bar:     cfg.ReadU8(c.Offset + 4),
		offset:  cfg.ReadU32(c.Offset + 8),
		length:  cfg.ReadU32(c.Offset + 12),
	}
}
