package virtio

import (
	"novaos/drivers/pci"
	"novaos/kernel"
)

// Status is the VirtIO device status byte, per "2.1 Device Status Field".
type Status uint8

const (
	StatusAcknowledge     Status = 1 << 0
	StatusDriver          Status = 1 << 1
	StatusDriverOK        Status = 1 << 2
	StatusFeaturesOK      Status = 1 << 3
	StatusDeviceNeedsReset Status = 1 << 6
	StatusFailed          Status = 1 << 7
)

// Reserved feature bits (spec.md §4.8 / §4.5), carried from the VirtIO
// spec's "6 Reserved Feature Bits".
const (
	FeatureIndirectDesc   = 28
	FeatureEventIdx       = 29
	FeatureVersion1       = 32
	FeatureAccessPlatform = 33
	FeatureRingPacked     = 34
	FeatureInOrder        = 35
)

// Common configuration register offsets, per "4.1.4.3 Common configuration
// structure layout".
const (
	offDeviceFeatureSelect = 0x00
	offDeviceFeature       = 0x04
	offDriverFeatureSelect = 0x08
	offDriverFeature       = 0x0C
	offNumQueues           = 0x12
	offDeviceStatus        = 0x14
	offQueueSelect         = 0x16
	offQueueSize           = 0x18
	offQueueEnable         = 0x1C
	offQueueNotifyOff      = 0x1E
	offQueueDesc           = 0x20
	offQueueDriver         = 0x28
	offQueueDevice         = 0x30
)

// MapMMIOFn identity-maps the physical region [phys, phys+length) and
// returns a Registers view over it (spec.md §4.5: "identity-map the
// reachable pages... treat AlreadyMapped as success"). Production callers
// build one from kernel/mem/vmm.AddrSpace.IdentityMapRange; tests supply a
// byte-slice-backed fake.
type MapMMIOFn func(phys uintptr, length uint32) Registers

// Device is a VirtIO PCI transport: the common configuration register
// block, the ISR status register, the notification region, and every
// virtqueue set up during Init (spec.md §4.5).
type Device struct {
	common Registers
	isr    Registers

	notify              Registers
	notifyOffMultiplier uint32

	queues []*Queue
}

// Discover scans cfg's PCI capability list for the Common, Notify, and ISR
// VirtIO capabilities and resolves each through mapMMIO, taking the first
// instance of each type found (spec.md §4.5). It returns nil if cfg is not
// a VirtIO device, or if any of the three required capabilities is absent.
// The PCI config-type capability (I/O-space access) is present in the spec
// but explicitly unsupported, per spec.md §4.5.
func Discover(cfg pci.ConfigSpace, mapMMIO MapMMIOFn) *Device {
	header := pci.ReadHeader(cfg)
	if !header.IsVirtIO() {
		return nil
	}

	var common, isr, notify Registers
	var notifyOffMultiplier uint32

	for _, c := range pci.Capabilities(cfg, header) {
		if c.ID != vendorSpecificCapabilityID {
			continue
		}
		h := readCapHeader(cfg, c)
		if h.cfgType == ConfigPCI {
			continue
		}

		barPhys := pci.BARAddress(cfg, h.bar)
		configPhys := barPhys + uintptr(h.offset)

		switch h.cfgType {
		case ConfigCommon:
			if common == nil {
				common = mapMMIO(configPhys, h.length)
			}
		case ConfigISR:
			if isr == nil {
				isr = mapMMIO(configPhys, h.length)
			}
		case ConfigNotify:
			if notify == nil {
				notify = mapMMIO(configPhys, h.length)
				// "4.1.4.4 Notification structure layout": the notify
				// offset multiplier immediately follows the capability
				// header shared by every VirtIO PCI capability.
				notifyOffMultiplier = cfg.ReadU32(c.Offset + capHeaderSize)
			}
		}
	}

	if common == nil || isr == nil || notify == nil {
		return nil
	}
	return &Device{common: common, isr: isr, notify: notify, notifyOffMultiplier: notifyOffMultiplier}
}

// NegotiateFn lets a device-specific driver clear or set its own feature
// bits on top of whatever Init has already negotiated for the reserved
// bits; it receives the device-offered bits and returns the bits the driver
// wants to request.
type NegotiateFn func(deviceFeatures uint64) (driverFeatures uint64)

// Init runs the strictly-ordered VirtIO initialization handshake (spec.md
// §4.5 / "3 General Initialization And Device Operation"): reset,
// ACKNOWLEDGE, DRIVER, feature negotiation (always clearing EVENT_IDX),
// FEATURES_OK with a readback assertion, per-queue setup, DRIVER_OK.
// contigAlloc supplies the physically contiguous, zeroed memory each
// queue's three rings need.
func (d *Device) Init(contigAlloc ContigAllocFn, negotiate NegotiateFn) *kernel.Error {
	d.common.WriteU8(offDeviceStatus, 0)

	status := StatusAcknowledge
	d.common.WriteU8(offDeviceStatus, uint8(status))
	status |= StatusDriver
	d.common.WriteU8(offDeviceStatus, uint8(status))

	deviceFeatures := d.readFeatures()
	driverFeatures := deviceFeatures &^ (uint64(1) << FeatureEventIdx)
	if negotiate != nil {
		driverFeatures = negotiate(driverFeatures)
	}
	d.writeFeatures(driverFeatures)

	status |= StatusFeaturesOK
	d.common.WriteU8(offDeviceStatus, uint8(status))

	if Status(d.common.ReadU8(offDeviceStatus))&StatusFeaturesOK == 0 {
		return &kernel.Error{Module: "virtio", Message: "device rejected negotiated features"}
	}

	numQueues := d.common.ReadU16(offNumQueues)
	d.queues = make([]*Queue, 0, numQueues)
	for i := uint16(0); i < numQueues; i++ {
		d.common.WriteU16(offQueueSelect, i)

		size := d.common.ReadU16(offQueueSize)
		if size == 0 {
			continue
		}
		if size&(size-1) != 0 {
			return &kernel.Error{Module: "virtio", Message: "device-reported queue size is not a power of two"}
		}

		notifyOff := d.common.ReadU16(offQueueNotifyOff)
		q, err := newQueue(i, size, d.notify, notifyOff, d.notifyOffMultiplier, contigAlloc)
		if err != nil {
			return err
		}

		d.common.WriteU64(offQueueDesc, uint64(q.descPhys))
		d.common.WriteU64(offQueueDriver, uint64(q.availPhys))
		d.common.WriteU64(offQueueDevice, uint64(q.usedPhys))
		d.common.WriteU16(offQueueEnable, 1)

		d.queues = append(d.queues, q)
	}

	status |= StatusDriverOK
	d.common.WriteU8(offDeviceStatus, uint8(status))
	return nil
}

// readFeatures reads all 64 device feature bits this driver models (the
// VirtIO spec reserves up to 128, but spec.md §4.8 names none above bit 35)
// through the two 32-bit selector windows.
func (d *Device) readFeatures() uint64 {
	d.common.WriteU32(offDeviceFeatureSelect, 0)
	lo := d.common.ReadU32(offDeviceFeature)
	d.common.WriteU32(offDeviceFeatureSelect, 1)
	hi := d.common.ReadU32(offDeviceFeature)
	return uint64(lo) | uint64(hi)<<32
}

func (d *Device) writeFeatures(f uint64) {
	d.common.WriteU32(offDriverFeatureSelect, 0)
	d.common.WriteU32(offDriverFeature, uint32(f))
	d.common.WriteU32(offDriverFeatureSelect, 1)
	d.common.WriteU32(offDriverFeature, uint32(f>>32))
}

// Queue returns the i'th virtqueue set up by Init, or nil if there is none.
func (d *Device) Queue(i uint16) *Queue {
	if int(i) >= len(d.queues) {
		return nil
	}
	return d.queues[i]
}

// ISRStatus reads and clears the device's interrupt status register,
// reporting whether a queue interrupt and/or a device-config-change
// interrupt is pending (4.1.4.5 ISR status capability). Reading the
// register clears it on real hardware.
func (d *Device) ISRStatus() (queueInterrupt, configInterrupt bool) {
	v := d.isr.ReadU8(0)
	return v&0x1 != 0, v&0x2 != 0
}
