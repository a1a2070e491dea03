package virtio

import (
	"encoding/binary"
	"testing"

	"novaos/drivers/pci"
)

// byteConfigSpace is a plain byte-slice PCI configuration space, mirroring
// drivers/pci's own test double.
type byteConfigSpace []byte

func (b byteConfigSpace) ReadU8(off uint16) uint8   { return b[off] }
func (b byteConfigSpace) ReadU16(off uint16) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func (b byteConfigSpace) ReadU32(off uint16) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

// newVirtIOBlockConfigSpace builds a fake configuration space for a VirtIO
// block device exposing exactly the three required capabilities (Common,
// Notify, ISR) through BAR0, matching "4.1.4 Virtio Structure PCI
// Capabilities".
func newVirtIOBlockConfigSpace() byteConfigSpace {
	cfg := make(byteConfigSpace, 256)
	binary.LittleEndian.PutUint16(cfg[0x00:], pci.VirtIOVendorID)
	binary.LittleEndian.PutUint16(cfg[0x02:], 0x1042)
	cfg[0x34] = 0x40 // capabilities list head

	// BAR0: 32-bit memory space at 0x20000000.
	binary.LittleEndian.PutUint32(cfg[0x10:], 0x20000000)

	// Common config capability at 0x40.
	cfg[0x40] = 0x09 // vendor-specific
	cfg[0x41] = 0x60 // next
	cfg[0x42] = 16   // cap_len
	cfg[0x43] = uint8(ConfigCommon)
	cfg[0x44] = 0 // bar
	binary.LittleEndian.PutUint32(cfg[0x48:], 0x1000) // offset
	binary.LittleEndian.PutUint32(cfg[0x4C:], 0x40)   // length

	// Notify config capability at 0x60, with its multiplier at 0x70.
	cfg[0x60] = 0x09
	cfg[0x61] = 0x80
	cfg[0x62] = 16
	cfg[0x63] = uint8(ConfigNotify)
	cfg[0x64] = 0
	binary.LittleEndian.PutUint32(cfg[0x68:], 0x2000)
	binary.LittleEndian.PutUint32(cfg[0x6C:], 0x10)
	binary.LittleEndian.PutUint32(cfg[0x70:], 4) // notify_off_multiplier

	// ISR config capability at 0x80, end of list.
	cfg[0x80] = 0x09
	cfg[0x81] = 0x00
	cfg[0x82] = 16
	cfg[0x83] = uint8(ConfigISR)
	cfg[0x84] = 0
	binary.LittleEndian.PutUint32(cfg[0x88:], 0x3000)
	binary.LittleEndian.PutUint32(cfg[0x8C:], 0x4)

	return cfg
}

func TestDiscoverFindsAllThreeCapabilities(t *testing.T) {
	cfg := newVirtIOBlockConfigSpace()
	regions := map[uintptr]*byteRegisters{}
	mapMMIO := func(phys uintptr, length uint32) Registers {
		r := &byteRegisters{buf: make([]byte, length)}
		regions[phys] = r
		return r
	}

	dev := Discover(cfg, mapMMIO)
	if dev == nil {
		t.Fatal("Discover returned nil for a well-formed VirtIO device")
	}
	if _, ok := regions[0x20000000+0x1000]; !ok {
		t.Error("common config region was not mapped")
	}
	if _, ok := regions[0x20000000+0x2000]; !ok {
		t.Error("notify region was not mapped")
	}
	if _, ok := regions[0x20000000+0x3000]; !ok {
		t.Error("ISR region was not mapped")
	}
	if dev.notifyOffMultiplier != 4 {
		t.Errorf("got notifyOffMultiplier %d, want 4", dev.notifyOffMultiplier)
	}
}

func TestDiscoverRejectsNonVirtIODevice(t *testing.T) {
	cfg := make(byteConfigSpace, 64)
	binary.LittleEndian.PutUint16(cfg[0x00:], 0x8086) // Intel, not VirtIO

	if dev := Discover(cfg, func(uintptr, uint32) Registers { return nil }); dev != nil {
		t.Fatal("Discover should reject a non-VirtIO vendor ID")
	}
}

func TestDiscoverRejectsMissingCapability(t *testing.T) {
	cfg := newVirtIOBlockConfigSpace()
	cfg[0x41] = 0x80 // skip the Notify capability entirely

	if dev := Discover(cfg, func(phys uintptr, length uint32) Registers {
		return &byteRegisters{buf: make([]byte, length)}
	}); dev != nil {
		t.Fatal("Discover should reject a device missing a required capability")
	}
}

func TestDeviceInitHandshake(t *testing.T) {
	cfg := newVirtIOBlockConfigSpace()
	regions := map[uintptr]*byteRegisters{}
	mapMMIO := func(phys uintptr, length uint32) Registers {
		r := &byteRegisters{buf: make([]byte, length)}
		regions[phys] = r
		return r
	}

	dev := Discover(cfg, mapMMIO)
	if dev == nil {
		t.Fatal("Discover returned nil")
	}

	common := regions[0x20000000+0x1000]
	binary.LittleEndian.PutUint16(common.buf[offNumQueues:], 1)
	binary.LittleEndian.PutUint16(common.buf[offQueueSize:], 4)

	arena := &memArena{nextPhys: 0x9000}
	if err := dev.Init(arena.alloc, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	gotStatus := Status(common.buf[offDeviceStatus])
	wantStatus := StatusAcknowledge | StatusDriver | StatusFeaturesOK | StatusDriverOK
	if gotStatus != wantStatus {
		t.Fatalf("got status %#x, want %#x", gotStatus, wantStatus)
	}

	q := dev.Queue(0)
	if q == nil {
		t.Fatal("expected queue 0 to have been initialized")
	}
	if q.size != 4 {
		t.Errorf("got queue size %d, want 4", q.size)
	}

	gotDesc := binary.LittleEndian.Uint64(common.buf[offQueueDesc:])
	if uintptr(gotDesc) != q.descPhys {
		t.Errorf("queue_desc register = %#x, want %#x", gotDesc, q.descPhys)
	}
}

func TestDeviceInitRejectsNonPowerOfTwoQueueSize(t *testing.T) {
	cfg := newVirtIOBlockConfigSpace()
	regions := map[uintptr]*byteRegisters{}
	mapMMIO := func(phys uintptr, length uint32) Registers {
		r := &byteRegisters{buf: make([]byte, length)}
		regions[phys] = r
		return r
	}

	dev := Discover(cfg, mapMMIO)
	common := regions[0x20000000+0x1000]
	binary.LittleEndian.PutUint16(common.buf[offNumQueues:], 1)
	binary.LittleEndian.PutUint16(common.buf[offQueueSize:], 3)

	arena := &memArena{nextPhys: 0x9000}
	if err := dev.Init(arena.alloc, nil); err == nil {
		t.Fatal("expected Init to reject a non-power-of-two queue size")
	}
}
