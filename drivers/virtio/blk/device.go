// Package blk implements the VirtIO block device driver (C10): request
// submission over a single virtqueue and completion dispatch back to
// whichever task is waiting on it. Grounded on
// original_source/kernel/src/virtio/block.rs's VirtIOBlockDevice, reworked
// onto drivers/virtio's split-ring transport and kernel/sync.OnceChannel in
// place of the original's async/await completion future.
package blk

import (
	"novaos/drivers/pci"
	"novaos/drivers/virtio"
	"novaos/kernel"
	"novaos/kernel/sync"
)

// VirtIO block device IDs, per "5.2 Block Device" (the legacy transitional
// ID 0x1001 and the modern non-transitional ID 0x1042).
var blockDeviceIDs = [2]uint16{0x1001, 0x1042}

// blockFeatureMQ is the VIRTIO_BLK_F_MQ feature bit (multiqueue support);
// this driver only ever uses queue 0, so it is always rejected.
const blockFeatureMQ = 12

func negotiateBlockFeatures(deviceFeatures uint64) uint64 {
	return deviceFeatures &^ (uint64(1) << blockFeatureMQ)
}

// requestQueue is the slice of *virtio.Queue this driver needs: submitting
// a descriptor chain and draining completions. Narrowed to an interface so
// tests can drive request/completion bookkeeping without a real virtqueue's
// descriptor/avail/used ring memory.
type requestQueue interface {
	AddBuffer(chain []virtio.Buffer) uint16
	Poll(f func(virtio.Completion))
}

// Device drives a single VirtIO block device over its request virtqueue.
// pending maps an in-flight request's head descriptor index (the same index
// the used ring will report back) to the bookkeeping needed to finish it.
type Device struct {
	queue     requestQueue
	blockSize uint32
	alloc     virtio.ContigAllocFn

	pendingLock sync.Spinlock
	pending     map[uint16]*pendingRequest
}

// TryInit probes cfg for a VirtIO block device and, if found, runs the
// VirtIO handshake and returns a ready-to-use Device. It returns a nil
// Device (no error) if cfg is not a VirtIO block device.
func TryInit(cfg pci.ConfigSpace, mapMMIO virtio.MapMMIOFn, alloc virtio.ContigAllocFn) (*Device, *kernel.Error) {
	header := pci.ReadHeader(cfg)
	if !header.IsVirtIO() {
		return nil, nil
	}
	isBlock := false
	for _, id := range blockDeviceIDs {
		if header.DeviceID == id {
			isBlock = true
		}
	}
	if !isBlock {
		return nil, nil
	}

	transport := virtio.Discover(cfg, mapMMIO)
	if transport == nil {
		return nil, &kernel.Error{Module: "blk", Message: "device advertises a block device ID but is missing a required VirtIO capability"}
	}
	if err := transport.Init(alloc, negotiateBlockFeatures); err != nil {
		return nil, err
	}

	q := transport.Queue(0)
	if q == nil {
		return nil, &kernel.Error{Module: "blk", Message: "device did not provide a request queue"}
	}

	return &Device{
		queue:     q,
		blockSize: sectorSize,
		alloc:     alloc,
		pending:   make(map[uint16]*pendingRequest),
	}, nil
}

// HandleCompletion drains every completed request from the device's used
// ring and wakes whichever task is waiting on each one. It is meant to be
// called from the device's interrupt handler (spec.md §4.7's "sleeps the
// caller" pairs with this as the wake side).
func (d *Device) HandleCompletion() {
	d.queue.Poll(func(c virtio.Completion) {
		d.pendingLock.Acquire()
		p, ok := d.pending[c.ID]
		if ok {
			delete(d.pending, c.ID)
		}
		d.pendingLock.Release()
		if !ok {
			return
		}
		p.finish()
	})
}
