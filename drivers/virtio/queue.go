package virtio

import (
	"novaos/kernel"
	"novaos/kernel/cpu"
)

// Descriptor flags, per "2.7.5 The Virtqueue Descriptor Table".
type descFlags uint16

const (
	descFlagNext     descFlags = 1 << 0
	descFlagWrite    descFlags = 1 << 1
	descFlagIndirect descFlags = 1 << 2
)

const descSize = 16 // addr(8) + len(4) + flags(2) + next(2), per 2.7.5.

// Buffer describes one driver-supplied buffer to chain into a descriptor
// list. Write marks it device-writable (the device fills it in); otherwise
// it is device-read-only (the driver filled it in).
type Buffer struct {
	Addr  uintptr
	Len   uint32
	Write bool
}

// Completion is delivered for each used-ring entry Poll observes: ID is the
// head descriptor index the completed chain started at (matching whatever
// AddBuffer returned for it), Len is the number of bytes the device wrote
// into the chain's writable portion.
type Completion struct {
	ID  uint16
	Len uint32
}

// ContigAllocFn allocates size bytes of physically contiguous, zeroed
// memory and returns both its virtual address (for the driver's own
// reads/writes) and its physical address (for handing to the device).
// VirtIO's descriptor table and avail/used rings all require this, since
// the device only ever addresses them physically (spec.md §4.5).
type ContigAllocFn func(size uintptr) (virt, phys uintptr, err *kernel.Error)

// Queue is one split virtqueue: a descriptor table, an available ring (the
// driver offers buffers to the device through it), and a used ring (the
// device returns them through it), per "2.7 Split Virtqueues".
type Queue struct {
	index uint16
	size  uint16

	descVirt, descPhys   uintptr
	availVirt, availPhys uintptr
	usedVirt, usedPhys   uintptr

	nextDesc uint16 // wrapping counter; reduced mod size to index the table

	notify        Registers
	notifyOff     uint16
	notifyOffMult uint32

	lastUsed uint16 // wrapping; how far the used ring has been processed
}

func newQueue(index, size uint16, notify Registers, notifyOff uint16, notifyOffMult uint32, alloc ContigAllocFn) (*Queue, *kernel.Error) {
	descBytes := uintptr(size) * descSize
	// virtq_avail: flags(2) + idx(2) + ring[size](2 each) + used_event(2).
	availBytes := uintptr(6) + uintptr(size)*2
	// virtq_used: flags(2) + idx(2) + ring[size]{id(4),len(4)} + avail_event(2).
	usedBytes := uintptr(6) + uintptr(size)*8

	descVirt, descPhys, err := alloc(descBytes)
	if err != nil {
		return nil, err
	}
	availVirt, availPhys, err := alloc(availBytes)
	if err != nil {
		return nil, err
	}
	usedVirt, usedPhys, err := alloc(usedBytes)
	if err != nil {
		return nil, err
	}

	return &Queue{
		index: index, size: size,
		descVirt: descVirt, descPhys: descPhys,
		availVirt: availVirt, availPhys: availPhys,
		usedVirt: usedVirt, usedPhys: usedPhys,
		notify: notify, notifyOff: notifyOff, notifyOffMult: notifyOffMult,
	}, nil
}

func (q *Queue) writeDesc(idx uint16, addr uintptr, length uint32, flags descFlags, next uint16) {
	base := q.descVirt + uintptr(idx)*descSize
	writeU64(base, uint64(addr))
	writeU32(base+8, length)
	writeU16(base+12, uint16(flags))
	writeU16(base+14, next)
}

func (q *Queue) readDesc(idx uint16) (addr uintptr, length uint32, flags descFlags, next uint16) {
	base := q.descVirt + uintptr(idx)*descSize
	return uintptr(readU64(base)), readU32(base + 8), descFlags(readU16(base + 12)), readU16(base + 14)
}

// AddBuffer chains descriptors for each element of chain, links them in
// order via the next flag, adds the head descriptor's index to the
// available ring, and notifies the device, per "2.7.13 Supplying Buffers to
// The Device". It returns the head descriptor's index, which identifies
// this request's completion in the used ring.
func (q *Queue) AddBuffer(chain []Buffer) uint16 {
	n := len(chain)
	if n == 0 {
		panic("virtio: AddBuffer requires at least one buffer")
	}

	indices := make([]uint16, n)
	for i := range chain {
		indices[i] = q.nextDesc % q.size
		q.nextDesc++
	}

	for i, b := range chain {
		flags := descFlags(0)
		if b.Write {
			flags |= descFlagWrite
		}
		var next uint16
		if i < n-1 {
			flags |= descFlagNext
			next = indices[i+1]
		}
		q.writeDesc(indices[i], b.Addr, b.Len, flags, next)
	}

	q.availAdd(indices[0])
	cpu.MemoryFence()
	// "4.1.5.2 Available Buffer Notifications": write the queue index to
	// the notify address computed from this queue's own notify offset.
	q.notify.WriteU16(uint32(q.notifyOff)*q.notifyOffMult, q.index)
	return indices[0]
}

func (q *Queue) availAdd(descIndex uint16) {
	idx := readU16(q.availVirt + 2)
	ringOffset := q.availVirt + 4 + uintptr(idx%q.size)*2
	writeU16(ringOffset, descIndex)
	cpu.MemoryFence()
	writeU16(q.availVirt+2, idx+1)
}

// Poll drains every used-ring entry appended since the last Poll call,
// invoking f with each one in order, per spec.md §4.5's completion handler.
func (q *Queue) Poll(f func(Completion)) {
	usedIdx := readU16(q.usedVirt + 2)
	for q.lastUsed != usedIdx {
		elemOff := q.usedVirt + 4 + uintptr(q.lastUsed%q.size)*8
		id := readU32(elemOff)
		length := readU32(elemOff + 4)
		f(Completion{ID: uint16(id), Len: length})
		q.lastUsed++
	}
}

// DescriptorChain reconstructs the chain of buffers starting at descriptor
// head, for a completed request identified by a Completion's ID.
func (q *Queue) DescriptorChain(head uint16) []Buffer {
	var chain []Buffer
	idx := head
	visited := make(map[uint16]bool)
	for {
		if visited[idx] {
			panic("virtio: descriptor chain contains a cycle")
		}
		visited[idx] = true

		addr, length, flags, next := q.readDesc(idx)
		chain = append(chain, Buffer{Addr: addr, Len: length, Write: flags&descFlagWrite != 0})
		if flags&descFlagNext == 0 {
			break
		}
		idx = next
	}
	return chain
}
