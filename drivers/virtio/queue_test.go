package virtio

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"novaos/kernel"
)

// byteRegisters is a host-memory-backed Registers for tests.
type byteRegisters struct{ buf []byte }

func (r *byteRegisters) ReadU8(off uint32) uint8   { return r.buf[off] }
func (r *byteRegisters) ReadU16(off uint32) uint16 { return binary.LittleEndian.Uint16(r.buf[off:]) }
func (r *byteRegisters) ReadU32(off uint32) uint32 { return binary.LittleEndian.Uint32(r.buf[off:]) }
func (r *byteRegisters) ReadU64(off uint32) uint64 { return binary.LittleEndian.Uint64(r.buf[off:]) }

func (r *byteRegisters) WriteU8(off uint32, v uint8) { r.buf[off] = v }
func (r *byteRegisters) WriteU16(off uint32, v uint16) {
	binary.LittleEndian.PutUint16(r.buf[off:], v)
}
func (r *byteRegisters) WriteU32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(r.buf[off:], v)
}
func (r *byteRegisters) WriteU64(off uint32, v uint64) {
	binary.LittleEndian.PutUint64(r.buf[off:], v)
}

// memArena is a ContigAllocFn backed by host memory; phys addresses are
// just a monotonically increasing counter since nothing dereferences them.
type memArena struct{ nextPhys uintptr }

func (a *memArena) alloc(size uintptr) (uintptr, uintptr, *kernel.Error) {
	buf := make([]byte, size)
	virt := uintptr(unsafe.Pointer(&buf[0]))
	phys := a.nextPhys
	a.nextPhys += size
	return virt, phys, nil
}

func TestQueueAddBufferAndPollRoundTrip(t *testing.T) {
	arena := &memArena{nextPhys: 0x1000}
	notifyBuf := make([]byte, 64)
	notify := &byteRegisters{buf: notifyBuf}

	q, err := newQueue(1, 4, notify, 2, 4, arena.alloc)
	if err != nil {
		t.Fatalf("newQueue: %v", err)
	}

	_, dataPhys, _ := arena.alloc(16)
	head := q.AddBuffer([]Buffer{{Addr: dataPhys, Len: 16, Write: true}})

	// Simulate the device consuming descriptor `head` and writing 16 bytes
	// into the used ring.
	usedIdx := readU16(q.usedVirt + 2)
	elemOff := q.usedVirt + 4 + uintptr(usedIdx%q.size)*8
	writeU32(elemOff, uint32(head))
	writeU32(elemOff+4, 16)
	writeU16(q.usedVirt+2, usedIdx+1)

	var got []Completion
	q.Poll(func(c Completion) { got = append(got, c) })
	if len(got) != 1 || got[0].ID != head || got[0].Len != 16 {
		t.Fatalf("unexpected completions: %+v", got)
	}

	chain := q.DescriptorChain(head)
	if len(chain) != 1 || chain[0].Addr != dataPhys || !chain[0].Write {
		t.Fatalf("unexpected descriptor chain: %+v", chain)
	}

	// notifyOff(2) * notifyOffMultiplier(4) = byte offset 8; the queue's
	// own index (1) should have landed there.
	if got := binary.LittleEndian.Uint16(notifyBuf[8:]); got != 1 {
		t.Fatalf("got notify value %d at offset 8, want 1", got)
	}
}

func TestAddBufferChainsMultipleDescriptors(t *testing.T) {
	arena := &memArena{nextPhys: 0x2000}
	notify := &byteRegisters{buf: make([]byte, 16)}

	q, err := newQueue(0, 4, notify, 0, 1, arena.alloc)
	if err != nil {
		t.Fatalf("newQueue: %v", err)
	}

	_, headerPhys, _ := arena.alloc(16)
	_, dataPhys, _ := arena.alloc(512)
	_, statusPhys, _ := arena.alloc(1)

	head := q.AddBuffer([]Buffer{
		{Addr: headerPhys, Len: 16, Write: false},
		{Addr: dataPhys, Len: 512, Write: true},
		{Addr: statusPhys, Len: 1, Write: true},
	})

	chain := q.DescriptorChain(head)
	if len(chain) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(chain))
	}
	if chain[0].Addr != headerPhys || chain[0].Write {
		t.Fatalf("unexpected header descriptor: %+v", chain[0])
	}
	if chain[1].Addr != dataPhys || !chain[1].Write {
		t.Fatalf("unexpected data descriptor: %+v", chain[1])
	}
	if chain[2].Addr != statusPhys || !chain[2].Write {
		t.Fatalf("unexpected status descriptor: %+v", chain[2])
	}
}
