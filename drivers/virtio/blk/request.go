package blk

import (
	"unsafe"

	"novaos/drivers/virtio"
	"novaos/kernel"
	"novaos/kernel/sync"
)

// RequestType is the virtio_blk_req.type field, per "5.2.6 Device
// Operation".
type RequestType uint32

const (
	TypeIn    RequestType = 0
	TypeOut   RequestType = 1
	TypeFlush RequestType = 4
	TypeGetID RequestType = 8
)

// Status is the one-byte status footer a block request completes with.
type Status uint8

const (
	StatusOK          Status = 0
	StatusIOErr       Status = 1
	StatusUnsupported Status = 2

	// statusUnset is written into the status byte before submission so a
	// device that never touches it (a malformed or dead device) is
	// distinguishable from one that genuinely reports success.
	statusUnset Status = 0b111
)

// sectorSize is the fixed 512-byte unit block indices are expressed in on
// the wire, independent of this driver's own blockSize.
const sectorSize = 512

// reqHeaderSize is sizeof(virtio_blk_req) without the data payload: type(4)
// + reserved(4) + sector(8).
const reqHeaderSize = 16

// idLength is the fixed size of the buffer VIRTIO_BLK_T_GET_ID fills in.
const idLength = 20

// Result is what a completed request resolves to.
type Result struct {
	Status Status
	Err    *kernel.Error
}

// pendingRequest is the bookkeeping kept for a request between submission
// and the device's completion.
type pendingRequest struct {
	done *sync.OnceChannel[Result]

	statusVirt uintptr
	dataVirt   uintptr
	dataLen    int

	dest   []byte // caller buffer to fill from dataVirt on completion, if isRead
	isRead bool
}

func (p *pendingRequest) finish() {
	status := Status(readByte(p.statusVirt))
	if p.isRead && status == StatusOK {
		copy(p.dest, unsafeBytes(p.dataVirt, p.dataLen))
	}

	var err *kernel.Error
	switch status {
	case StatusOK:
	case StatusIOErr:
		err = &kernel.Error{Module: "blk", Message: "device reported an I/O error"}
	case StatusUnsupported:
		err = &kernel.Error{Module: "blk", Message: "device does not support this request"}
	default:
		err = &kernel.Error{Module: "blk", Message: "device left the status byte unset"}
	}
	p.done.Send(Result{Status: status, Err: err})
}

func (d *Device) toSector(block uint64) uint64 {
	return block * uint64(d.blockSize/sectorSize)
}

// request allocates a header/data/status triple, submits it as a 2- or
// 3-descriptor chain, and blocks self until the device completes it.
// data is the caller's buffer: for TypeOut it is copied into the device-read
// descriptor before submission; for TypeIn/TypeGetID it names the buffer
// the device-written descriptor is copied back into on completion.
func (d *Device) request(self sync.TaskID, rtype RequestType, sector uint64, data []byte) *kernel.Error {
	headerVirt, headerPhys, err := d.alloc(reqHeaderSize)
	if err != nil {
		return err
	}
	writeU32At(headerVirt, uint32(rtype))
	writeU32At(headerVirt+4, 0)
	writeU64At(headerVirt+8, sector)

	statusVirt, statusPhys, err := d.alloc(1)
	if err != nil {
		return err
	}
	writeByte(statusVirt, uint8(statusUnset))

	isRead := rtype == TypeIn || rtype == TypeGetID
	chain := []virtio.Buffer{{Addr: headerPhys, Len: reqHeaderSize, Write: false}}

	var dataVirt uintptr
	if len(data) > 0 {
		var dataPhys uintptr
		dataVirt, dataPhys, err = d.alloc(uintptr(len(data)))
		if err != nil {
			return err
		}
		if !isRead {
			copy(unsafeBytes(dataVirt, len(data)), data)
		}
		chain = append(chain, virtio.Buffer{Addr: dataPhys, Len: uint32(len(data)), Write: isRead})
	}
	chain = append(chain, virtio.Buffer{Addr: statusPhys, Len: 1, Write: true})

	p := &pendingRequest{
		done:       sync.NewOnceChannel[Result](self),
		statusVirt: statusVirt,
		dataVirt:   dataVirt,
		dataLen:    len(data),
		dest:       data,
		isRead:     isRead,
	}

	head := d.queue.AddBuffer(chain)
	d.pendingLock.Acquire()
	d.pending[head] = p
	d.pendingLock.Release()

	result := p.done.Recv()
	return result.Err
}

// ReadBlocks reads n blocks (of d.blockSize bytes each) starting at
// startBlock into buf, which must be at least n*blockSize bytes.
func (d *Device) ReadBlocks(self sync.TaskID, startBlock, n uint64, buf []byte) *kernel.Error {
	want := int(n * uint64(d.blockSize))
	if len(buf) < want {
		return &kernel.Error{Module: "blk", Message: "destination buffer is smaller than the requested read"}
	}
	return d.request(self, TypeIn, d.toSector(startBlock), buf[:want])
}

// WriteBlocks writes buf (a whole number of d.blockSize-sized blocks)
// starting at startBlock.
func (d *Device) WriteBlocks(self sync.TaskID, startBlock uint64, buf []byte) *kernel.Error {
	if uint64(len(buf))%uint64(d.blockSize) != 0 {
		return &kernel.Error{Module: "blk", Message: "write buffer is not a whole number of blocks"}
	}
	return d.request(self, TypeOut, d.toSector(startBlock), buf)
}

// GetID fetches the device's 20-byte ASCII serial number into buf.
func (d *Device) GetID(self sync.TaskID, buf *[idLength]byte) *kernel.Error {
	return d.request(self, TypeGetID, 0, buf[:])
}

func readByte(addr uintptr) uint8 { return *(*uint8)(unsafe.Pointer(addr)) }
func writeByte(addr uintptr, v uint8) { *(*uint8)(unsafe.Pointer(addr)) = v }

func writeU32At(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
func writeU64At(addr uintptr, v uint64) { *(*uint64)(unsafe.Pointer(addr)) = v }

func unsafeBytes(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
