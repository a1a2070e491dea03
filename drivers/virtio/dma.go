package virtio

import (
	"novaos/kernel"
	"novaos/kernel/mem"
	"novaos/kernel/mem/pmm"
	"novaos/kernel/mem/vmm"
)

// NewIdentityMapMMIO builds a MapMMIOFn that identity-maps a capability's
// BAR target pages into as (spec.md §4.5) and returns a Registers view over
// the raw physical/virtual address, which coincide once identity mapped.
func NewIdentityMapMMIO(as *vmm.AddrSpace) MapMMIOFn {
	return func(phys uintptr, length uint32) Registers {
		if err := as.IdentityMapRange(phys, uintptr(length), vmm.FlagRW); err != nil {
			panic("virtio: failed to identity-map device configuration page: " + err.Error())
		}
		return newMMIORegisters(phys)
	}
}

// ContigFrameAllocFn allocates n physically contiguous frames and returns
// the first one.
type ContigFrameAllocFn func(n int) (pmm.Frame, *kernel.Error)

// NewDirectMapContigAlloc adapts a ContigFrameAllocFn into a ContigAllocFn
// that hands back direct-mapped virtual addresses (kernel/mem/vmm's
// DirectMapStart window, spec.md §3), zeroing the buffer before it is
// handed to the device.
func NewDirectMapContigAlloc(frames ContigFrameAllocFn) ContigAllocFn {
	return func(size uintptr) (virt, phys uintptr, err *kernel.Error) {
		n := int((size + mem.PageSize - 1) / mem.PageSize)
		if n == 0 {
			n = 1
		}

		start, kerr := frames(n)
		if kerr != nil {
			return 0, 0, kerr
		}

		physAddr := start.Address()
		virtAddr := vmm.KernelPhysAddr(physAddr)
		zeroBytes(virtAddr, uintptr(n)*mem.PageSize)
		return virtAddr, physAddr, nil
	}
}

func zeroBytes(addr, n uintptr) {
	buf := unsafeSlice(addr, int(n))
	for i := range buf {
		buf[i] = 0
	}
}
