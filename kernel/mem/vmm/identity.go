package vmm

import (
	"novaos/kernel"
	"novaos/kernel/mem/pmm"
)

// IdentityMapRange maps every 4 KiB page in [startPhys, startPhys+size) to
// the virtual page at the same address, as used for device MMIO regions
// (drivers/virtio's NewIdentityMapMMIO). A page already mapped there is
// not an error: identity-mapping is idempotent across calls that cover
// overlapping ranges.
func (as *AddrSpace) IdentityMapRange(startPhys, size uintptr, flags Flag) *kernel.Error {
	pageBytes := pageSizeBytes(PageSize4K)
	start := startPhys &^ (pageBytes - 1)
	end := startPhys + size

	for addr := start; addr < end; addr += pageBytes {
		page := PageFromAddress(addr)
		_, err := as.MapTo(page, PageSize4K, ExistingPhysPage(pmm.FrameFromAddress(addr)), flags)
		if err != nil && !isAlreadyMapped(err) {
			return err
		}
	}
	return nil
}

func isAlreadyMapped(err *kernel.Error) bool {
	return err != nil && err.Message == "page already mapped"
}
