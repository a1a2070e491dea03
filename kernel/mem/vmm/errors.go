package vmm

import (
	"novaos/kernel"
	"novaos/kernel/mem/pmm"
)

var (
	// ErrNotMapped is returned by Unmap for a page that has no mapping.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}

	// ErrWrongSize is returned by Unmap when the page is mapped at a
	// different granularity than requested (e.g. asking to unmap a 4 KiB
	// page that is actually part of a 2 MiB huge mapping).
	ErrWrongSize = &kernel.Error{Module: "vmm", Message: "virtual page is mapped at a different size"}

	// ErrAlloc is returned when no physical frame is available for a new
	// intermediate table or for a NewPhysPage target.
	ErrAlloc = &kernel.Error{Module: "vmm", Message: "no physical frame available"}

	// ErrMisaligned is returned by MapTo when a 2 MiB/1 GiB request is not
	// aligned to its own page size.
	ErrMisaligned = &kernel.Error{Module: "vmm", Message: "huge page request is not aligned to its own size"}
)

// PageAlreadyMappedError describes an already-present final-level entry by
// its existing frame and flags. MapTo does not return it: MapTo reports that
// case as a *kernel.Error with Message "page already mapped", which carries
// neither the existing frame nor its flags, and IdentityMapRange recognises
// that message and skips the page.
type PageAlreadyMappedError struct {
	Existing pmm.Frame
	Flags    Flag
}

func (e *PageAlreadyMappedError) Error() string {
	return "vmm: page already mapped"
}
