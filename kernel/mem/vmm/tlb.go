package vmm

import "novaos/kernel/cpu"

// FlushAll loads root into CR3, which switches to that address space and
// flushes every non-global TLB entry at once instead of invalidating
// individual entries one at a time (spec.md §5).
func FlushAll(root uintptr) {
	switchPDTFn(root)
}

var switchPDTFn = cpu.SwitchPDT
