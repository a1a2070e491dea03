// Package cpu contains architecture primitives and the per-CPU storage area
// (C5). Low-level operations are declared without bodies and backed by
// hand-written assembly at link time, following the teacher's
// kernel/cpu/cpu_amd64.go convention. Only ID gets a function-variable
// indirection (cpuidFn): it is the one primitive whose result feeds
// decision logic (IsIntel) worth exercising on the host test runner.
// EnableInterrupts/DisableInterrupts/Halt are single-instruction
// (STI/CLI/HLT) and have no logic to mock, so callers invoke them directly,
// matching the teacher exactly.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling on the calling CPU (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling on the calling CPU (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// FlushTLBEntry flushes a single TLB entry for the given virtual address
// (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads CR3 with the physical address of a new page directory and
// implicitly flushes the entire TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in CR3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uint64

// ID executes CPUID with EAX=leaf and returns EAX, EBX, ECX, EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// MemoryFence issues a store fence (SFENCE) ordering every prior write
// before every subsequent one on the calling CPU. VirtIO's driver-to-device
// handoff (drivers/virtio) pairs this with a descriptor-table write before
// the avail-ring update becomes visible, and again before the queue
// notification, matching the ordering the device is spec'd to assume.
func MemoryFence()

// IsIntel reports whether the CPU identifies itself as a GenuineIntel part.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && edx == 0x49656e69 && ecx == 0x6c65746e
}
