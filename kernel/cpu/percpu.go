package cpu

// MaxCPUs bounds the size of the per-CPU area table. It is a compile-time
// constant, following the ambient-stack convention described in
// SPEC_FULL.md (no runtime config parsing is possible this early).
const MaxCPUs = 64

// Area is the fixed-size, segment-register-indexed per-processor storage
// block described in spec.md §4.4 (C5). The processor id lives at a known
// offset (field ID) so it can be read with a single memory reference once
// the GS base points at this struct; PreemptCount is incremented by every
// Spinlock acquisition (kernel/sync) and consulted by the scheduler's timer
// handler before invoking a reschedule.
type Area struct {
	ID           uint32
	PreemptCount uint32
}

var (
	areas     [MaxCPUs]Area
	activeNum uint32 = 1

	// currentIDFn returns the id of the calling CPU. On real hardware this
	// is a GS-relative load; tests override it to pin execution to a
	// single logical CPU without needing segment registers.
	currentIDFn = func() uint32 { return 0 }
)

// Init records how many logical CPUs are present and assigns each an id.
func Init(cpuCount uint32) {
	if cpuCount == 0 {
		cpuCount = 1
	}
	if cpuCount > MaxCPUs {
		cpuCount = MaxCPUs
	}
	activeNum = cpuCount
	for i := uint32(0); i < cpuCount; i++ {
		areas[i].ID = i
	}
}

// Count returns the number of initialized per-CPU areas.
func Count() uint32 {
	return activeNum
}

// Current returns the per-CPU area for the calling CPU.
func Current() *Area {
	return &areas[currentIDFn()]
}

// ForID returns the per-CPU area for a specific CPU id, used by the
// scheduler to inspect or target a CPU other than the one currently running.
func ForID(id uint32) *Area {
	return &areas[id]
}

// PreemptDisable increments the calling CPU's preempt counter. Spinlock
// acquisition calls this so that a task holding a lock cannot be migrated or
// preempted mid critical-section (spec.md §4.4).
func PreemptDisable() {
	Current().PreemptCount++
}

// PreemptEnable decrements the calling CPU's preempt counter.
func PreemptEnable() {
	a := Current()
	if a.PreemptCount == 0 {
		panic("cpu: PreemptEnable without matching PreemptDisable")
	}
	a.PreemptCount--
}

// PreemptCount returns the calling CPU's current preempt-disable nesting
// depth; the timer interrupt handler refuses to invoke the scheduler while
// this is nonzero.
func PreemptCount() uint32 {
	return Current().PreemptCount
}
