// Package sync provides the synchronization primitives (C8) used by every
// other core subsystem: a busy-wait Spinlock, a write-once OnceCell, an
// OnceChannel for single-value completions, and a WaitQueue for one-to-many
// wakeups. It is grounded on the teacher's kernel/sync/spinlock.go, extended
// to the full primitive set spec.md §4.7 requires.
//
// This package never imports the scheduler: tasks are named only by the
// opaque TaskID they already use to identify themselves (spec.md §9's
// "arena and indices" resolution of the scheduler/wait-cell cyclic
// ownership). The scheduler registers WakeFn and SleepFn during its own
// initialization so that OnceChannel/WaitQueue can suspend and resume
// callers without a package import cycle.
package sync

import "novaos/kernel/cpu"

import "sync/atomic"

// TaskID identifies a task without this package needing to import the
// scheduler package that defines the full Task type.
type TaskID = uint32

var (
	// WakeFn transitions a sleeping task back to ReadyToRun. Registered by
	// kernel/sched.Init.
	WakeFn func(TaskID)

	// SleepFn suspends the calling task and invokes the scheduler; it
	// returns once the task has been woken again. Registered by
	// kernel/sched.Init.
	SleepFn func()

	// irqEnabledFn reports whether interrupts are currently enabled on the
	// calling CPU. It is a stub like the rest of kernel/cpu's arch
	// primitives; tests override it directly.
	irqEnabledFn = func() bool { return true }
)

// Spinlock is a busy-wait mutual-exclusion lock. Acquiring it increments the
// calling CPU's preempt-disable counter (kernel/cpu.PreemptDisable) so that a
// task holding the lock cannot be migrated or preempted onto another CPU
// mid-critical-section; releasing it decrements the counter again.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is held by the calling task. Re-acquiring a
// lock already held by the caller deadlocks, as on real hardware.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
	cpu.PreemptDisable()
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *Spinlock) TryAcquire() bool {
	if atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		cpu.PreemptDisable()
		return true
	}
	return false
}

// Release relinquishes a held lock.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
	cpu.PreemptEnable()
}

// AcquireIRQ disables interrupts before acquiring the lock, for locks also
// taken from interrupt handlers (spec.md §4.7's "_disable_interrupts"
// variant). It returns whether interrupts were enabled beforehand, to be
// passed back to ReleaseIRQ.
func (l *Spinlock) AcquireIRQ() (wasEnabled bool) {
	wasEnabled = irqEnabledFn()
	cpu.DisableInterrupts()
	l.Acquire()
	return wasEnabled
}

// ReleaseIRQ releases the lock, then restores interrupts, then decrements
// the preempt counter — the drop order mandated by spec.md §4.7.
func (l *Spinlock) ReleaseIRQ(wasEnabled bool) {
	atomic.StoreUint32(&l.state, 0)
	if wasEnabled {
		cpu.EnableInterrupts()
	}
	cpu.PreemptEnable()
}

// ForceUnlock releases the lock without touching the preempt counter or
// interrupt state. It exists solely for the task-setup trampoline
// (kernel/sched), which inherits a lock held by run_scheduler across the
// context switch into a brand new task and must drop it exactly once on the
// far side.
func (l *Spinlock) ForceUnlock() {
	atomic.StoreUint32(&l.state, 0)
}
